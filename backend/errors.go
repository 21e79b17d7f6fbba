package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"todosync/internal/ratelimit"
)

// ErrorKind is the user-facing category of a failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindPermission
	KindNotFound
	KindRateLimit
	KindTimeout
	KindNetwork
	KindValidation
	KindQuotaExceeded
	KindAPI
)

// String returns a short machine-friendly name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrAuth          = errors.New("unauthorized")
	ErrPermission    = errors.New("restricted resource")
	ErrNotFound      = errors.New("object not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrTimeout       = errors.New("request timed out")
	ErrNetwork       = errors.New("network error")
	ErrValidation    = errors.New("validation failed")
	ErrQuotaExceeded = errors.New("project quota exceeded")
)

// userMessages are shown to the operator in place of raw store messages.
var userMessages = map[ErrorKind]string{
	KindAuth:       "Invalid Notion API key. Please check your API key.",
	KindPermission: "Database not shared with integration. Share it in Notion settings.",
	KindNotFound:   "Database or page not found. It may have been deleted.",
	KindRateLimit:  "Notion API rate limit reached. Please wait a moment and try again.",
	KindTimeout:    "Request timed out. Check your internet connection.",
	KindNetwork:    "Network error. Check your internet connection.",
}

var kindSentinels = map[ErrorKind]error{
	KindAuth:          ErrAuth,
	KindPermission:    ErrPermission,
	KindNotFound:      ErrNotFound,
	KindRateLimit:     ErrRateLimited,
	KindTimeout:       ErrTimeout,
	KindNetwork:       ErrNetwork,
	KindValidation:    ErrValidation,
	KindQuotaExceeded: ErrQuotaExceeded,
}

// Error is a categorized failure of a remote or local operation.
type Error struct {
	Kind    ErrorKind
	Op      string // Operation name, e.g. "update status"
	Code    string // Store error code when known
	Message string // Store or validation message
	Err     error  // Underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if um, ok := userMessages[e.Kind]; ok {
		msg = um
	}
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the same kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// NewValidationError returns a validation failure with the given message.
func NewValidationError(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewQuotaError returns a quota failure with the given message.
func NewQuotaError(message string) error {
	return &Error{Kind: KindQuotaExceeded, Message: message}
}

// KindOf classifies any error into an ErrorKind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	var rlErr *ratelimit.RateLimitError
	if errors.As(err, &rlErr) {
		return KindRateLimit
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetwork
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") {
		return KindNetwork
	}
	return KindUnknown
}

// Classify wraps err as a categorized *Error for the given operation.
// Errors that are already categorized are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) || errors.Is(err, context.Canceled) {
		return err
	}
	kind := KindOf(err)
	if kind == KindUnknown {
		// Unrecognized transport failures are connectivity failures.
		kind = KindNetwork
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
