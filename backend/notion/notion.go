// Package notion provides the remote task store implementation for the
// Notion REST API.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"todosync/backend"
	"todosync/internal/ratelimit"
)

const (
	// DefaultBaseURL is the Notion REST API base URL
	DefaultBaseURL = "https://api.notion.com"
	// DefaultVersion is the API version that exposes multi-source databases
	DefaultVersion = "2025-09-03"
	// DefaultPageSize is the largest page size the API accepts
	DefaultPageSize = 100
	// DefaultRequestTimeout bounds every remote call
	DefaultRequestTimeout = 30 * time.Second
	// DefaultRateLimitRetries is the number of retries after a 429
	DefaultRateLimitRetries = 2
)

// Config holds Notion connection settings
type Config struct {
	APIKey           string
	BaseURL          string // Override for testing
	Version          string
	PageSize         int
	RequestTimeout   time.Duration
	RateLimitRetries int // Zero uses the default, negative disables retries
	RetryBaseDelay   time.Duration
	HTTPClient       *http.Client // Base client under the auth transport
	Stats            *ratelimit.Stats
}

// Backend implements backend.RemoteStore using the Notion REST API
type Backend struct {
	config     Config
	httpClient *http.Client
	client     *ratelimit.Client
	baseURL    string
	version    string
	pageSize   int
	timeout    time.Duration
}

var _ backend.RemoteStore = (*Backend)(nil)

// New creates a new Notion backend
func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("notion API key is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	version := cfg.Version
	if version == "" {
		version = DefaultVersion
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	retries := cfg.RateLimitRetries
	if retries == 0 {
		retries = DefaultRateLimitRetries
	} else if retries < 0 {
		retries = 0
	}

	httpClient := createHTTPClient(cfg.HTTPClient, cfg.APIKey)

	return &Backend{
		config:     cfg,
		httpClient: httpClient,
		client: ratelimit.NewClient(ratelimit.Config{
			MaxRetries:   retries,
			BaseDelay:    cfg.RetryBaseDelay,
			EnableJitter: true,
			HTTPClient:   httpClient,
			Stats:        cfg.Stats,
			Service:      "Notion",
		}),
		baseURL:  baseURL,
		version:  version,
		pageSize: pageSize,
		timeout:  timeout,
	}, nil
}

// createHTTPClient wraps the base client with a bearer token transport.
func createHTTPClient(base *http.Client, apiKey string) *http.Client {
	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: apiKey,
		TokenType:   "Bearer",
	}))
}

// Close releases idle connections
func (b *Backend) Close() error {
	if b.config.HTTPClient != nil {
		b.config.HTTPClient.CloseIdleConnections()
	}
	b.httpClient.CloseIdleConnections()
	return nil
}

// call performs one API request bounded by the request timeout, decoding a
// successful response into out when out is non-nil.
func (b *Backend) call(ctx context.Context, op, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
	}

	header := http.Header{}
	header.Set("Notion-Version", b.version)
	header.Set("Accept", "application/json")
	if payload != nil {
		header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(ctx, method, b.baseURL+path, payload, header)
	if err != nil {
		return classifyTransport(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(op, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return &backend.Error{Kind: backend.KindAPI, Op: op, Message: "failed to decode response", Err: err}
	}
	return nil
}

func classifyTransport(op string, err error) error {
	var rlErr *ratelimit.RateLimitError
	if errors.As(err, &rlErr) {
		return &backend.Error{Kind: backend.KindRateLimit, Op: op, Code: "rate_limited", Err: err}
	}
	return backend.Classify(op, err)
}

// errorFromResponse translates an API error body into a categorized error.
func errorFromResponse(op string, status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	kind := kindForCode(apiErr.Code)
	if kind == backend.KindUnknown {
		kind = kindForStatus(status)
	}

	msg := apiErr.Message
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", status)
	}
	return &backend.Error{Kind: kind, Op: op, Code: apiErr.Code, Message: msg}
}

func kindForCode(code string) backend.ErrorKind {
	switch code {
	case "unauthorized":
		return backend.KindAuth
	case "restricted_resource":
		return backend.KindPermission
	case "object_not_found":
		return backend.KindNotFound
	case "rate_limited":
		return backend.KindRateLimit
	case "validation_error", "invalid_json", "invalid_request":
		return backend.KindValidation
	default:
		return backend.KindUnknown
	}
}

func kindForStatus(status int) backend.ErrorKind {
	switch status {
	case http.StatusUnauthorized:
		return backend.KindAuth
	case http.StatusForbidden:
		return backend.KindPermission
	case http.StatusNotFound:
		return backend.KindNotFound
	case http.StatusTooManyRequests:
		return backend.KindRateLimit
	case http.StatusBadRequest:
		return backend.KindValidation
	case http.StatusGatewayTimeout:
		return backend.KindTimeout
	default:
		return backend.KindAPI
	}
}

// paginate drains a cursor-paginated listing, calling fn for every result in
// order. It stops as soon as the response has no cursor or reports no more
// results, even when the page was empty.
func (b *Backend) paginate(ctx context.Context, op, method, path string, body map[string]interface{}, fn func(json.RawMessage) error) error {
	cursor := ""
	for {
		req := make(map[string]interface{}, len(body)+1)
		for k, v := range body {
			req[k] = v
		}
		if cursor != "" {
			req["start_cursor"] = cursor
		}

		var resp listResponse
		if err := b.call(ctx, op, method, path, req, &resp); err != nil {
			return err
		}
		for _, raw := range resp.Results {
			if err := fn(raw); err != nil {
				return err
			}
		}

		next, ok := resp.more()
		if !ok {
			return nil
		}
		cursor = next
	}
}

// searchPages drains a page search, calling fn for every page.
func (b *Backend) searchPages(ctx context.Context, op string, pageSize int, fn func(*page)) error {
	body := map[string]interface{}{
		"filter":    map[string]string{"property": "object", "value": "page"},
		"page_size": pageSize,
	}
	return b.paginate(ctx, op, http.MethodPost, "/v1/search", body, func(raw json.RawMessage) error {
		var p page
		if err := json.Unmarshal(raw, &p); err != nil {
			return &backend.Error{Kind: backend.KindAPI, Op: op, Message: "failed to decode page", Err: err}
		}
		fn(&p)
		return nil
	})
}

func (b *Backend) retrieveDatabase(ctx context.Context, databaseID string) (*database, error) {
	if strings.TrimSpace(databaseID) == "" {
		return nil, backend.NewValidationError("retrieve database", "database id is required")
	}
	var db database
	if err := b.call(ctx, "retrieve database", http.MethodGet, "/v1/databases/"+databaseID, nil, &db); err != nil {
		return nil, err
	}
	return &db, nil
}

func (b *Backend) retrievePage(ctx context.Context, pageID string) (*page, error) {
	var p page
	if err := b.call(ctx, "retrieve page", http.MethodGet, "/v1/pages/"+pageID, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *Backend) effectivePageSize(requested int) int {
	if requested <= 0 {
		return b.pageSize
	}
	if requested > DefaultPageSize {
		return DefaultPageSize
	}
	return requested
}
