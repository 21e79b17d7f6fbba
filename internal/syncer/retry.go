package syncer

import (
	"context"
	"errors"

	"todosync/backend"
	"todosync/internal/utils"
)

// withRetry runs fn and, on failure, asks the operator whether to run it
// again. At most opts.MaxRetries retries are offered. Cancellation,
// validation and quota errors are returned without asking.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !retryable(ctx, err) {
			return err
		}
		if attempt >= s.opts.MaxRetries {
			utils.Debugf("%s: giving up after %d retries: %v", op, attempt, err)
			return err
		}
		if !s.operator.ShouldRetry(op, err) {
			return err
		}
		utils.Debugf("%s: retry %d after %v", op, attempt+1, err)
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrCancelled) {
		return false
	}
	if errors.Is(err, ErrNotLinked) || errors.Is(err, ErrNoCredential) || errors.Is(err, ErrNoTasksInFile) {
		return false
	}
	switch backend.KindOf(err) {
	case backend.KindValidation, backend.KindQuotaExceeded:
		return false
	}
	return true
}

// IsCancelled reports whether err is an operator cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
