package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/mcoot/tileclaim/internal/model"
)

// Call runs a store operation bounded by timeout. Domain errors pass
// through unchanged; anything else, including the deadline expiring, is
// reported as model.ErrStoreUnavailable. Calls are never retried here.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, Classify(err)
	}
	return result, nil
}

// Exec is Call for operations without a result
func Exec(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Classify maps a store error into the error taxonomy
func Classify(err error) error {
	if err == nil || model.IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
}
