package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	errspkg "github.com/drblury/kafkaport/internal/runtime/errors"
)

// TimeoutError is returned when a cluster call outlives the configured request
// timeout. It is an ordinary operation error: the port reports it and carries on.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.Timeout)
}

// await runs call on its own goroutine and waits for it. Cancelling ctx
// abandons the wait with an error wrapping ErrInterrupted; exceeding timeout
// (when positive) yields a *TimeoutError instead.
//
// An abandoned call keeps running. When slot is non-nil it holds a token for
// as long as the call runs, abandoned or not, so calls sharing a slot never
// overlap: the next one waits for the token within its own timeout.
func await[T any](ctx context.Context, timeout time.Duration, slot chan struct{}, call func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var zero T
	if slot != nil {
		select {
		case slot <- struct{}{}:
		case <-waitCtx.Done():
			return zero, abandoned(ctx, timeout)
		}
	}

	done := make(chan outcome, 1)
	go func() {
		if slot != nil {
			defer func() { <-slot }()
		}
		v, err := call()
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-waitCtx.Done():
		return zero, abandoned(ctx, timeout)
	}
}

func abandoned(ctx context.Context, timeout time.Duration) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", errspkg.ErrInterrupted, ctx.Err())
	}
	return &TimeoutError{Timeout: timeout}
}

// IsInterrupted reports whether err came from an interrupted wait.
func IsInterrupted(err error) bool {
	return errors.Is(err, errspkg.ErrInterrupted)
}
