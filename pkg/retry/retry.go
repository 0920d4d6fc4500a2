package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxAttempts bounds the attempt budget when no option is given.
const DefaultMaxAttempts = 3

var (
	// ErrExhausted is returned when the attempt budget ran out.
	ErrExhausted = errors.New("retry attempts exhausted")
)

// Operation is a retryable unit of work.
type Operation func(ctx context.Context) error

// temporary matches errors that report their own retryability, like
// datastore.StoreError and billing.GatewayError.
type temporary interface {
	Temporary() bool
}

// permanentError marks an error as not retryable.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps an error so Do gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retryable reports whether Do would retry after err.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var p *permanentError
	if errors.As(err, &p) {
		return false
	}

	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}

	// Unclassified errors default to retryable: the caller opted into retry.
	return true
}

// Option configures Do.
type Option func(*settings)

type settings struct {
	maxAttempts int
	backoff     BackoffStrategy
	onRetry     func(attempt int, err error)
}

// WithMaxAttempts bounds the total number of attempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *settings) {
		if n >= 1 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay strategy between attempts. Nil is ignored.
func WithBackoff(b BackoffStrategy) Option {
	return func(s *settings) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithOnRetry registers an observer invoked before each retry with the
// upcoming attempt number (starting at 2) and the error that caused it.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(s *settings) {
		s.onRetry = fn
	}
}

// Do runs op until it succeeds or retrying stops making sense.
// The returned error wraps the last attempt's error.
func Do(ctx context.Context, op Operation, opts ...Option) error {
	s := &settings{
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoffStrategy(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			if s.onRetry != nil {
				s.onRetry(attempt, lastErr)
			}

			delay := s.backoff.NextInterval(attempt - 1)
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, s.maxAttempts, lastErr)
}
