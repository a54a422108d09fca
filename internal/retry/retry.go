// Package retry runs fallible operations under a bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Policy describes how often and how patiently an operation is retried.
// The zero value performs a single attempt.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries   int
	InitialDelay time.Duration
	// Multiplier scales the delay after every retry; values below 1 are treated as 1.
	Multiplier float64
	// MaxDelay caps a single wait; zero means uncapped.
	MaxDelay time.Duration
	Clock    clockwork.Clock
}

// DefaultPolicy is 3 retries waiting 1s, 2s and 4s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     30 * time.Second,
	}
}

// Delay returns the wait before retry number n (0-based).
func (p Policy) Delay(n int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay)
	for i := 0; i < n; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p Policy) clock() clockwork.Clock {
	if p.Clock == nil {
		return clockwork.NewRealClock()
	}
	return p.Clock
}

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do runs op until it succeeds, returns a Permanent error, the policy is
// exhausted or ctx is done.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	clk := p.clock()
	attempts := 0
	for {
		attempts++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		var perm permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if attempts > p.MaxRetries {
			return zero, &ExhaustedError{Attempts: attempts, Err: err}
		}

		delay := p.Delay(attempts - 1)
		log.Warn().
			Str("module", "retry").
			Err(err).
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("attempt failed, retrying")

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry: %w (last error: %v)", ctx.Err(), err)
		case <-clk.After(delay):
		}
	}
}
