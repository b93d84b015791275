// Package retry runs idempotent writes again when they lose a transient race.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Policy controls exponential backoff behaviour.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Jitter spreads each delay by +/- this fraction. 0 disables it.
	Jitter float64

	// OnRetry, if set, is called before sleeping ahead of attempt+1.
	OnRetry func(attempt int, err error, delay time.Duration)
}

var (
	ErrExhausted     = errors.New("retry budget exhausted")
	errInvalidPolicy = errors.New("invalid backoff policy")
)

// Do calls op until it succeeds, fails with an error retryable rejects, or the
// budget runs out. Exhaustion returns an error matching both ErrExhausted and
// the last error from op.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(context.Context) error) error {
	if p.MaxRetries < 0 || p.InitialInterval < 0 || p.Jitter < 0 || p.Jitter > 1 {
		return errInvalidPolicy
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt+1, err)
		}

		delay := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Backoff returns the wait before retry number attempt+1: InitialInterval*2^attempt,
// capped at MaxInterval, then jittered.
func (p Policy) Backoff(attempt int) time.Duration {
	delay := p.InitialInterval
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxInterval > 0 && delay >= p.MaxInterval {
			delay = p.MaxInterval
			break
		}
	}
	if p.MaxInterval > 0 && delay > p.MaxInterval {
		delay = p.MaxInterval
	}
	if p.Jitter > 0 && delay > 0 {
		j := 1 + (rand.Float64()*2-1)*p.Jitter
		delay = time.Duration(float64(delay) * j)
	}
	return delay
}
