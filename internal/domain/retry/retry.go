// Package retry describes bounded retry-with-backoff policies for external calls.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy is a per-collaborator retry configuration.
// MaxAttempts counts the first call; 1 means fail-fast.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// FailFast is a single-attempt policy.
func FailFast() Policy { return Policy{MaxAttempts: 1} }

// Attempts returns the effective attempt count (at least 1).
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait before retry number n (n=1 is the first retry).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= mult
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
// The last error is returned wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := p.Attempts()
	var err error
	made := 0
	for made < attempts {
		made++
		if err = fn(ctx); err == nil {
			return nil
		}
		if made == attempts || !retryable(err) {
			break
		}
		if werr := wait(ctx, p.Delay(made)); werr != nil {
			return fmt.Errorf("retry wait: %w", werr)
		}
	}
	if made > 1 {
		return fmt.Errorf("after %d attempts: %w", made, err)
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
