// Package retry runs an operation up to a caller-supplied number of extra
// attempts with exponential backoff between them.
package retry

import (
	"context"
	"time"
)

// Policy bounds the attempts of one operation. Retries is the number of
// attempts after the first, so Retries=2 allows three calls in total.
type Policy struct {
	Retries    int
	Backoff    time.Duration // delay before the first retry; 0 disables waiting
	MaxBackoff time.Duration // cap on the doubled delay; 0 means uncapped
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, or the policy is
// exhausted. The last error is returned unwrapped. Attempts are strictly
// sequential. attempt is zero-based.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	if p.Retries < 0 {
		p.Retries = 0
	}
	delay := p.Backoff
	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 && delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return lastErr
			case <-t.C:
			}
			delay *= 2
			if p.MaxBackoff > 0 && delay > p.MaxBackoff {
				delay = p.MaxBackoff
			}
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		if perm, ok := err.(*permanent); ok {
			return perm.err
		}
		lastErr = err
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}
