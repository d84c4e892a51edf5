package lockd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds the retry loop wrapped around every index-store
// call. Attempts are capped and backoff is jittered exponential up to
// a ceiling; exhaustion is always a hard failure, never a silently
// skipped write.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the contention profile of a single-host
// SQLite index under many short-lived writers.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 8,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    time.Second,
	}
}

// RetriesExhaustedError reports a transient failure that survived
// every attempt. Unwrap exposes the last underlying error.
type RetriesExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// transienter is implemented by errors that are safe to retry
// (index.TransientError). Checked structurally so this package does
// not depend on the store above it.
type transienter interface {
	Transient() bool
}

// IsTransient reports whether err (possibly wrapped) is retryable.
func IsTransient(err error) bool {
	var t transienter
	return errors.As(err, &t) && t.Transient()
}

// Do runs fn, retrying transient errors with jittered exponential
// backoff. Permanent errors escalate on the first attempt. Context
// cancellation stops the loop between attempts.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(p.delay(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}

	return &RetriesExhaustedError{Op: op, Attempts: attempts, Err: err}
}

// delay computes the backoff before the next attempt: base * 2^(n-1),
// capped, with up to 50% random jitter to spread contending writers.
func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = time.Second
	}

	d := base << (attempt - 1)
	if d > ceiling || d <= 0 {
		d = ceiling
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	return d + jitter
}
