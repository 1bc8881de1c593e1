// Package retry runs an operation with bounded attempts and exponential backoff.
// It is shared by every outbound call to the label cloud.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures the retry schedule.
// The delay before attempt n (n >= 2) is RetryDelay * Multiplier^(n-2), capped at MaxDelay.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int
	// RetryDelay is the delay before the second attempt
	RetryDelay time.Duration
	// Multiplier grows the delay between consecutive attempts
	Multiplier float64
	// MaxDelay caps a single delay
	MaxDelay time.Duration
}

// DefaultPolicy returns 3 attempts with 1s and 2s delays and no jitter
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		RetryDelay:  time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = d.RetryDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxDelay < p.RetryDelay {
		p.MaxDelay = d.MaxDelay
		if p.MaxDelay < p.RetryDelay {
			p.MaxDelay = p.RetryDelay
		}
	}
	return p
}

// Operation is one attempt. attempt starts at 1
type Operation func(ctx context.Context, attempt int) error

// NotifyFunc is called after a failed attempt that will be retried after delay
type NotifyFunc func(attempt int, err error, delay time.Duration)

type options struct {
	timer  backoff.Timer
	notify NotifyFunc
}

// Option configures Do
type Option func(*options)

// WithTimer replaces the timer used to wait between attempts
func WithTimer(t backoff.Timer) Option {
	return func(o *options) {
		o.timer = t
	}
}

// WithNotify registers a callback for failed attempts that will be retried
func WithNotify(fn NotifyFunc) Option {
	return func(o *options) {
		o.notify = fn
	}
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, fails permanently or the policy is exhausted.
// It returns the number of attempts made and the last failure.
//
// Cancelling ctx while waiting between attempts stops the loop; the returned
// error then wraps both the context error and the last failure.
func Do(ctx context.Context, policy Policy, op Operation, opts ...Option) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	p := policy.normalized()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.RetryDelay
	exp.Multiplier = p.Multiplier
	exp.MaxInterval = p.MaxDelay
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)

	attempts := 0
	var lastErr error
	operation := func() error {
		attempts++
		lastErr = op(ctx, attempts)
		return lastErr
	}
	notify := func(err error, next time.Duration) {
		if o.notify != nil {
			o.notify(attempts, err, next)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, b, notify, o.timer)
	if err == nil {
		return attempts, nil
	}

	ctxErr := ctx.Err()
	if ctxErr != nil && errors.Is(err, ctxErr) && lastErr != nil && !errors.Is(lastErr, ctxErr) {
		return attempts, fmt.Errorf("retry aborted after %d attempts: %w: last failure: %w", attempts, ctxErr, lastErr)
	}
	return attempts, err
}
