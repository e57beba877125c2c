package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	Attempts        uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Connect is the policy used for dependency pings at startup.
var Connect = Policy{Attempts: 5, InitialInterval: 500 * time.Millisecond, MaxInterval: 5 * time.Second}

// Notify is called with the failure and the delay before the next attempt.
type Notify func(err error, next time.Duration)

// Do runs op until it succeeds, the attempts run out or ctx is done. Errors
// wrapped with Permanent stop immediately.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify Notify) error {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = exp
	if p.Attempts > 0 {
		b = backoff.WithMaxRetries(exp, p.Attempts-1)
	}
	return backoff.RetryNotify(func() error { return op(ctx) }, backoff.WithContext(b, ctx), backoff.Notify(notify))
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
