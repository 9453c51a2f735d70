package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"today_eat_what/cost"
)

// Policy is the per-call-site retry budget.
type Policy struct {
	// Retries is the number of extra attempts after the first for Timeout/ServerError.
	Retries int
	// Backoff is the initial wait between attempts; it grows exponentially.
	Backoff time.Duration
	// Timeout bounds a single attempt.
	Timeout time.Duration
}

// DefaultPolicy mirrors the config defaults.
func DefaultPolicy() Policy {
	return Policy{Retries: 2, Backoff: 500 * time.Millisecond, Timeout: 30 * time.Second}
}

// Caller binds a client to a vendor name, call options, a retry policy and the run's cost
// ledger. Every attempt is charged, including failed ones.
type Caller struct {
	Client  Client
	Vendor  string
	Options Options
	Policy  Policy
	Cost    *cost.Tracker
	Logger  *slog.Logger
}

// Configured reports whether the caller has a client to submit to.
func (c *Caller) Configured() bool {
	return c != nil && c.Client != nil
}

func (c *Caller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Caller) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if c.Policy.Backoff > 0 {
		bo.InitialInterval = c.Policy.Backoff
	}
	bo.MaxElapsedTime = 0
	retries := c.Policy.Retries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx)
}

// Call submits p and retries transient failures within the policy budget. Auth and request
// errors return immediately.
func (c *Caller) Call(ctx context.Context, stage string, p Prompt) (string, error) {
	if !c.Configured() {
		return "", ErrUnconfigured
	}
	timeout := c.Policy.Timeout
	if c.Options.Timeout > 0 {
		timeout = c.Options.Timeout
	}

	var out string
	attempt := 0
	op := func() error {
		attempt++
		callCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if c.Cost != nil {
			c.Cost.Charge(stage, c.Vendor)
		}
		text, err := c.Client.Complete(callCtx, p, c.Options)
		if err == nil {
			out = text
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		err = classify(c.Vendor, err)
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger().Warn("model call failed, retrying",
			"stage", stage, "vendor", c.Vendor, "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, c.newBackOff(ctx), notify); err != nil {
		return "", err
	}
	return out, nil
}
