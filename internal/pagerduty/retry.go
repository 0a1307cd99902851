package pagerduty

import (
	"context"
	"time"
)

// RetryPolicy retries an operation a fixed number of times with a fixed
// delay between attempts. It is used for the per-incident enrichment calls,
// where a transient timeout should not fail a whole fetch run.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 behave as a single attempt.
	MaxAttempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
}

// Do runs op until it succeeds, the attempt budget is exhausted, or the
// context is cancelled while waiting between attempts. It returns the last
// error observed.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
