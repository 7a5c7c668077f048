// Package retry expresses settle delays and bounded retries as values.
package retry

import (
	"context"
	"time"
)

// Policy describes how many times an action is attempted and how long to
// wait between attempts. Backoff multiplies Delay after each failure; values
// below 1 keep the delay constant.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Backoff  float64
}

// Once is a single attempt without waiting.
var Once = Policy{Attempts: 1}

// sleep is replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
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

// Pause blocks for one Delay of p, or until ctx is done.
func (p Policy) Pause(ctx context.Context) error {
	return sleep(ctx, p.Delay)
}

// Do runs fn until it succeeds or the attempts are exhausted. The last
// error is returned. A cancelled context stops the loop between attempts.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(i); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
		if p.Backoff > 1 {
			delay = time.Duration(float64(delay) * p.Backoff)
		}
	}
	return err
}

// Each runs fn exactly Attempts times with Delay between runs, ignoring
// individual failures. It returns the number of successful runs.
func (p Policy) Each(ctx context.Context, fn func(attempt int) error) int {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	ok := 0
	for i := 1; i <= attempts; i++ {
		if fn(i) == nil {
			ok++
		}
		if i < attempts {
			if sleep(ctx, p.Delay) != nil {
				break
			}
		}
	}
	return ok
}
