package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Policy describes an exponential backoff. Zero fields take the defaults:
// 3 attempts starting at 100ms, doubling, capped at 10s, with 10% jitter.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
	Factor   float64
	Jitter   float64
	// Retryable, if set, ends the loop on the first error it rejects.
	Retryable func(error) bool
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Base <= 0 {
		p.Base = 100 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 10 * time.Second
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	if p.Jitter <= 0 {
		p.Jitter = 0.1
	}
	return p
}

// Delay is the pause after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.Base)
	for i := 1; i < attempt && d < float64(p.Max); i++ {
		d *= p.Factor
	}
	d += d * p.Jitter * (2*rand.Float64() - 1)
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	if d < 0 {
		d = float64(p.Base)
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, the policy is exhausted, Retryable
// rejects the error, or ctx is done. The last error from fn is wrapped in
// the returned error.
func Retry(ctx context.Context, op string, p Policy, fn func() error) error {
	p = p.withDefaults()
	log := slog.Default().With("component", "retry", "op", op)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				log.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt >= p.Attempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", op, attempt, err)
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return fmt.Errorf("%s: %w", op, err)
		}

		delay := p.Delay(attempt)
		log.Warn("attempt failed", "attempt", attempt, "of", p.Attempts, "error", err, "backoff", delay)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), err)
		}
	}
}
