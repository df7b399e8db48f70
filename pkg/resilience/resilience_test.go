package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("fail")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := NewBreaker("test", cfg)
	b.now = clock.now
	return b, clock
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	var transitions []string
	b, clock := newTestBreaker(BreakerConfig{
		Threshold: 2,
		Cooldown:  time.Second,
		OnChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return errFail }); !errors.Is(err, errFail) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker should reject without calling, err = %v", err)
	}

	clock.advance(time.Second)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("half-open trial call: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second})
	_ = b.Do(func() error { return errFail })
	clock.advance(2 * time.Second)
	_ = b.Do(func() error { return errFail })
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open", b.State())
	}
	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state after Reset = %v", b.State())
	}
}

func TestBreakerSingleProbe(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second})
	_ = b.Do(func() error { return errFail })
	clock.advance(time.Second)

	err := b.Do(func() error {
		if err := b.Do(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("second trial call err = %v, want ErrCircuitOpen", err)
		}
		return nil
	})
	if err != nil || b.State() != StateClosed {
		t.Errorf("err = %v, state = %v", err, b.State())
	}
}

func TestBreakerIgnoredErrors(t *testing.T) {
	errMiss := errors.New("miss")
	b, _ := newTestBreaker(BreakerConfig{Threshold: 1, Ignore: func(err error) bool { return errors.Is(err, errMiss) }})
	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errMiss }); !errors.Is(err, errMiss) {
			t.Fatalf("err = %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("ignored errors opened the circuit")
	}
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.1}.withDefaults()
	tests := []struct {
		attempt int
		lo, hi  time.Duration
	}{
		{1, 90 * time.Millisecond, 110 * time.Millisecond},
		{2, 180 * time.Millisecond, 220 * time.Millisecond},
		{3, 360 * time.Millisecond, 440 * time.Millisecond},
		{10, 900 * time.Millisecond, time.Second},
	}
	for _, tt := range tests {
		if d := p.Delay(tt.attempt); d < tt.lo || d > tt.hi {
			t.Errorf("Delay(%d) = %v, want [%v, %v]", tt.attempt, d, tt.lo, tt.hi)
		}
	}
}

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "op", Policy{Attempts: 4, Base: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errFail
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Errorf("err = %v, attempts = %d", err, attempts)
	}
}

func TestRetryExhausts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "op", Policy{Attempts: 3, Base: time.Millisecond}, func() error {
		attempts++
		return errFail
	})
	if !errors.Is(err, errFail) || attempts != 3 {
		t.Errorf("err = %v, attempts = %d", err, attempts)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "op", Policy{
		Attempts:  5,
		Base:      time.Millisecond,
		Retryable: func(error) bool { return false },
	}, func() error {
		attempts++
		return errFail
	})
	if !errors.Is(err, errFail) || attempts != 1 {
		t.Errorf("err = %v, attempts = %d", err, attempts)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "op", Policy{Attempts: 5, Base: time.Second}, func() error {
		return errFail
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWithTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		fn      func(ctx context.Context) error
		want    error
	}{
		{"fast", time.Second, func(context.Context) error { return nil }, nil},
		{"fn error", time.Second, func(context.Context) error { return errFail }, errFail},
		{"no limit", 0, func(context.Context) error { return errFail }, errFail},
		{"slow", 10 * time.Millisecond, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithTimeout(context.Background(), tt.timeout, "op", tt.fn)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
