// Package resilience holds the fault-tolerance helpers used around optional
// backends: a circuit breaker for the shared result cache, backoff retry for
// startup connections and page fetches, and a bounded call wrapper.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// BreakerConfig tunes a Breaker. Zero values take the defaults
// (5 failures, 30s cooldown, 1 trial call).
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// Probes is the number of calls admitted while half-open.
	Probes int
	// Ignore marks errors that pass through without counting as failures.
	Ignore func(error) bool
	// OnChange runs with the breaker lock held.
	OnChange func(name string, from, to State)
}

// Breaker rejects calls to a backend after repeated failures and lets a
// limited number of trial calls through once the cooldown has passed.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "breaker", "name", name),
	}
}

// Do runs fn unless the circuit is open. The error from fn is returned
// unchanged; a rejected call returns an error wrapping ErrCircuitOpen.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the circuit and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%s: %w (retry in %v)", b.name, ErrCircuitOpen, wait.Round(time.Millisecond))
		}
		b.transition(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.probes >= b.cfg.Probes {
			return fmt.Errorf("%s: %w (probe in flight)", b.name, ErrCircuitOpen)
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	if err != nil && b.cfg.Ignore != nil && b.cfg.Ignore(err) {
		err = nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	// Late results from calls admitted before the circuit opened.
	if b.state == StateOpen {
		return
	}
	if err == nil {
		if b.state == StateHalfOpen {
			b.logger.Info("backend recovered")
		}
		b.transition(StateClosed)
		return
	}
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
		b.logger.Warn("circuit opened", "failures", b.failures, "error", err)
		b.transition(StateOpen)
	}
}

// transition resets the per-state counters; the caller holds mu.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.probes = 0
	switch to {
	case StateClosed:
		b.failures = 0
	case StateOpen:
		b.openedAt = b.now()
	}
	if from != to && b.cfg.OnChange != nil {
		b.cfg.OnChange(b.name, from, to)
	}
}
