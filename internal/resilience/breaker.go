// Package resilience guards calls to remote collaborators with a circuit
// breaker, so an unreachable backend is skipped quickly instead of stalling
// every activity round.
//
// [Breaker] is the classic three-state breaker (closed → open → half-open).
// It never retries; callers decide what a rejected call means.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the cool-down elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. A failed
	// probe re-opens the breaker; enough successful probes close it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a [Breaker].
type Config struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close the
	// breaker again. Default: 1.
	Probes int
}

// Option is a functional option for [New].
type Option func(*Breaker)

// WithLogger sets the breaker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) {
		if l != nil {
			b.log = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probes      int
	log         *slog.Logger
	now         func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
}

// New creates a closed [Breaker]. Zero-value config fields take their
// defaults.
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	b := &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probes:      cfg.Probes,
		log:         slog.Default(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Do runs fn unless the breaker is open. A failure of fn counts against the
// breaker unless it is the caller's own context ending.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.inFlight--
	}
	switch {
	case err == nil:
		b.succeeded(probe)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Abandoned by the caller; says nothing about the backend.
	default:
		b.failed(probe, err)
	}
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.log.Info("circuit breaker half-open", "name", b.name)
	}
	if b.state == StateHalfOpen {
		if b.inFlight+b.successes >= b.probes {
			return false, ErrOpen
		}
		b.inFlight++
		return true, nil
	}
	return false, nil
}

// succeeded must be called with b.mu held.
func (b *Breaker) succeeded(probe bool) {
	if !probe {
		b.failures = 0
		return
	}
	if b.state != StateHalfOpen {
		return
	}
	b.successes++
	if b.successes >= b.probes {
		b.state = StateClosed
		b.failures = 0
		b.log.Info("circuit breaker closed", "name", b.name)
	}
}

// failed must be called with b.mu held.
func (b *Breaker) failed(probe bool, err error) {
	if probe || b.state == StateHalfOpen {
		b.trip("probe failed", err)
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.maxFailures {
		b.trip("too many failures", err)
	}
}

func (b *Breaker) trip(reason string, err error) {
	b.state = StateOpen
	b.openedAt = b.now()
	b.successes = 0
	b.log.Warn("circuit breaker opened", "name", b.name, "reason", reason, "failures", b.failures, "err", err)
}

// State returns the breaker's state. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen]; the transition happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.log.Info("circuit breaker reset", "name", b.name)
}
