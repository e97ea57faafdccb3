// Package circuitbreaker guards calls to optional dependencies. After a run
// of failures the breaker opens and rejects calls without running them; once
// the cool-down passes a single probe decides whether it closes again.
//
// The Redis user cache uses it so a dead Redis costs one fast rejection per
// lookup instead of a dial timeout.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
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

var (
	// ErrCircuitOpen rejects calls while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrProbeInFlight rejects calls while a half-open probe is running.
	ErrProbeInFlight = errors.New("circuit breaker probe in flight")
)

// IsRejected reports whether err came from the breaker rather than the call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrProbeInFlight)
}

type settings struct {
	failureThreshold int
	successThreshold int
	coolDown         time.Duration
	onStateChange    func(name string, from, to State)
	isFailure        func(error) bool
}

// Option configures a breaker.
type Option func(*settings)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many successful probes close it again.
func WithSuccessThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.successThreshold = n
		}
	}
}

// WithTimeout sets how long the breaker stays open before probing.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.coolDown = d
		}
	}
}

// WithOnStateChange registers a transition callback. It runs with the
// breaker locked and must not call back into it.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(s *settings) { s.onStateChange = fn }
}

// WithIsFailure decides which errors count against the breaker; errors it
// rejects are recorded as successes.
func WithIsFailure(fn func(error) bool) Option {
	return func(s *settings) { s.isFailure = fn }
}

// Counts are cumulative except for the consecutive counters, which reset on
// every state change.
type Counts struct {
	Requests             int
	Successes            int
	Failures             int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	name string
	cfg  settings
	now  func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	probing  bool
	// generation changes on every transition so results of calls started
	// under an older state are dropped.
	generation uint64
}

// New creates a closed breaker. Defaults: 5 failures, 1 success, 30s.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := settings{failureThreshold: 5, successThreshold: 1, coolDown: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the breaker rejects it, and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	gen, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(gen, err)
	return err
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.coolDown {
			return 0, ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probing {
			return 0, ErrProbeInFlight
		}
		cb.probing = true
	}
	return cb.generation, nil
}

func (cb *CircuitBreaker) record(gen uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.Requests++
	failed := err != nil && (cb.cfg.isFailure == nil || cb.cfg.isFailure(err))
	if failed {
		cb.counts.Failures++
	} else {
		cb.counts.Successes++
	}
	if gen != cb.generation {
		return
	}

	if failed {
		cb.counts.ConsecutiveFailures++
		cb.counts.ConsecutiveSuccesses = 0
		if cb.state == StateHalfOpen || cb.counts.ConsecutiveFailures >= cb.cfg.failureThreshold {
			cb.openedAt = cb.now()
			cb.transition(StateOpen)
		}
		return
	}

	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0
	if cb.state == StateHalfOpen {
		cb.probing = false
		if cb.counts.ConsecutiveSuccesses >= cb.cfg.successThreshold {
			cb.transition(StateClosed)
		}
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.generation++
	cb.probing = false
	cb.counts.ConsecutiveFailures = 0
	cb.counts.ConsecutiveSuccesses = 0
	if cb.cfg.onStateChange != nil {
		cb.cfg.onStateChange(cb.name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has
// passed still reports open until the next call probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a copy of the counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the breaker and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.counts = Counts{}
}
