package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is the position of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned by Execute when the breaker refuses a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	Name string
	// MaxFailures is the run of consecutive failures that opens the
	// circuit. Defaults to 5.
	MaxFailures int
	// Timeout is how long the circuit stays open before probing.
	// Defaults to 30s.
	Timeout time.Duration
	// HalfOpenMaxCalls is the number of probes admitted while half-open.
	// All of them must succeed to close the circuit. Defaults to 1.
	HalfOpenMaxCalls int
	// OnStateChange is called after every transition, outside the
	// breaker's lock.
	OnStateChange func(name string, from, to State)
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// CircuitBreaker gates calls to one backend. Callers that cannot wrap the
// call in a function ask Allow first and report the outcome with Record.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int       // consecutive failures while closed
	openedAt  time.Time // when the circuit last opened
	probes    int       // probes admitted in this half-open period
	succeeded int       // probes that succeeded in this half-open period
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// State returns the current state. An open circuit whose timeout elapsed
// reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	s, fire := cb.refresh()
	cb.mu.Unlock()
	fire()
	return s
}

// Failures returns the current run of consecutive failures.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Allow reports whether a call may go ahead. While half-open every true
// result takes one of the HalfOpenMaxCalls probe slots.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	s, fire := cb.refresh()
	ok := false
	switch s {
	case StateClosed:
		ok = true
	case StateHalfOpen:
		if cb.probes < cb.cfg.HalfOpenMaxCalls {
			cb.probes++
			ok = true
		}
	}
	cb.mu.Unlock()
	fire()
	return ok
}

// Record reports the outcome of a call admitted by Allow. A nil err is a
// success.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	s, fire := cb.refresh()
	var next func()
	switch {
	case err == nil && s == StateClosed:
		cb.failures = 0
	case err == nil && s == StateHalfOpen:
		cb.succeeded++
		if cb.succeeded >= cb.cfg.HalfOpenMaxCalls {
			next = cb.transition(StateClosed)
		}
	case err != nil && s == StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			next = cb.transition(StateOpen)
		}
	case err != nil && s == StateHalfOpen:
		next = cb.transition(StateOpen)
	}
	cb.mu.Unlock()
	fire()
	if next != nil {
		next()
	}
}

// Forget settles a call admitted by Allow whose outcome says nothing about
// the backend, such as one the caller cancelled. A half-open probe slot it
// held is handed back.
func (cb *CircuitBreaker) Forget() {
	cb.mu.Lock()
	s, fire := cb.refresh()
	if s == StateHalfOpen && cb.probes > cb.succeeded {
		cb.probes--
	}
	cb.mu.Unlock()
	fire()
}

// Execute runs fn if the breaker allows it and records the result.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.Record(err)
	return err
}

// Reset closes the circuit and forgets all counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	fire := cb.transition(StateClosed)
	cb.failures = 0
	cb.mu.Unlock()
	fire()
}

// refresh moves an expired open circuit to half-open. Callers hold mu and
// invoke the returned hook after releasing it.
func (cb *CircuitBreaker) refresh() (State, func()) {
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.Timeout {
		return StateHalfOpen, cb.transition(StateHalfOpen)
	}
	return cb.state, func() {}
}

func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	if from == to {
		return func() {}
	}
	cb.state = to
	cb.probes, cb.succeeded = 0, 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
	case StateClosed:
		cb.failures = 0
	}
	hook, name := cb.cfg.OnStateChange, cb.cfg.Name
	return func() {
		if hook != nil {
			hook(name, from, to)
		}
	}
}
