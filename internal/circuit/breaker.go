package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/gdrivefs/gdrivefs/pkg/errors"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed - remote calls pass through
	StateClosed State = iota
	// StateOpen - remote calls are rejected without reaching the provider
	StateOpen
	// StateHalfOpen - a limited number of probe calls test whether the provider recovered
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config contains circuit breaker configuration
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// MaxRequests is the number of probe calls allowed while half-open
	MaxRequests uint32 `yaml:"max_requests"`

	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration `yaml:"timeout"`

	// ReadyToTrip overrides the consecutive-failure rule
	ReadyToTrip func(counts Counts) bool `yaml:"-"`

	// OnStateChange is called on every transition
	OnStateChange func(name string, from State, to State) `yaml:"-"`

	// IsSuccessful decides whether err counts against the provider
	IsSuccessful func(err error) bool `yaml:"-"`

	// Now is the clock; nil uses time.Now
	Now func() time.Time `yaml:"-"`
}

// Counts holds the numbers of requests and their successes/failures
type Counts struct {
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
}

// CircuitBreaker guards a remote provider against repeated calls while it is failing
type CircuitBreaker struct {
	name   string
	config Config

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// NewCircuitBreaker creates a new circuit breaker instance
func NewCircuitBreaker(name string, config Config) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ReadyToTrip == nil {
		threshold := config.FailureThreshold
		config.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		}
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultIsSuccessful
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
}

// defaultIsSuccessful treats a missing object as a healthy answer from the provider.
func defaultIsSuccessful(err error) bool {
	return err == nil || errors.IsNotFound(err)
}

// Execute runs fn if the breaker allows it
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteWithContext(context.Background(), func(context.Context) error {
		return fn()
	})
}

// ExecuteWithContext runs fn with ctx if the breaker allows it. A rejected
// call returns a CIRCUIT_OPEN error and fn is not invoked.
func (cb *CircuitBreaker) ExecuteWithContext(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.currentState(cb.config.Now())

	if state == StateOpen {
		return errors.NewError(errors.ErrCodeCircuitOpen, "circuit breaker is open").
			WithComponent(cb.name)
	}
	if state == StateHalfOpen && cb.counts.Requests >= cb.config.MaxRequests {
		return errors.NewError(errors.ErrCodeCircuitOpen, "too many requests in half-open state").
			WithComponent(cb.name)
	}

	cb.counts.Requests++
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.Now()
	state := cb.currentState(now)

	if cb.config.IsSuccessful(err) {
		cb.counts.onSuccess()
		if state == StateHalfOpen {
			cb.setState(StateClosed, now)
		}
		return
	}

	cb.counts.onFailure()
	switch state {
	case StateClosed:
		if cb.config.ReadyToTrip(cb.counts) {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

func (cb *CircuitBreaker) currentState(now time.Time) State {
	if cb.state == StateOpen && !cb.expiry.After(now) {
		cb.setState(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.counts = Counts{}

	if state == StateOpen {
		cb.expiry = now.Add(cb.config.Timeout)
	} else {
		cb.expiry = time.Time{}
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, state)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.currentState(cb.config.Now())
}

// GetCounts returns a copy of the current counts
func (cb *CircuitBreaker) GetCounts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.counts
}

// Reset closes the breaker and clears its counts
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed, cb.config.Now())
	cb.counts = Counts{}
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}
