package llm

import (
	"sync"
	"time"

	"chartpilot/internal/logging"
)

// BreakerState represents the circuit breaker state
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards one provider's upstream API. After `threshold`
// consecutive failures the breaker opens for `cooldown`; the first call
// after the cooldown probes in half-open state.
type CircuitBreaker struct {
	mu          sync.Mutex
	name        string
	state       BreakerState
	failures    int
	threshold   int
	cooldown    time.Duration
	lastFailure time.Time
	logger      *logging.Logger
}

// NewCircuitBreaker creates a closed breaker for a named provider
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &CircuitBreaker{
		name:      name,
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logging.WithComponent("llm_breaker"),
	}
}

// Allow reports whether a call may proceed
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.cooldown {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker after a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateClosed)
		cb.failures = 0
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure counts a failed call and opens the breaker at the threshold
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.threshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	cb.state = to
	cb.logger.WithFields(map[string]interface{}{
		"provider": cb.name,
		"from":     from.String(),
		"to":       to.String(),
		"failures": cb.failures,
	}).Warn("circuit breaker state change")
}

// BreakerSet holds one breaker per provider
type BreakerSet struct {
	mu        sync.Mutex
	breakers  map[Provider]*CircuitBreaker
	threshold int
	cooldown  time.Duration
}

// NewBreakerSet creates a lazily populated per-provider breaker set
func NewBreakerSet(threshold int, cooldown time.Duration) *BreakerSet {
	return &BreakerSet{
		breakers:  make(map[Provider]*CircuitBreaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Get returns the breaker for a provider, creating it on first use
func (bs *BreakerSet) Get(provider Provider) *CircuitBreaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	cb, ok := bs.breakers[provider]
	if !ok {
		cb = NewCircuitBreaker(string(provider), bs.threshold, bs.cooldown)
		bs.breakers[provider] = cb
	}
	return cb
}
