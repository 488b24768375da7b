// Package resilience provides fault-tolerance patterns for the terminal
// link: a circuit breaker around the bridge and a non-queuing bulkhead for
// the single in-flight attempt.
package resilience

import (
	"time"

	"github.com/sony/gobreaker"
)

// Config holds circuit breaker parameters.
type Config struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before half-open.
	OpenTimeout time.Duration
	// OnStateChange is called on every state transition. Optional.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns settings suited to a single attended terminal.
func DefaultConfig() Config {
	return Config{
		ConsecutiveFailures: 3,
		OpenTimeout:         15 * time.Second,
	}
}

// NewCircuitBreaker creates a circuit breaker for the named resource.
func NewCircuitBreaker(name string, cfg Config) *gobreaker.CircuitBreaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultConfig().ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultConfig().OpenTimeout
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,                // half-open: one probe dispatch
		Interval:    60 * time.Second, // closed: reset counters every 60s
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: cfg.OnStateChange,
	})
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// TryAcquire takes a slot without waiting. It reports false when full.
func (b *Bulkhead) TryAcquire() bool {
	select {
	case b.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot. Releasing an empty bulkhead is a no-op.
func (b *Bulkhead) Release() {
	select {
	case <-b.sem:
	default:
	}
}

// InUse returns the number of held slots.
func (b *Bulkhead) InUse() int {
	return len(b.sem)
}
