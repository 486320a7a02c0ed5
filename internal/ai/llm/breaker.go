package llm

import (
	"sync"
	"time"

	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/metrics"
)

// BreakerState is a snapshot of the breaker.
type BreakerState struct {
	FailureCount    int
	LastFailureTime time.Time
	IsOpen          bool
}

// Breaker is a failure-count circuit breaker owned by one Client. State is
// per process; separate processes do not share it.
type Breaker struct {
	mu           sync.Mutex
	threshold    int
	resetAfter   time.Duration
	failureCount int
	lastFailure  time.Time
	open         bool
	now          func() time.Time
}

func NewBreaker(threshold int, resetAfter time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{threshold: threshold, resetAfter: resetAfter, now: time.Now}
}

// Allow fails fast while open. Once the cool-down has elapsed the breaker
// closes and the failure count starts over.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}

	elapsed := b.now().Sub(b.lastFailure)
	if elapsed < b.resetAfter {
		return errors.NewCircuitOpenError(b.resetAfter - elapsed)
	}

	b.open = false
	b.failureCount = 0
	metrics.CircuitBreakerOpen.Set(0)
	return nil
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failureCount > 0 {
		b.failureCount--
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.now()
	if b.failureCount >= b.threshold && !b.open {
		b.open = true
		metrics.CircuitBreakerOpen.Set(1)
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerState{
		FailureCount:    b.failureCount,
		LastFailureTime: b.lastFailure,
		IsOpen:          b.open,
	}
}
