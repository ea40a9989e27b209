package util

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the state of the circuit breaker
type CircuitState string

const (
	CircuitStateClosed   CircuitState = "CLOSED"    // 정상 작동
	CircuitStateOpen     CircuitState = "OPEN"      // 서비스 차단
	CircuitStateHalfOpen CircuitState = "HALF_OPEN" // 복구 시도 중
)

func (s CircuitState) String() string {
	return string(s)
}

// CircuitBreaker stops sending work to a provider after consecutive service
// failures. It never retries on its own; an OPEN circuit only makes the next
// call fail fast until the timeout elapses, after which one probe call is let
// through (HALF_OPEN).
type CircuitBreaker struct {
	name             string
	state            CircuitState
	failureCount     int
	failureThreshold int
	resetTimeout     time.Duration
	nextRetryTime    time.Time
	now              func() time.Time
	logger           *zap.Logger
	mu               sync.Mutex
}

func NewCircuitBreaker(name string, failureThreshold int, resetTimeout time.Duration, logger *zap.Logger) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	return &CircuitBreaker{
		name:             name,
		state:            CircuitStateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
		logger:           logger,
	}
}

// GetState returns the current circuit state, promoting OPEN to HALF_OPEN once
// the retry time has passed.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitStateOpen && !cb.now().Before(cb.nextRetryTime) {
		cb.transitionTo(CircuitStateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) CanExecute() bool {
	return cb.GetState() != CircuitStateOpen
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitStateHalfOpen {
		cb.logger.Info("Circuit Breaker: Service recovered, transitioning to CLOSED",
			zap.String("breaker", cb.name),
		)
		cb.transitionTo(CircuitStateClosed)
	}
	cb.failureCount = 0
}

// RecordFailure counts a service failure. customTimeout overrides the reset
// timeout when positive (rate limits wait longer).
func (cb *CircuitBreaker) RecordFailure(customTimeout time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++

	timeout := cb.resetTimeout
	if customTimeout > 0 {
		timeout = customTimeout
	}

	cb.logger.Warn("Circuit Breaker: Failure recorded",
		zap.String("breaker", cb.name),
		zap.Int("count", cb.failureCount),
		zap.Int("threshold", cb.failureThreshold),
		zap.Duration("timeout", timeout),
	)

	if cb.state == CircuitStateHalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.nextRetryTime = cb.now().Add(timeout)
		cb.transitionTo(CircuitStateOpen)
	}
}

// transitionTo must be called with the lock held.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	oldState := cb.state
	cb.state = newState

	nextRetry := "n/a"
	if newState == CircuitStateOpen {
		nextRetry = cb.nextRetryTime.Format(time.RFC3339)
	}

	cb.logger.Info("Circuit Breaker: State transition",
		zap.String("breaker", cb.name),
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
		zap.Int("failure_count", cb.failureCount),
		zap.String("next_retry", nextRetry),
	)
}

func (cb *CircuitBreaker) GetStatus() CircuitBreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	status := CircuitBreakerStatus{
		State:        cb.state,
		FailureCount: cb.failureCount,
	}
	if cb.state == CircuitStateOpen {
		next := cb.nextRetryTime
		status.NextRetryTime = &next
	}
	return status
}

type CircuitBreakerStatus struct {
	State         CircuitState
	FailureCount  int
	NextRetryTime *time.Time
}
