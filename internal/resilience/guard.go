package resilience

import (
	"context"
	"time"
)

// Guard combines retry and a per-source circuit breaker. A nil *Guard calls
// straight through.
type Guard struct {
	retry    RetryConfig
	breakers *ServiceBreakers
}

// NewGuard creates a guard from explicit configs.
func NewGuard(retry RetryConfig, circuit CircuitBreakerConfig) *Guard {
	return &Guard{retry: retry, breakers: NewServiceBreakers(circuit)}
}

// FromConfig converts plain config values into a Guard. Non-positive values
// keep the defaults.
func FromConfig(maxAttempts, initialBackoffMs, maxBackoffMs, failureThreshold, resetTimeoutSecs int) *Guard {
	retry := DefaultRetryConfig()
	if maxAttempts > 0 {
		retry.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	circuit := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		circuit.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		circuit.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return NewGuard(retry, circuit)
}

// States reports the breaker state of every source called so far.
func (g *Guard) States() map[string]CircuitState {
	if g == nil {
		return map[string]CircuitState{}
	}
	return g.breakers.States()
}

// Call runs fn for source under the guard's breaker and retry policy. Each
// retry attempt passes through the breaker, so a source that keeps failing
// opens its circuit and later calls fail fast.
func Call[T any](ctx context.Context, g *Guard, source string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	cb := g.breakers.Get(source)
	cfg := g.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = RetryLogger(source)
	}
	return DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		return ExecuteVal(ctx, cb, fn)
	})
}
