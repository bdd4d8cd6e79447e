package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexdata/ferry/pkg/errors"
)

func failing() error { return errors.New(errors.ErrorTypeConnection, "boom") }

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})

	for i := 0; i < 3; i++ {
		assert.Error(t, cb.Execute(failing))
	}
	assert.Equal(t, "open", cb.GetState().State)

	// calls are rejected without executing fn
	executed := false
	err := cb.Execute(func() error {
		executed = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))
	assert.False(t, executed)
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	require.Error(t, cb.Execute(failing))
	assert.Equal(t, "open", cb.GetState().State)

	time.Sleep(20 * time.Millisecond)

	// half-open probes succeed and close the circuit
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, "half-open", cb.GetState().State)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, "closed", cb.GetState().State)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	require.Error(t, cb.Execute(failing))
	time.Sleep(20 * time.Millisecond)

	require.Error(t, cb.Execute(failing))
	assert.Equal(t, "open", cb.GetState().State)
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	require.Error(t, cb.Execute(failing))
	assert.Equal(t, "open", cb.GetState().State)

	cb.Reset()
	assert.Equal(t, "closed", cb.GetState().State)
	assert.NoError(t, cb.Execute(func() error { return nil }))
}

func TestCircuitBreakerStats(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 10})

	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(failing)

	state := cb.GetState()
	assert.Equal(t, int64(1), state.Successes)
	assert.Equal(t, int64(1), state.Failures)
	assert.Equal(t, 0.5, state.FailureRate)
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	stats := rl.GetStats()
	assert.Equal(t, int64(2), stats.AllowedRequests)
	assert.Equal(t, int64(1), stats.BlockedRequests)
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(100, 1)

	require.NoError(t, rl.Wait(context.Background()))

	// second call must wait roughly one token interval
	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestRateLimiterWaitCancellation(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestRateLimiterZeroRateUnlimited(t *testing.T) {
	rl := NewRateLimiter(10, 1)
	require.True(t, rl.Allow())
	rl.SetRate(0)

	// With the bucket drained and no refill possible, a zero rate must
	// mean unlimited rather than an infinite wait.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Wait(ctx))
		assert.True(t, rl.Allow())
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(1000, 1)
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	time.Sleep(5 * time.Millisecond)
	assert.True(t, rl.Allow())
}
