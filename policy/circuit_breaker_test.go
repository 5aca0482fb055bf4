package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerTransitions(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Window:               200 * time.Millisecond,
		FailureRateThreshold: 0.5,
		MinSamples:           2,
		Cooldown:             100 * time.Millisecond,
		HalfOpenMaxCalls:     1,
	}

	cb := NewCircuitBreaker(OpQuery, cfg, nil)

	now := time.Now()
	require.True(t, cb.Allow(now), "expected allow in closed state")
	cb.Record(now, false)
	cb.Record(now.Add(10*time.Millisecond), false)

	require.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow(now.Add(20*time.Millisecond)), "expected deny while open")

	halfOpenTime := now.Add(cfg.Cooldown + 20*time.Millisecond)
	require.True(t, cb.Allow(halfOpenTime), "expected probe in half-open state")
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.False(t, cb.Allow(halfOpenTime), "expected a single probe")

	cb.Record(halfOpenTime, true)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerReopensOnFailedProbe(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Window:               time.Second,
		FailureRateThreshold: 0.5,
		MinSamples:           1,
		Cooldown:             50 * time.Millisecond,
		HalfOpenMaxCalls:     1,
	}
	cb := NewCircuitBreaker(OpQuery, cfg, nil)

	now := time.Now()
	cb.Record(now, false)
	require.Equal(t, CircuitOpen, cb.State())

	probe := now.Add(60 * time.Millisecond)
	require.True(t, cb.Allow(probe))
	cb.Record(probe, false)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, "open", cb.State().String())
}

func TestCircuitBreakerForgetsOldFailures(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Window:               100 * time.Millisecond,
		FailureRateThreshold: 0.5,
		MinSamples:           2,
		Cooldown:             time.Second,
		HalfOpenMaxCalls:     1,
	}
	cb := NewCircuitBreaker(OpInsert, cfg, nil)

	now := time.Now()
	cb.Record(now, false)
	cb.Record(now.Add(150*time.Millisecond), true)
	cb.Record(now.Add(160*time.Millisecond), true)
	assert.Equal(t, CircuitClosed, cb.State())

	cb.Record(now.Add(170*time.Millisecond), false)
	cb.Record(now.Add(180*time.Millisecond), false)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerReleaseReturnsProbeSlot(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Window:               time.Second,
		FailureRateThreshold: 0.5,
		MinSamples:           1,
		Cooldown:             50 * time.Millisecond,
		HalfOpenMaxCalls:     1,
	}
	cb := NewCircuitBreaker(OpQuery, cfg, nil)

	now := time.Now()
	cb.Record(now, false)

	probe := now.Add(60 * time.Millisecond)
	require.True(t, cb.Allow(probe))
	require.False(t, cb.Allow(probe))

	cb.Release()
	require.True(t, cb.Allow(probe))
	cb.Record(probe, true)
	assert.Equal(t, CircuitClosed, cb.State())
}
