package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := newCircuitBreaker(3, time.Minute, true, zaptest.NewLogger(t))
	var opened int32
	b.onOpen = func() { atomic.AddInt32(&opened, 1) }

	b.recordFailure()
	b.recordFailure()
	require.NoError(t, b.allow())
	require.Equal(t, int32(0), atomic.LoadInt32(&opened))

	b.recordFailure()
	require.ErrorIs(t, b.allow(), ErrCircuitOpen)
	require.Equal(t, int32(1), atomic.LoadInt32(&opened))
	require.Equal(t, 3, b.failureCount())

	// further failures while open do not re-trip
	b.recordFailure()
	require.Equal(t, int32(1), atomic.LoadInt32(&opened))
}

func TestBreakerForceCloseResetsFailures(t *testing.T) {
	b := newCircuitBreaker(1, time.Minute, true, zaptest.NewLogger(t))
	var closed int32
	b.onClose = func() { atomic.AddInt32(&closed, 1) }

	b.recordFailure()
	require.True(t, b.isOpen())

	b.forceClose()
	require.False(t, b.isOpen())
	require.Equal(t, 0, b.failureCount())
	require.Equal(t, int32(1), atomic.LoadInt32(&closed))

	// closing an already-closed breaker has no side effects
	b.forceClose()
	require.Equal(t, int32(1), atomic.LoadInt32(&closed))
}

func TestBreakerRecoveryProbesAtFixedCadence(t *testing.T) {
	b := newCircuitBreaker(1, 10*time.Millisecond, false, zaptest.NewLogger(t))
	var probes int32
	b.probe = func(context.Context) error {
		if atomic.AddInt32(&probes, 1) < 3 {
			return errors.New("still down")
		}
		return nil
	}
	var closed int32
	b.onClose = func() { atomic.AddInt32(&closed, 1) }

	b.recordFailure()
	require.True(t, b.isOpen())

	require.Eventually(t, func() bool { return !b.isOpen() },
		2*time.Second, 5*time.Millisecond)
	require.GreaterOrEqual(t, atomic.LoadInt32(&probes), int32(3))
	require.Equal(t, int32(1), atomic.LoadInt32(&closed))
	require.Equal(t, 0, b.failureCount())
}

func TestBreakerStopCancelsRecovery(t *testing.T) {
	b := newCircuitBreaker(1, 5*time.Millisecond, false, zaptest.NewLogger(t))
	var probes int32
	b.probe = func(context.Context) error {
		atomic.AddInt32(&probes, 1)
		return errors.New("still down")
	}

	b.recordFailure()
	b.stop()
	time.Sleep(50 * time.Millisecond)
	n := atomic.LoadInt32(&probes)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, n, atomic.LoadInt32(&probes))
	require.True(t, b.isOpen())
}
