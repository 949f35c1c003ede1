package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestAlertManager(t *testing.T) *AlertManager {
	t.Helper()
	return NewAlertManager(nil, zaptest.NewLogger(t))
}

func TestCreateAssignsIdentityAndDefaults(t *testing.T) {
	m := newTestAlertManager(t)
	a := m.Create(AlertHighLatency, SeverityMedium, "average query time 1500.0ms exceeds 1000.0ms",
		map[string]float64{"averageQueryTime": 1500})

	require.NotEmpty(t, a.ID)
	require.Contains(t, a.ID, string(AlertHighLatency))
	require.False(t, a.Resolved)
	require.Nil(t, a.ResolvedAt)
	require.WithinDuration(t, time.Now(), a.Timestamp, time.Second)
	require.Equal(t, 1500.0, a.Metrics["averageQueryTime"])
}

func TestCreateDeduplicatesUnresolvedSameTypeAndSeverity(t *testing.T) {
	m := newTestAlertManager(t)
	first := m.Create(AlertErrorRate, SeverityHigh, "first", nil)
	second := m.Create(AlertErrorRate, SeverityHigh, "second", nil)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, m.Active(), 1)

	// a different severity of the same type is a distinct alert
	third := m.Create(AlertErrorRate, SeverityMedium, "third", nil)
	require.NotEqual(t, first.ID, third.ID)
	require.Len(t, m.Active(), 2)
}

func TestResolveTypeResolvesAllAsBatch(t *testing.T) {
	m := newTestAlertManager(t)
	m.Create(AlertCircuitBreaker, SeverityCritical, "open", nil)
	m.Create(AlertCircuitBreaker, SeverityHigh, "open again", nil)
	m.Create(AlertHighLatency, SeverityMedium, "slow", nil)

	n := m.ResolveType(AlertCircuitBreaker)
	require.Equal(t, 2, n)

	for _, a := range m.Active() {
		require.NotEqual(t, AlertCircuitBreaker, a.Type)
	}
	require.Len(t, m.Active(), 1)

	// nothing left to resolve
	require.Equal(t, 0, m.ResolveType(AlertCircuitBreaker))
}

func TestResolveByID(t *testing.T) {
	m := newTestAlertManager(t)
	a := m.Create(AlertConnectionShortage, SeverityHigh, "shortage", nil)

	require.True(t, m.Resolve(a.ID))
	require.Empty(t, m.Active())

	// already resolved and unknown ids both return false
	require.False(t, m.Resolve(a.ID))
	require.False(t, m.Resolve("no-such-alert"))
	require.Len(t, m.Since(time.Now().Add(-time.Hour)), 1)
}

func TestHistoryIsBounded(t *testing.T) {
	m := newTestAlertManager(t)
	for i := 0; i < alertHistoryCapacity+50; i++ {
		a := m.Create(AlertHighLatency, SeverityMedium, "slow", nil)
		m.Resolve(a.ID) // resolve so the next create is not deduplicated
	}
	require.Len(t, m.Since(time.Time{}), alertHistoryCapacity)
}

func TestSubscribersAreNotified(t *testing.T) {
	m := newTestAlertManager(t)
	var mu sync.Mutex
	var created, resolved []string
	m.OnAlert(func(a Alert) {
		mu.Lock()
		created = append(created, a.ID)
		mu.Unlock()
	})
	m.OnResolved(func(a Alert) {
		mu.Lock()
		resolved = append(resolved, a.ID)
		mu.Unlock()
	})

	a := m.Create(AlertErrorRate, SeverityHigh, "errors", nil)
	b := m.Create(AlertErrorRate, SeverityMedium, "more errors", nil)
	m.ResolveType(AlertErrorRate)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{a.ID, b.ID}, created)
	require.ElementsMatch(t, []string{a.ID, b.ID}, resolved)
}
