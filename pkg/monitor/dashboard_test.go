package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/pool"
)

func TestRecommendationsForStressedPool(t *testing.T) {
	recs := recommendations(pool.PoolMetrics{
		TotalConnections:  10,
		IdleConnections:   1,
		ActiveConnections: 9,
		WaitingClients:    8,
		TotalQueries:      100,
		FailedQueries:     10,
		AverageQueryTime:  1500,
	}, nil)

	require.Len(t, recs, 4)
	require.Contains(t, recs[0], "increasing the maximum pool size")
	require.Contains(t, recs[1], "Review slow queries")
	require.Contains(t, recs[2], "Investigate query failures")
	require.Contains(t, recs[3], "queueing for connections")
}

func TestRecommendationsForHealthyPool(t *testing.T) {
	recs := recommendations(pool.PoolMetrics{
		TotalConnections:  10,
		IdleConnections:   8,
		ActiveConnections: 2,
		TotalQueries:      100,
		FailedQueries:     1,
		AverageQueryTime:  12,
	}, nil)

	require.Equal(t, []string{"Pool is operating within normal parameters"}, recs)
}

func TestRecentCriticalAlertAddsRecommendation(t *testing.T) {
	alerts := []Alert{
		{Type: AlertCircuitBreaker, Severity: SeverityCritical, Timestamp: time.Now().Add(-10 * time.Minute)},
	}
	recs := recommendations(pool.PoolMetrics{}, alerts)
	require.Len(t, recs, 1)
	require.Contains(t, recs[0], "critical alerts")
}

func TestOldOrResolvedCriticalAlertsAreIgnored(t *testing.T) {
	old := Alert{Type: AlertCircuitBreaker, Severity: SeverityCritical,
		Timestamp: time.Now().Add(-2 * time.Hour)}
	ts := time.Now()
	resolved := Alert{Type: AlertErrorRate, Severity: SeverityCritical,
		Timestamp: time.Now().Add(-5 * time.Minute), Resolved: true, ResolvedAt: &ts}

	recs := recommendations(pool.PoolMetrics{}, []Alert{old, resolved})
	require.Equal(t, []string{"Pool is operating within normal parameters"}, recs)
}

func TestDashboardWithoutStoreUsesMemoryAndEmptyTrends(t *testing.T) {
	fp := &fakePool{
		slow:   []pool.QueryMetrics{{Query: "SELECT pg_sleep(2)", DurationMS: 2000, Success: true}},
		failed: []pool.QueryMetrics{{Query: "SELECT broken", Error: "syntax error"}},
	}
	fp.setMetrics(pool.PoolMetrics{TotalConnections: 10, IdleConnections: 8, ActiveConnections: 2})
	m := New(fp, nil, Config{}, zaptest.NewLogger(t))

	m.alerts.Create(AlertHighLatency, SeverityMedium, "slow", nil)

	d := m.Dashboard(context.Background())
	require.Len(t, d.Alerts, 1)
	require.Empty(t, d.Trends)
	require.Len(t, d.SlowQueries, 1)
	require.Len(t, d.FailedQueries, 1)
	require.Equal(t, 10, d.CurrentMetrics.TotalConnections)
	require.NotEmpty(t, d.Recommendations)
}

func TestDashboardPrefersAvailableStoreOverMemory(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := NewMetricsStore(startRedisStub(t), "", 0, logger)
	require.True(t, store.Connect(context.Background()))
	defer store.Close()

	fp := &fakePool{}
	m := New(fp, store, Config{}, logger)
	m.alerts.mu.Lock()
	m.alerts.history = append(m.alerts.history, &Alert{
		ID: "mem-1", Type: AlertHighLatency, Severity: SeverityMedium, Timestamp: time.Now(),
	})
	m.alerts.mu.Unlock()

	// the store is reachable and empty; in-memory history must not leak in
	d := m.Dashboard(context.Background())
	require.Empty(t, d.Alerts)
	require.NotNil(t, d.Alerts)
}

func TestBuildTrends(t *testing.T) {
	base := time.Now()
	snaps := []Snapshot{
		{Timestamp: base, Metrics: pool.PoolMetrics{
			ActiveConnections: 2, IdleConnections: 8, AverageQueryTime: 10,
			TotalQueries: 100, FailedQueries: 5,
		}},
		{Timestamp: base.Add(time.Minute), Metrics: pool.PoolMetrics{
			ActiveConnections: 4, IdleConnections: 6, AverageQueryTime: 20,
			TotalQueries: 200, FailedQueries: 10,
		}},
	}

	trends := buildTrends(snaps)
	require.Len(t, trends["activeConnections"], 2)
	require.Equal(t, 2.0, trends["activeConnections"][0].Value)
	require.Equal(t, 4.0, trends["activeConnections"][1].Value)
	require.Equal(t, 20.0, trends["averageQueryTime"][1].Value)
	require.InDelta(t, 0.05, trends["errorRate"][0].Value, 1e-9)
}
