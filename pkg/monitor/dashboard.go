package monitor

import (
	"context"
	"time"

	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/pool"
)

// TrendPoint is one sampled value in a per-metric time series.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Dashboard is the aggregated view assembled on demand.
type Dashboard struct {
	CurrentMetrics  pool.PoolMetrics        `json:"currentMetrics"`
	Alerts          []Alert                 `json:"alerts"`
	Trends          map[string][]TrendPoint `json:"trends"`
	SlowQueries     []pool.QueryMetrics     `json:"slowQueries"`
	FailedQueries   []pool.QueryMetrics     `json:"failedQueries"`
	Recommendations []string                `json:"recommendations"`
}

const (
	dashboardWindow     = time.Hour * 24
	dashboardQueryLimit = 10
	slowQueryFloorMS    = 1000
)

// Dashboard assembles current metrics, the last 24h of alerts (store
// when available, in-memory history otherwise), trends, slow/failed
// queries and recommendations.
func (m *Monitor) Dashboard(ctx context.Context) Dashboard {
	cur := m.pool.Metrics()
	since := time.Now().Add(-dashboardWindow)

	var alerts []Alert
	if m.store != nil && m.store.Available() {
		alerts = m.store.AlertsSince(ctx, since)
	}
	if alerts == nil {
		alerts = m.alerts.Since(since)
	}

	trends := map[string][]TrendPoint{}
	if m.store != nil && m.store.Available() {
		trends = buildTrends(m.store.SnapshotsSince(ctx, since))
	}

	return Dashboard{
		CurrentMetrics:  cur,
		Alerts:          alerts,
		Trends:          trends,
		SlowQueries:     m.pool.SlowQueries(slowQueryFloorMS, dashboardQueryLimit),
		FailedQueries:   m.pool.FailedQueries(dashboardQueryLimit),
		Recommendations: recommendations(cur, alerts),
	}
}

func buildTrends(snaps []Snapshot) map[string][]TrendPoint {
	trends := map[string][]TrendPoint{}
	add := func(name string, ts time.Time, v float64) {
		trends[name] = append(trends[name], TrendPoint{Timestamp: ts, Value: v})
	}
	for _, s := range snaps {
		m := s.Metrics
		add("activeConnections", s.Timestamp, float64(m.ActiveConnections))
		add("idleConnections", s.Timestamp, float64(m.IdleConnections))
		add("waitingClients", s.Timestamp, float64(m.WaitingClients))
		add("averageQueryTime", s.Timestamp, m.AverageQueryTime)
		var rate float64
		if m.TotalQueries > 0 {
			rate = float64(m.FailedQueries) / float64(m.TotalQueries)
		}
		add("errorRate", s.Timestamp, rate)
	}
	return trends
}

// recommendations derives deterministic suggestions from the current
// snapshot and recent alerts. The trigger values are fixed rules of
// thumb, independent of the configured thresholds.
func recommendations(m pool.PoolMetrics, alerts []Alert) []string {
	var recs []string

	if m.TotalConnections > 0 &&
		float64(m.ActiveConnections)/float64(m.TotalConnections) > 0.8 {
		recs = append(recs, "Consider increasing the maximum pool size: connection utilization is high")
	}
	if m.AverageQueryTime > 1000 {
		recs = append(recs, "Review slow queries and consider adding indexes: average query time exceeds 1s")
	}
	if m.TotalQueries > 0 &&
		float64(m.FailedQueries)/float64(m.TotalQueries) > 0.05 {
		recs = append(recs, "Investigate query failures: error rate exceeds 5%")
	}
	if m.WaitingClients > 5 {
		recs = append(recs, "Clients are queueing for connections: tune pool sizing or reduce query latency")
	}

	cutoff := time.Now().Add(-time.Hour)
	for _, a := range alerts {
		if a.Severity == SeverityCritical && !a.Resolved && a.Timestamp.After(cutoff) {
			recs = append(recs, "Address critical alerts raised within the last hour")
			break
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "Pool is operating within normal parameters")
	}
	return recs
}
