package monitor

import (
	"fmt"
	"sync"

	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/pool"
)

// Thresholds configure the evaluator. Immutable after construction.
type Thresholds struct {
	// MaxConnectionUtilization is a fraction of total connections (0-1).
	MaxConnectionUtilization float64
	// MaxAverageQueryTime is in milliseconds.
	MaxAverageQueryTime float64
	// MaxErrorRate is failed/total queries (0-1).
	MaxErrorRate      float64
	MaxWaitingClients int
	// MinHealthCheckSuccess is evaluated over the last 10 checks, only
	// once at least 5 samples exist.
	MinHealthCheckSuccess float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxConnectionUtilization: 0.8,
		MaxAverageQueryTime:      1000,
		MaxErrorRate:             0.05,
		MaxWaitingClients:        5,
		MinHealthCheckSuccess:    0.9,
	}
}

const (
	healthWindowSize       = 10
	healthWindowMinSamples = 5
)

// evaluator compares one metrics snapshot per tick against the
// thresholds and raises alerts. It never resolves anything; resolution
// for breaker and health-check alerts comes from pool events.
type evaluator struct {
	thresholds Thresholds
	alerts     *AlertManager

	mu           sync.Mutex
	healthWindow []bool
}

func newEvaluator(t Thresholds, alerts *AlertManager) *evaluator {
	return &evaluator{thresholds: t, alerts: alerts}
}

func (e *evaluator) recordHealthSample(ok bool) {
	e.mu.Lock()
	e.healthWindow = append(e.healthWindow, ok)
	if len(e.healthWindow) > healthWindowSize {
		e.healthWindow = e.healthWindow[len(e.healthWindow)-healthWindowSize:]
	}
	e.mu.Unlock()
}

// healthSuccessRate reports passes/samples over the rolling window and
// whether enough samples exist to judge.
func (e *evaluator) healthSuccessRate() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.healthWindow)
	if n < healthWindowMinSamples {
		return 0, false
	}
	passes := 0
	for _, ok := range e.healthWindow {
		if ok {
			passes++
		}
	}
	return float64(passes) / float64(n), true
}

// evaluate runs every check independently; a single tick may raise
// zero, one or several alerts of different types.
func (e *evaluator) evaluate(m pool.PoolMetrics) {
	t := e.thresholds

	if m.TotalConnections > 0 {
		util := float64(m.ActiveConnections) / float64(m.TotalConnections)
		if util > t.MaxConnectionUtilization {
			sev := SeverityHigh
			if util > 0.95 {
				sev = SeverityCritical
			}
			e.alerts.Create(AlertConnectionShortage, sev,
				fmt.Sprintf("connection utilization at %.1f%% exceeds %.1f%%",
					util*100, t.MaxConnectionUtilization*100),
				map[string]float64{"utilization": util})
		}
	}

	if m.AverageQueryTime > t.MaxAverageQueryTime {
		sev := SeverityMedium
		if m.AverageQueryTime > t.MaxAverageQueryTime*2 {
			sev = SeverityHigh
		}
		e.alerts.Create(AlertHighLatency, sev,
			fmt.Sprintf("average query time %.1fms exceeds %.1fms",
				m.AverageQueryTime, t.MaxAverageQueryTime),
			map[string]float64{"averageQueryTime": m.AverageQueryTime})
	}

	var errorRate float64
	if m.TotalQueries > 0 {
		errorRate = float64(m.FailedQueries) / float64(m.TotalQueries)
	}
	if errorRate > t.MaxErrorRate {
		sev := SeverityMedium
		if errorRate > t.MaxErrorRate*2 {
			sev = SeverityHigh
		}
		e.alerts.Create(AlertErrorRate, sev,
			fmt.Sprintf("query error rate %.2f%% exceeds %.2f%%",
				errorRate*100, t.MaxErrorRate*100),
			map[string]float64{"errorRate": errorRate})
	}

	if m.WaitingClients > t.MaxWaitingClients {
		sev := SeverityMedium
		if m.WaitingClients > t.MaxWaitingClients*2 {
			sev = SeverityHigh
		}
		e.alerts.Create(AlertConnectionShortage, sev,
			fmt.Sprintf("%d clients waiting for connections exceeds %d",
				m.WaitingClients, t.MaxWaitingClients),
			map[string]float64{"waitingClients": float64(m.WaitingClients)})
	}

	if rate, enough := e.healthSuccessRate(); enough && rate < t.MinHealthCheckSuccess {
		sev := SeverityHigh
		if rate < 0.5 {
			sev = SeverityCritical
		}
		e.alerts.Create(AlertHealthCheckFailed, sev,
			fmt.Sprintf("health check success rate %.0f%% below %.0f%%",
				rate*100, t.MinHealthCheckSuccess*100),
			map[string]float64{"successRate": rate})
	}
}
