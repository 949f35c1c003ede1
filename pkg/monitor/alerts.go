package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertType categorizes a detected condition.
type AlertType string

const (
	AlertConnectionShortage AlertType = "connection_shortage"
	AlertHighLatency        AlertType = "high_latency"
	AlertErrorRate          AlertType = "error_rate"
	AlertCircuitBreaker     AlertType = "circuit_breaker"
	AlertHealthCheckFailed  AlertType = "health_check_failed"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is mutated only by resolution; everything else is fixed at
// creation.
type Alert struct {
	ID         string             `json:"id"`
	Type       AlertType          `json:"type"`
	Severity   Severity           `json:"severity"`
	Message    string             `json:"message"`
	Timestamp  time.Time          `json:"timestamp"`
	Resolved   bool               `json:"resolved"`
	ResolvedAt *time.Time         `json:"resolvedAt,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

const alertHistoryCapacity = 1000

// AlertManager creates, deduplicates and resolves alerts, keeping a
// bounded in-memory history. Persistence to the external store is
// fire-and-forget; a store failure never reaches the caller.
type AlertManager struct {
	store  *MetricsStore
	logger *zap.Logger

	mu      sync.Mutex
	history []*Alert

	cbMu       sync.RWMutex
	onAlert    []func(Alert)
	onResolved []func(Alert)
}

func NewAlertManager(store *MetricsStore, logger *zap.Logger) *AlertManager {
	return &AlertManager{store: store, logger: logger}
}

// OnAlert registers a callback invoked for every created alert.
func (m *AlertManager) OnAlert(fn func(Alert)) {
	m.cbMu.Lock()
	m.onAlert = append(m.onAlert, fn)
	m.cbMu.Unlock()
}

// OnResolved registers a callback invoked once per resolved alert.
func (m *AlertManager) OnResolved(fn func(Alert)) {
	m.cbMu.Lock()
	m.onResolved = append(m.onResolved, fn)
	m.cbMu.Unlock()
}

func newAlertID(t AlertType) string {
	return fmt.Sprintf("%s-%d-%s", t, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Create raises an alert. An unresolved alert with the same type and
// severity deduplicates the new one; the existing alert is returned
// instead. History evicts FIFO at capacity.
func (m *AlertManager) Create(t AlertType, sev Severity, msg string, mx map[string]float64) Alert {
	m.mu.Lock()
	for i := len(m.history) - 1; i >= 0; i-- {
		a := m.history[i]
		if a.Type == t && a.Severity == sev && !a.Resolved {
			existing := *a
			m.mu.Unlock()
			return existing
		}
	}
	a := &Alert{
		ID:        newAlertID(t),
		Type:      t,
		Severity:  sev,
		Message:   msg,
		Timestamp: time.Now(),
		Metrics:   mx,
	}
	if len(m.history) == alertHistoryCapacity {
		copy(m.history, m.history[1:])
		m.history = m.history[:alertHistoryCapacity-1]
	}
	m.history = append(m.history, a)
	created := *a
	m.mu.Unlock()

	m.logger.Warn("alert raised",
		zap.String("id", created.ID),
		zap.String("type", string(created.Type)),
		zap.String("severity", string(created.Severity)),
		zap.String("message", created.Message))
	m.persist(created)
	m.notifyCreated(created)
	return created
}

// ResolveType resolves every unresolved alert of the given type as one
// batch under a single lock, so a concurrent read never observes a torn
// half-resolved state for what was one recovery event.
func (m *AlertManager) ResolveType(t AlertType) int {
	now := time.Now()
	var resolved []Alert
	m.mu.Lock()
	for _, a := range m.history {
		if a.Type == t && !a.Resolved {
			a.Resolved = true
			ts := now
			a.ResolvedAt = &ts
			resolved = append(resolved, *a)
		}
	}
	m.mu.Unlock()

	for _, a := range resolved {
		m.persist(a)
		m.notifyResolved(a)
	}
	if len(resolved) > 0 {
		m.logger.Info("alerts resolved", zap.String("type", string(t)), zap.Int("count", len(resolved)))
	}
	return len(resolved)
}

// Resolve resolves a single alert by id. Returns false when the id is
// unknown or the alert is already resolved.
func (m *AlertManager) Resolve(id string) bool {
	now := time.Now()
	var resolved *Alert
	m.mu.Lock()
	for _, a := range m.history {
		if a.ID == id {
			if a.Resolved {
				break
			}
			a.Resolved = true
			ts := now
			a.ResolvedAt = &ts
			cp := *a
			resolved = &cp
			break
		}
	}
	m.mu.Unlock()

	if resolved == nil {
		return false
	}
	m.persist(*resolved)
	m.notifyResolved(*resolved)
	return true
}

// Active returns copies of all unresolved alerts, oldest first.
func (m *AlertManager) Active() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Alert{}
	for _, a := range m.history {
		if !a.Resolved {
			out = append(out, *a)
		}
	}
	return out
}

// Since returns copies of all alerts created after t, oldest first.
func (m *AlertManager) Since(t time.Time) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Alert{}
	for _, a := range m.history {
		if a.Timestamp.After(t) {
			out = append(out, *a)
		}
	}
	return out
}

func (m *AlertManager) persist(a Alert) {
	if m.store == nil {
		return
	}
	go m.store.SaveAlert(context.Background(), a)
}

func (m *AlertManager) notifyCreated(a Alert) {
	m.cbMu.RLock()
	fns := make([]func(Alert), len(m.onAlert))
	copy(fns, m.onAlert)
	m.cbMu.RUnlock()
	for _, fn := range fns {
		fn(a)
	}
}

func (m *AlertManager) notifyResolved(a Alert) {
	m.cbMu.RLock()
	fns := make([]func(Alert), len(m.onResolved))
	copy(fns, m.onResolved)
	m.cbMu.RUnlock()
	for _, fn := range fns {
		fn(a)
	}
}
