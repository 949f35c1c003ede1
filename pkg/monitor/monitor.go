package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/metrics"
	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/pool"
)

// Pool is the monitor's read-only view of the resilient pool. The
// monitor never mutates pool internals; it reads snapshots and
// subscribes to lifecycle events.
type Pool interface {
	Metrics() pool.PoolMetrics
	SlowQueries(thresholdMS float64, limit int) []pool.QueryMetrics
	FailedQueries(limit int) []pool.QueryMetrics
	Subscribe(fn func(pool.Event))
}

const (
	defaultCheckInterval    = time.Second * 30
	defaultAlertRetention   = time.Hour * 24
	defaultMetricsRetention = time.Hour * 168
)

// Config controls the monitor. Zero values become defaults.
type Config struct {
	CheckInterval    time.Duration
	AlertRetention   time.Duration
	MetricsRetention time.Duration
	Thresholds       Thresholds
}

func (c *Config) applyDefaults() {
	if c.CheckInterval == 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.AlertRetention == 0 {
		c.AlertRetention = defaultAlertRetention
	}
	if c.MetricsRetention == 0 {
		c.MetricsRetention = defaultMetricsRetention
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = DefaultThresholds()
	}
}

// Monitor periodically snapshots the pool, evaluates thresholds,
// persists to the external store and assembles the dashboard.
type Monitor struct {
	pool   Pool
	store  *MetricsStore
	alerts *AlertManager
	eval   *evaluator
	logger *zap.Logger
	cfg    Config

	mu        sync.Mutex
	running   bool
	closeChan chan struct{}
	wg        sync.WaitGroup

	subscribeOnce sync.Once
}

// New builds a monitor. store may be nil; alerting then stays
// in-memory.
func New(p Pool, store *MetricsStore, cfg Config, logger *zap.Logger) *Monitor {
	cfg.applyDefaults()
	alerts := NewAlertManager(store, logger)
	return &Monitor{
		pool:   p,
		store:  store,
		alerts: alerts,
		eval:   newEvaluator(cfg.Thresholds, alerts),
		logger: logger,
		cfg:    cfg,
	}
}

// Start is idempotent; a second call while running is a logged no-op.
// Store connection failure is non-fatal.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Info("monitor already started")
		return
	}
	m.running = true
	m.closeChan = make(chan struct{})
	closeChan := m.closeChan
	m.mu.Unlock()

	if m.store != nil {
		m.store.Connect(ctx)
	}
	m.subscribeOnce.Do(func() {
		m.pool.Subscribe(m.handleEvent)
	})
	m.logger.Info("monitor started", zap.Duration("checkInterval", m.cfg.CheckInterval))
	m.wg.Add(1)
	go m.run(closeChan)
}

// Stop cancels the tick loop and closes the store connection. Safe to
// call when not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.logger.Info("monitor not running")
		return
	}
	m.running = false
	close(m.closeChan)
	m.mu.Unlock()
	m.wg.Wait()

	if m.store != nil {
		m.store.Close()
	}
	m.logger.Info("monitor stopped")
}

func (m *Monitor) run(closeChan chan struct{}) {
	defer m.wg.Done()
	m.tick()
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closeChan:
			m.logger.Info("monitor tick loop exited..")
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick snapshots, persists, evaluates and prunes. Persistence is
// skipped silently when the store is down; nothing here can fail a
// query path.
func (m *Monitor) tick() {
	ctx := context.Background()
	snap := m.pool.Metrics()

	if m.store != nil {
		m.store.AddSnapshot(ctx, snap, m.cfg.MetricsRetention)
	}

	m.eval.evaluate(snap)

	if m.store != nil {
		now := time.Now()
		m.store.PruneSnapshots(ctx, now.Add(-m.cfg.MetricsRetention))
		m.store.PruneAlerts(ctx, now.Add(-m.cfg.AlertRetention))
	}

	if snap.TotalConnections > 0 {
		metrics.Gauge("db_pool_utilization",
			float64(snap.ActiveConnections)/float64(snap.TotalConnections))
	}
	metrics.Gauge("db_pool_avg_query_time_ms", snap.AverageQueryTime)
	metrics.Gauge("db_pool_waiting_clients", float64(snap.WaitingClients))
	if snap.TotalQueries > 0 {
		metrics.Gauge("db_pool_error_rate",
			float64(snap.FailedQueries)/float64(snap.TotalQueries))
	}
}

func (m *Monitor) handleEvent(ev pool.Event) {
	switch ev.Kind {
	case pool.EventCircuitOpened:
		m.alerts.Create(AlertCircuitBreaker, SeverityCritical,
			"circuit breaker opened: database queries are failing fast", nil)
	case pool.EventCircuitClosed:
		m.alerts.ResolveType(AlertCircuitBreaker)
	case pool.EventHealthCheckPassed:
		m.eval.recordHealthSample(true)
		m.alerts.ResolveType(AlertHealthCheckFailed)
	case pool.EventHealthCheckFailed:
		m.eval.recordHealthSample(false)
	case pool.EventPoolError:
		go metrics.Count("db_pool_errors", 1)
	}
}

// ActiveAlerts returns all currently unresolved alerts.
func (m *Monitor) ActiveAlerts() []Alert {
	return m.alerts.Active()
}

// ResolveAlert manually resolves one alert by id; false when unknown or
// already resolved.
func (m *Monitor) ResolveAlert(id string) bool {
	return m.alerts.Resolve(id)
}

// OnAlert registers a callback for every raised alert.
func (m *Monitor) OnAlert(fn func(Alert)) {
	m.alerts.OnAlert(fn)
}

// OnAlertResolved registers a callback invoked once per resolved alert.
func (m *Monitor) OnAlertResolved(fn func(Alert)) {
	m.alerts.OnResolved(fn)
}
