package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/metrics"
)

// PGXConnPool is the subset of pgxpool.Pool the resilient pool relies
// on. Tests substitute a fake.
type PGXConnPool interface {
	Close()
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Config() *pgxpool.Config
	Stat() *pgxpool.Stat
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Status is the pool's own reachability view, driven by health checks
// and breaker transitions. It deliberately ignores threshold alerts:
// "is the DB reachable" and "is the pool under load" are separate
// questions answered by separate components.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// PoolMetrics is a point-in-time snapshot, recomputed on every read.
type PoolMetrics struct {
	TotalConnections  int       `json:"totalConnections"`
	IdleConnections   int       `json:"idleConnections"`
	ActiveConnections int       `json:"activeConnections"`
	WaitingClients    int       `json:"waitingClients"`
	TotalQueries      uint64    `json:"totalQueries"`
	FailedQueries     uint64    `json:"failedQueries"`
	AverageQueryTime  float64   `json:"averageQueryTime"`
	ConnectionErrors  int       `json:"connectionErrors"`
	LastHealthCheck   time.Time `json:"lastHealthCheck"`
	UptimeSeconds     float64   `json:"uptimeSeconds"`
	Status            Status    `json:"poolStatus"`
}

const healthQuery = `SELECT 1`

// ResilientPool wraps a pgx connection pool with circuit breaking,
// query-level telemetry and periodic health probing. It is safe for
// concurrent use and is the sole owner of the underlying pool and the
// breaker state.
type ResilientPool struct {
	inner    PGXConnPool
	logger   *zap.Logger
	cfg      Config
	breaker  *circuitBreaker
	recorder *recorder
	events   eventHub

	mu              sync.Mutex
	totalQueries    uint64
	failedQueries   uint64
	avgQueryTime    float64
	lastHealthCheck time.Time
	status          Status

	waiting   int32
	startedAt time.Time

	closeChan chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New connects the underlying pgx pool and starts the background health
// check. Construction failure should abort startup; nothing else in
// this package is fatal.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*ResilientPool, error) {
	cfg.applyDefaults()
	cfg.PGXConfig.MinConns = cfg.MinConns
	cfg.PGXConfig.MaxConns = cfg.MaxConns
	// Intentionally not aggressive: our own probe runs on HealthCheckInterval.
	cfg.PGXConfig.HealthCheckPeriod = time.Minute * 5

	p := newPool(nil, cfg, logger)
	cfg.PGXConfig.AfterConnect = func(_ context.Context, _ *pgx.Conn) error {
		p.events.notify(EventClientConnected, nil)
		return nil
	}
	cfg.PGXConfig.BeforeAcquire = func(_ context.Context, _ *pgx.Conn) bool {
		p.events.notify(EventClientAcquired, nil)
		return true
	}
	cfg.PGXConfig.BeforeClose = func(_ *pgx.Conn) {
		p.events.notify(EventClientRemoved, nil)
	}

	inner, err := pgxpool.NewWithConfig(ctx, cfg.PGXConfig)
	if err != nil {
		return nil, err
	}
	if err = inner.Ping(ctx); err != nil {
		inner.Close()
		return nil, err
	}
	p.inner = inner
	logger.Info("established db connection",
		zap.String("host", cfg.PGXConfig.ConnConfig.Host),
		zap.Int32("minConns", cfg.MinConns),
		zap.Int32("maxConns", cfg.MaxConns))

	p.wg.Add(1)
	go p.backgroundHealthCheck()
	return p, nil
}

// newPool wires the pool around an existing client without starting
// background work. The health-check goroutine is the caller's concern.
func newPool(inner PGXConnPool, cfg Config, logger *zap.Logger) *ResilientPool {
	cfg.applyDefaults()
	p := &ResilientPool{
		inner:     inner,
		logger:    logger,
		cfg:       cfg,
		recorder:  newRecorder(recorderCapacity),
		status:    StatusHealthy,
		startedAt: time.Now(),
		closeChan: make(chan struct{}),
	}
	p.breaker = newCircuitBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout,
		cfg.DisableAutoRecovery, logger)
	p.breaker.probe = p.probe
	p.breaker.onOpen = func() {
		p.setStatus(StatusDegraded)
		p.events.notify(EventCircuitOpened, nil)
		go metrics.Count("db_pool_circuit_opened", 1)
	}
	p.breaker.onClose = func() {
		p.setStatus(StatusHealthy)
		p.events.notify(EventCircuitClosed, nil)
		go metrics.Count("db_pool_circuit_closed", 1)
	}
	return p
}

// Subscribe registers a lifecycle-event observer. Observers run
// synchronously on the emitting goroutine and must not block.
func (p *ResilientPool) Subscribe(fn func(Event)) {
	p.events.subscribe(fn)
}

// Query executes sql through the underlying pool when the circuit is
// closed. Duration is measured to first response and recorded either
// way; the underlying error is returned unchanged after bookkeeping.
func (p *ResilientPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := p.breaker.allow(); err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := p.inner.Query(ctx, sql, args...)
	p.observe(sql, start, err)
	return rows, err
}

// Exec executes sql that returns no rows, with the same gating and
// bookkeeping as Query.
func (p *ResilientPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := p.breaker.allow(); err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := p.inner.Exec(ctx, sql, args...)
	p.observe(sql, start, err)
	return tag, err
}

// WithTransaction runs fn inside a transaction on a dedicated
// connection. Commit on success, rollback and re-return on error; the
// connection is always released. Rollback failure is logged and never
// masks the original error.
func (p *ResilientPool) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := p.breaker.allow(); err != nil {
		return err
	}
	start := time.Now()
	conn, err := p.acquire(ctx)
	if err != nil {
		p.observe("BEGIN", start, err)
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		p.observe("BEGIN", start, err)
		return err
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			p.logger.Error("transaction rollback failed", zap.Error(rbErr))
		}
		p.observe("TRANSACTION", start, err)
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		p.observe("COMMIT", start, err)
		return err
	}
	p.observe("TRANSACTION", start, nil)
	return nil
}

// Acquire yields a raw connection handle for advanced use. The caller
// must Release it. Gated by the circuit breaker like every other entry
// point.
func (p *ResilientPool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	if err := p.breaker.allow(); err != nil {
		return nil, err
	}
	conn, err := p.acquire(ctx)
	if err != nil {
		p.handleConnectionError(err)
	}
	return conn, err
}

// acquire applies the configured acquisition timeout and maintains the
// waiting-clients gauge. pgxpool exposes no waiting counter of its own.
func (p *ResilientPool) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	atomic.AddInt32(&p.waiting, 1)
	defer atomic.AddInt32(&p.waiting, -1)
	actx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	return p.inner.Acquire(actx)
}

func (p *ResilientPool) observe(sql string, start time.Time, err error) {
	d := float64(time.Since(start)) / float64(time.Millisecond)
	p.mu.Lock()
	p.totalQueries++
	if err != nil {
		p.failedQueries++
	}
	n := float64(p.totalQueries)
	p.avgQueryTime = (p.avgQueryTime*(n-1) + d) / n
	p.mu.Unlock()

	m := QueryMetrics{
		Query:      sql,
		DurationMS: d,
		Timestamp:  time.Now(),
		Success:    err == nil,
	}
	if err != nil {
		m.Error = err.Error()
	}
	p.recorder.record(m)

	if err != nil {
		p.handleConnectionError(err)
	}
}

func (p *ResilientPool) handleConnectionError(err error) {
	p.events.notify(EventPoolError, err)
	p.breaker.recordFailure()
}

// Metrics returns the current snapshot. A pure read; nothing is
// persisted by this call. WaitingClients counts callers blocked in
// Acquire and WithTransaction; Query and Exec acquire inside pgxpool,
// which exposes no waiting count, so they are not reflected in the
// gauge.
func (p *ResilientPool) Metrics() PoolMetrics {
	var total, idle int
	if st := p.inner.Stat(); st != nil {
		total = int(st.TotalConns())
		idle = int(st.IdleConns())
	}
	p.mu.Lock()
	m := PoolMetrics{
		TotalConnections:  total,
		IdleConnections:   idle,
		ActiveConnections: total - idle,
		WaitingClients:    int(atomic.LoadInt32(&p.waiting)),
		TotalQueries:      p.totalQueries,
		FailedQueries:     p.failedQueries,
		AverageQueryTime:  p.avgQueryTime,
		LastHealthCheck:   p.lastHealthCheck,
		UptimeSeconds:     time.Since(p.startedAt).Seconds(),
		Status:            p.status,
	}
	p.mu.Unlock()
	m.ConnectionErrors = p.breaker.failureCount()
	return m
}

// SlowQueries returns recorded executions slower than thresholdMS,
// slowest first, at most limit entries.
func (p *ResilientPool) SlowQueries(thresholdMS float64, limit int) []QueryMetrics {
	return p.recorder.slow(thresholdMS, limit)
}

// FailedQueries returns recorded failures, newest first, at most limit
// entries.
func (p *ResilientPool) FailedQueries(limit int) []QueryMetrics {
	return p.recorder.failed(limit)
}

// probe is the raw round trip used by breaker recovery. No counters, no
// events: recovery outcomes surface through breaker transitions.
func (p *ResilientPool) probe(ctx context.Context) error {
	var one int
	return p.inner.QueryRow(ctx, healthQuery).Scan(&one)
}

// CheckHealth forces an out-of-band health probe. Failure is never
// returned as an error to callers; it is observed through the status
// field, events and the breaker.
func (p *ResilientPool) CheckHealth(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, defaultHealthProbeTimeout)
	defer cancel()
	err := p.probe(pctx)

	p.mu.Lock()
	p.lastHealthCheck = time.Now()
	p.mu.Unlock()

	if err != nil {
		p.setStatus(StatusUnhealthy)
		p.logger.Warn("health check failed", zap.Error(err))
		p.events.notify(EventHealthCheckFailed, err)
		p.breaker.recordFailure()
		return false
	}

	p.setStatus(StatusHealthy)
	p.events.notify(EventHealthCheckPassed, nil)
	if p.breaker.isOpen() {
		p.breaker.forceClose()
	}
	return true
}

// ResetCircuitBreaker forces the breaker closed. Manual override for
// operators; the error count resets with it.
func (p *ResilientPool) ResetCircuitBreaker() {
	p.breaker.forceClose()
}

// CircuitOpen reports whether the breaker is currently rejecting work.
func (p *ResilientPool) CircuitOpen() bool {
	return p.breaker.isOpen()
}

func (p *ResilientPool) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

func (p *ResilientPool) backgroundHealthCheck() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.closeChan:
			p.logger.Info("backgroundHealthCheck exited..")
			return
		case <-ticker.C:
			p.CheckHealth(context.Background())
		}
	}
}

// Close stops background work, cancels any pending breaker recovery and
// releases the underlying pool. Idempotent; in-flight queries finish or
// fail naturally.
func (p *ResilientPool) Close() {
	p.closeOnce.Do(func() {
		close(p.closeChan)
		p.breaker.stop()
		p.wg.Wait()
		p.events.notify(EventPoolClosed, nil)
		p.inner.Close()
	})
}
