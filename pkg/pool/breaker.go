package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned before any underlying call when the breaker
// is open. It is never retried internally.
var ErrCircuitOpen = errors.New("circuit breaker is open: database unavailable")

var errProbeFailed = errors.New("recovery probe failed")

// circuitBreaker gates work on consecutive connection-error counts.
// closed -> open on reaching threshold; open -> closed when a recovery
// probe or a periodic health check succeeds. Recovery probes run at a
// fixed cadence (constant backoff), never exponential: dashboards key
// off the cadence.
type circuitBreaker struct {
	mu        sync.Mutex
	open      bool
	failures  int
	threshold int
	interval  time.Duration
	autoOff   bool

	probe   func(ctx context.Context) error
	onOpen  func()
	onClose func()

	cancelRecovery context.CancelFunc
	logger         *zap.Logger
}

func newCircuitBreaker(threshold int, interval time.Duration, autoRecoveryDisabled bool, logger *zap.Logger) *circuitBreaker {
	return &circuitBreaker{
		threshold: threshold,
		interval:  interval,
		autoOff:   autoRecoveryDisabled,
		logger:    logger,
	}
}

func (b *circuitBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return ErrCircuitOpen
	}
	return nil
}

func (b *circuitBreaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// failureCount reports connection errors seen since the breaker last
// closed. It resets to zero exactly once per close transition.
func (b *circuitBreaker) failureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// recordFailure counts one connection error and trips the breaker once
// the threshold is reached.
func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	b.failures++
	trip := !b.open && b.failures >= b.threshold
	if trip {
		b.open = true
	}
	var cancel context.CancelFunc
	var ctx context.Context
	if trip && !b.autoOff {
		ctx, cancel = context.WithCancel(context.Background())
		b.cancelRecovery = cancel
	}
	b.mu.Unlock()

	if !trip {
		return
	}
	b.logger.Warn("circuit breaker opened",
		zap.Int("connectionErrors", b.failureCount()),
		zap.Int("threshold", b.threshold))
	if b.onOpen != nil {
		b.onOpen()
	}
	if cancel != nil {
		go b.recoveryLoop(ctx)
	}
}

// recoveryLoop waits one full interval, then probes at the same fixed
// interval until a probe succeeds or the breaker is force-closed.
func (b *circuitBreaker) recoveryLoop(ctx context.Context) {
	timer := time.NewTimer(b.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(b.interval), ctx)
	err := backoff.Retry(func() error {
		pctx, cancel := context.WithTimeout(ctx, defaultHealthProbeTimeout)
		defer cancel()
		if perr := b.probe(pctx); perr != nil {
			b.logger.Warn("circuit breaker recovery probe failed", zap.Error(perr))
			return errProbeFailed
		}
		return nil
	}, bo)
	if err != nil {
		// context cancelled by forceClose or pool shutdown
		return
	}
	b.forceClose()
}

// forceClose transitions to closed and resets the failure count. Safe to
// call on an already-closed breaker; the close side effects fire only on
// an actual open -> closed transition.
func (b *circuitBreaker) forceClose() {
	b.mu.Lock()
	wasOpen := b.open
	b.open = false
	b.failures = 0
	if b.cancelRecovery != nil {
		b.cancelRecovery()
		b.cancelRecovery = nil
	}
	b.mu.Unlock()

	if !wasOpen {
		return
	}
	b.logger.Info("circuit breaker closed")
	if b.onClose != nil {
		b.onClose()
	}
}

// stop cancels any pending recovery without changing breaker state.
func (b *circuitBreaker) stop() {
	b.mu.Lock()
	if b.cancelRecovery != nil {
		b.cancelRecovery()
		b.cancelRecovery = nil
	}
	b.mu.Unlock()
}
