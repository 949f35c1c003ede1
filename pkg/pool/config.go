package pool

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMinConnections          = 2
	defaultMaxConnections          = 20
	defaultAcquireTimeout          = time.Second * 60
	defaultHealthCheckInterval     = time.Second * 30
	defaultCircuitBreakerThreshold = 5
	defaultCircuitBreakerTimeout   = time.Second * 60
	defaultHealthProbeTimeout      = time.Second * 5
)

// Config controls the resilient pool. Zero values are replaced with
// defaults at construction time.
type Config struct {
	// PGXConfig is the parsed configuration for the underlying pgx pool.
	PGXConfig *pgxpool.Config

	MinConns int32
	MaxConns int32

	// AcquireTimeout bounds connection acquisition, not query execution.
	AcquireTimeout time.Duration

	HealthCheckInterval time.Duration

	// CircuitBreakerThreshold is the consecutive connection-error count
	// that trips the breaker open.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is the fixed interval between recovery probes
	// while the breaker is open.
	CircuitBreakerTimeout time.Duration

	// DisableAutoRecovery leaves an open breaker open until
	// ResetCircuitBreaker is called or a periodic health check passes.
	DisableAutoRecovery bool
}

func (c *Config) applyDefaults() {
	if c.MinConns == 0 {
		c.MinConns = defaultMinConnections
	}
	if c.MaxConns == 0 {
		c.MaxConns = defaultMaxConnections
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaultHealthCheckInterval
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = defaultCircuitBreakerThreshold
	}
	if c.CircuitBreakerTimeout == 0 {
		c.CircuitBreakerTimeout = defaultCircuitBreakerTimeout
	}
}
