package testdb

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/pool"
)

// Exercises the pool against a real Postgres instance: query metrics,
// transactions and the health probe round trip.
func TestResilientPoolAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	container, p, err := SetupTestDatabase(ctx, pool.Config{
		HealthCheckInterval: time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() {
		p.Close()
		_ = container.Terminate(ctx)
	}()

	rows, err := p.Query(ctx, "SELECT id FROM canary")
	require.NoError(t, err)
	var id int64
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&id))
	rows.Close()
	require.Equal(t, int64(1), id)

	err = p.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, txErr := tx.Exec(ctx, "UPDATE canary SET id = id + 1, ts = CURRENT_TIMESTAMP")
		return txErr
	})
	require.NoError(t, err)

	require.True(t, p.CheckHealth(ctx))

	m := p.Metrics()
	require.Equal(t, pool.StatusHealthy, m.Status)
	require.GreaterOrEqual(t, m.TotalQueries, uint64(2))
	require.Equal(t, uint64(0), m.FailedQueries)
	require.False(t, m.LastHealthCheck.IsZero())
}
