// Package testdb provisions a throwaway Postgres instance for
// integration tests: a container, a migrated schema and a ready
// resilient pool.
package testdb

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/pool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateDB applies the embedded migrations to the database at dbURI.
func MigrateDB(dbURI string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src,
		strings.Replace(dbURI, "postgres://", "pgx5://", 1))
	if err != nil {
		return err
	}
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

// SetupTestDatabase starts a Postgres container, migrates it and opens
// a resilient pool against it. The caller terminates the container and
// closes the pool.
func SetupTestDatabase(ctx context.Context, cfg pool.Config, logger *zap.Logger) (testcontainers.Container, *pool.ResilientPool, error) {
	containerReq := testcontainers.ContainerRequest{
		Image:        "postgres:latest",
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp"),
		Env: map[string]string{
			"POSTGRES_DB":       "koko",
			"POSTGRES_PASSWORD": "koko",
			"POSTGRES_USER":     "koko",
		},
	}
	dbContainer, err := testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: containerReq,
			Started:          true,
		})
	if err != nil {
		return nil, nil, err
	}
	port, err := dbContainer.MappedPort(ctx, "5432")
	if err != nil {
		return nil, nil, err
	}
	host, err := dbContainer.Host(ctx)
	if err != nil {
		return nil, nil, err
	}

	dbURI := fmt.Sprintf("postgres://koko:koko@%v:%v/koko?sslmode=disable", host, port.Port())
	if err = MigrateDB(dbURI); err != nil {
		return nil, nil, err
	}

	pgxCfg, err := pgxpool.ParseConfig(dbURI)
	if err != nil {
		return nil, nil, err
	}
	cfg.PGXConfig = pgxCfg

	connPool, err := pool.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return dbContainer, connPool, nil
}
