package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/metrics"
	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/monitor"
	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/pool"
)

type appContext struct {
	Pool    *pool.ResilientPool
	Monitor *monitor.Monitor
	Logger  *zap.Logger
}

func main() {
	logger, err := SetupLogging("info")
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.statsdAddr != "" {
		if err := metrics.Setup(cfg.statsdAddr, "db_access."); err != nil {
			logger.Warn("statsd setup failed, metrics emission disabled", zap.Error(err))
		}
		defer metrics.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgxCfg, err := pgxpool.ParseConfig(getDSN(&cfg.pg))
	if err != nil {
		log.Fatal(err)
	}
	dbPool, err := pool.New(ctx, pool.Config{
		PGXConfig:               pgxCfg,
		HealthCheckInterval:     cfg.healthInterval,
		CircuitBreakerThreshold: cfg.breakerThreshold,
		CircuitBreakerTimeout:   cfg.breakerTimeout,
	}, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()
	logger.Info("established db connection", zap.String("host", cfg.pg.hostURL))

	var mon *monitor.Monitor
	if cfg.monitoringEnabled {
		var store *monitor.MetricsStore
		if cfg.redisAddr != "" {
			store = monitor.NewMetricsStore(cfg.redisAddr, cfg.redisPassword, cfg.redisDB, logger)
		}
		mon = monitor.New(dbPool, store, monitor.Config{CheckInterval: cfg.checkInterval}, logger)
		mon.Start(ctx)
		defer mon.Stop()
	}

	ac := &appContext{Pool: dbPool, Monitor: mon, Logger: logger}
	srv := &http.Server{Addr: "0.0.0.0:8080", Handler: ac.routes()}

	go func() {
		logger.Info("application is running on :8080 .....")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
}
