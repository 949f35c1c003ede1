package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var zapConfig zap.Config

// SetupLogging configures the parent logger with logLevel.
func SetupLogging(logLevel string) (*zap.Logger, error) {
	zapConfig = zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	zapConfig.Level.SetLevel(level)
	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

type appConfig struct {
	pg pgConfig

	redisAddr     string
	redisPassword string
	redisDB       int

	statsdAddr string

	monitoringEnabled bool
	checkInterval     time.Duration
	healthInterval    time.Duration
	breakerThreshold  int
	breakerTimeout    time.Duration
}

type pgConfig struct {
	user           string
	database       string
	password       string
	hostURL        string
	port           string
	enableTLS      bool
	caBundleFSPath string
}

var dsnNoTLS = "postgres://%s:%s@%s:%s/%s?sslmode=disable"

var dsnTLS = "postgres://%s:%s@%s:%s/%s?sslmode=verify-ca&sslrootcert=%s"

const caBundleFSPath = "/config/ca_certs/aws-postgres-cabundle-secret"

func loadConfig() (*appConfig, error) {
	isSecure := os.Getenv("ENABLE_TLS")
	tls := isSecure == "yes" || isSecure == "true"

	cfg := &appConfig{
		pg: pgConfig{
			user:           os.Getenv("PG_USER"),
			password:       os.Getenv("PG_PASSWORD"),
			hostURL:        os.Getenv("PG_HOST"),
			port:           os.Getenv("PG_PORT"),
			database:       os.Getenv("PG_DATABASE"),
			enableTLS:      tls,
			caBundleFSPath: caBundleFSPath,
		},
		redisAddr:         os.Getenv("REDIS_ADDR"),
		redisPassword:     os.Getenv("REDIS_PASSWORD"),
		redisDB:           envInt("REDIS_DB", 0),
		statsdAddr:        os.Getenv("STATSD_ADDR"),
		monitoringEnabled: os.Getenv("MONITORING_DISABLED") == "",
		checkInterval:     envDuration("MONITOR_CHECK_INTERVAL", 0),
		healthInterval:    envDuration("HEALTH_CHECK_INTERVAL", 0),
		breakerThreshold:  envInt("CIRCUIT_BREAKER_THRESHOLD", 0),
		breakerTimeout:    envDuration("CIRCUIT_BREAKER_TIMEOUT", 0),
	}

	if err := validate(&cfg.pg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(pgc *pgConfig) error {
	if pgc.user == "" {
		return fmt.Errorf("PG_USER cannot be empty")
	}
	if pgc.password == "" {
		return fmt.Errorf("PG_PASSWORD cannot be empty")
	}
	if pgc.hostURL == "" {
		return fmt.Errorf("PG_HOST cannot be empty")
	}
	if pgc.port == "" {
		return fmt.Errorf("PG_PORT cannot be empty")
	}
	if pgc.database == "" {
		return fmt.Errorf("PG_DATABASE cannot be empty")
	}
	if pgc.enableTLS && pgc.caBundleFSPath == "" {
		return fmt.Errorf("ENABLE_TLS requires a valid PG_CA_BUNDLE_FS_PATH")
	}
	return nil
}

func getDSN(pgc *pgConfig) string {
	if !pgc.enableTLS {
		return fmt.Sprintf(dsnNoTLS, pgc.user, pgc.password, pgc.hostURL, pgc.port, pgc.database)
	}
	return fmt.Sprintf(dsnTLS, pgc.user, pgc.password, pgc.hostURL, pgc.port, pgc.database, pgc.caBundleFSPath)
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
