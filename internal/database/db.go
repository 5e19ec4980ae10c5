// Package database persists signals, realized outcomes, calibration runs
// and threshold versions in PostgreSQL.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection pool and verifies it
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "database").Logger()
	log.Info().Str("database", cfg.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// RunMigrations creates the schema if it does not exist
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id UUID PRIMARY KEY,
			generated_at TIMESTAMPTZ NOT NULL,
			instrument VARCHAR(32) NOT NULL,
			timeframe VARCHAR(8) NOT NULL,
			decision VARCHAR(10) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			threshold_version BIGINT NOT NULL,
			rationale TEXT NOT NULL DEFAULT '',
			confluence JSONB,
			consensus JSONB,
			validation JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_instrument_time
			ON signals (instrument, timeframe, generated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS signal_outcomes (
			signal_id UUID PRIMARY KEY REFERENCES signals(id),
			realized_move_percent DOUBLE PRECISION NOT NULL,
			evaluated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS calibration_runs (
			id BIGSERIAL PRIMARY KEY,
			run_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			window_from TIMESTAMPTZ NOT NULL,
			window_to TIMESTAMPTZ NOT NULL,
			total_signals INT NOT NULL,
			correct INT NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL,
			win_rate DOUBLE PRECISION NOT NULL,
			adjusted BOOLEAN NOT NULL,
			metrics JSONB,
			threshold_version BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS threshold_versions (
			version BIGINT PRIMARY KEY,
			min_confidence DOUBLE PRECISION NOT NULL,
			consensus_required BOOLEAN NOT NULL,
			consensus_agreement_bonus DOUBLE PRECISION NOT NULL,
			published_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Msg("Database migrations completed")
	return nil
}
