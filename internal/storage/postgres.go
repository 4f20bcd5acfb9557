package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresConfig holds connection pool settings for PostgreSQL.
type PostgresConfig struct {
	URL             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPostgresConfig returns pool defaults suited to a single consumer.
func DefaultPostgresConfig(url string) PostgresConfig {
	return PostgresConfig{
		URL:             url,
		PingTimeout:     2 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

func (c PostgresConfig) Validate() error {
	if c.URL == "" {
		return errors.New("database url is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("database ping_timeout must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("database max_open_conns must be >= 1")
	}
	if c.MaxIdleConns < 0 {
		return errors.New("database max_idle_conns must be >= 0")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("database max_idle_conns must be <= max_open_conns")
	}
	if c.ConnMaxLifetime < 0 {
		return errors.New("database conn_max_lifetime must be >= 0")
	}
	if c.ConnMaxIdleTime < 0 {
		return errors.New("database conn_max_idle_time must be >= 0")
	}
	return nil
}

// OpenPostgres opens a pgx-backed pool, pings it and bootstraps the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
