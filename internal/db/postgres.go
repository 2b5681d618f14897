package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const pingTimeout = 5 * time.Second

type poolConfig struct {
	maxOpen     int
	maxIdleTime time.Duration
}

// Option tunes the connection pool.
type Option func(*poolConfig)

// WithMaxOpenConns caps open connections. The bot keeps one login transaction per
// user short, so the default of 10 is usually enough.
func WithMaxOpenConns(n int) Option {
	return func(c *poolConfig) {
		if n > 0 {
			c.maxOpen = n
		}
	}
}

// WithMaxIdleTime closes connections idle for longer than d.
func WithMaxIdleTime(d time.Duration) Option {
	return func(c *poolConfig) {
		if d > 0 {
			c.maxIdleTime = d
		}
	}
}

// Open opens a Postgres connection pool through the pgx stdlib driver and pings it.
// Caller must call Close when done.
func Open(dsn string, opts ...Option) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}
	cfg := poolConfig{maxOpen: 10, maxIdleTime: 5 * time.Minute}
	for _, o := range opts {
		o(&cfg)
	}
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	conn.SetMaxOpenConns(cfg.maxOpen)
	conn.SetMaxIdleConns(cfg.maxOpen / 2)
	conn.SetConnMaxIdleTime(cfg.maxIdleTime)
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return conn, nil
}
