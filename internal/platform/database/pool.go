package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ErrNotConfigured is returned by health checks on a nil Pool.
var ErrNotConfigured = errors.New("database not configured")

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultConfig returns defaults sized for a single registry API instance.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Option configures a Pool.
type Option func(*Pool)

// WithRegisterer exports database/sql pool statistics to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Pool) {
		p.reg = reg
	}
}

// Pool is a *sql.DB backed by the pgx driver.
type Pool struct {
	db  *sql.DB
	reg prometheus.Registerer
}

// New opens and pings a connection pool. An empty URL yields a nil Pool and no
// error; callers take that as "run in memory".
func New(ctx context.Context, cfg Config, opts ...Option) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	// Parse errors can echo the URL, password included.
	connCfg, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.New("parse DATABASE_URL: invalid connection string")
	}

	p := &Pool{db: stdlib.OpenDB(*connCfg)}
	for _, opt := range opts {
		opt(p)
	}
	p.db.SetMaxOpenConns(cfg.MaxOpenConns)
	p.db.SetMaxIdleConns(cfg.MaxIdleConns)
	p.db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	p.db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := p.ping(ctx, cfg.PingTimeout); err != nil {
		p.db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("ping database %s: %w", connCfg.Host, err)
	}

	if p.reg != nil {
		if err := p.reg.Register(collectors.NewDBStatsCollector(p.db, "registry")); err != nil {
			p.db.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
	}
	return p, nil
}

func (p *Pool) ping(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.db.PingContext(ctx)
}

// DB returns the underlying *sql.DB.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health pings the database. It has the health.CheckFunc signature.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return ErrNotConfigured
	}
	return p.db.PingContext(ctx)
}

// Close is safe on a nil Pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
