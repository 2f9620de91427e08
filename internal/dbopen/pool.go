// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package dbopen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgx-contrib/pgxotel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MaxConns is the upper bound on simultaneously open connections.
const MaxConns = 5

// DefaultCheckoutTimeout bounds how long Checkout waits for a free connection.
const DefaultCheckoutTimeout = 5 * time.Second

var (
	// ErrPoolExhausted is returned when no connection became free within the checkout timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")
)

var checkoutWait metric.Float64Histogram

func init() {
	meter := otel.Meter("github.com/cardinalhq/sportsrunner/internal/dbopen")

	var err error
	checkoutWait, err = meter.Float64Histogram(
		"sportsrunner.db.checkout.wait",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent waiting for a pooled database connection"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create db.checkout.wait histogram: %w", err))
	}
}

// Pool is the process-wide, bounded set of database connections.
// It is safe for concurrent use and is shared, not owned, by its consumers.
type Pool struct {
	pool            *pgxpool.Pool
	checkoutTimeout time.Duration
}

type poolOptions struct {
	checkoutTimeout time.Duration
	skipPing        bool
}

type PoolOption func(*poolOptions)

// WithCheckoutTimeout overrides DefaultCheckoutTimeout.
func WithCheckoutTimeout(d time.Duration) PoolOption {
	return func(o *poolOptions) {
		if d > 0 {
			o.checkoutTimeout = d
		}
	}
}

// WithoutPing skips the startup round-trip, leaving connections to be opened lazily.
func WithoutPing() PoolOption {
	return func(o *poolOptions) {
		o.skipPing = true
	}
}

// ParsePoolConfig parses a PostgreSQL connection string into a pool
// configuration capped at MaxConns connections.
func ParsePoolConfig(url string) (*pgxpool.Config, error) {
	if url == "" {
		return nil, ErrDatabaseNotConfigured
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database connection string: %w", err)
	}

	cfg.MaxConns = MaxConns
	cfg.MinConns = 0
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	cfg.ConnConfig.Tracer = &pgxotel.QueryTracer{
		Name: "sportsdb",
	}

	if appName := applicationName(); appName != "" {
		if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
			cfg.ConnConfig.RuntimeParams["application_name"] = appName
		}
	}

	return cfg, nil
}

// NewConnectionPool creates the shared connection pool using pgx v5.
// Unless WithoutPing is given, the database must answer before this returns.
func NewConnectionPool(ctx context.Context, url string, opts ...PoolOption) (*Pool, error) {
	o := poolOptions{checkoutTimeout: DefaultCheckoutTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := ParsePoolConfig(url)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if !o.skipPing {
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to reach database: %w", err)
		}
	}

	slog.Info("Database connection pool ready",
		slog.Int("maxConns", int(cfg.MaxConns)),
		slog.Duration("checkoutTimeout", o.checkoutTimeout))

	return &Pool{pool: pool, checkoutTimeout: o.checkoutTimeout}, nil
}

// Checkout borrows one connection for the duration of fn. The connection goes
// back to the pool when fn returns, whether it succeeded, failed or panicked.
// If every connection stays busy for the checkout timeout, ErrPoolExhausted is returned
// and fn is not called.
func (p *Pool) Checkout(ctx context.Context, fn func(ctx context.Context, conn *pgxpool.Conn) error) error {
	start := time.Now()
	acquireCtx, cancel := context.WithTimeout(ctx, p.checkoutTimeout)
	conn, err := p.pool.Acquire(acquireCtx)
	cancel()
	checkoutWait.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: no connection free after %s", ErrPoolExhausted, p.checkoutTimeout)
		}
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	return fn(ctx, conn)
}

// PoolStats is a point-in-time view of pool usage.
type PoolStats struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
}

func (p *Pool) Stats() PoolStats {
	s := p.pool.Stat()
	return PoolStats{
		Acquired: s.AcquiredConns(),
		Idle:     s.IdleConns(),
		Total:    s.TotalConns(),
		Max:      s.MaxConns(),
	}
}

// CheckoutTimeout returns the bound applied to each Checkout.
func (p *Pool) CheckoutTimeout() time.Duration {
	return p.checkoutTimeout
}

// Raw exposes the underlying pgx pool for tools that need it directly, such as migrations.
func (p *Pool) Raw() *pgxpool.Pool {
	return p.pool
}

// Close is only for process teardown and tests; running consumers must not call it.
func (p *Pool) Close() {
	p.pool.Close()
}

// applicationName derives a postgres application_name from OTEL_SERVICE_NAME,
// keeping only alphanumerics, '-' and '_' and at most 63 characters.
func applicationName() string {
	appName := os.Getenv("OTEL_SERVICE_NAME")
	if appName == "" {
		return ""
	}
	appName = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' {
			return r
		}
		return '_'
	}, appName)
	if len(appName) > 63 {
		appName = appName[:63]
	}
	return appName
}
