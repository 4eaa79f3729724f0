// Package postgres provides Postgres-backed crawl and deploy state.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/logging"
)

var validPrefix = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Prefix          string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// DB wraps the pool and the prefixed table names.
type DB struct {
	pool   querier
	prefix string
	logger *zap.Logger
}

// Open connects a pool using cfg.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db, err := NewWithPool(pool, cfg.Prefix, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// NewWithPool builds a DB from an existing pool (primarily for testing).
func NewWithPool(pool querier, prefix string, logger *zap.Logger) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if prefix == "" {
		prefix = "mirror"
	}
	if !validPrefix.MatchString(prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", prefix)
	}
	return &DB{pool: pool, prefix: prefix, logger: logging.Component(logger, "postgres")}, nil
}

// Close releases the pool.
func (d *DB) Close() {
	if d == nil || d.pool == nil {
		return
	}
	d.pool.Close()
}

func (d *DB) table(name string) string {
	return d.prefix + "_" + name
}

// EnsureSchema creates the tables and indexes when they are missing.
func (d *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (url TEXT PRIMARY KEY)`, d.table("crawl_queue")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL,
	status INTEGER NOT NULL DEFAULT 0,
	note TEXT NOT NULL DEFAULT ''
)`, d.table("crawl_log")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_url ON %s (url)`, d.table("crawl_log"), d.table("crawl_log")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	local_path TEXT PRIMARY KEY,
	remote_path TEXT NOT NULL
)`, d.table("deploy_queue")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	path_hash TEXT NOT NULL,
	namespace TEXT NOT NULL,
	local_path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	PRIMARY KEY (path_hash, namespace)
)`, d.table("deploy_cache")),
	}
	for _, stmt := range stmts {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (d *DB) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := d.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (d *DB) truncate(ctx context.Context, table string) error {
	if _, err := d.pool.Exec(ctx, "TRUNCATE "+table); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	n, err := d.count(ctx, "SELECT COUNT(*) FROM "+table)
	if err != nil {
		return fmt.Errorf("count %s: %w", table, err)
	}
	if n != 0 {
		d.logger.Error("table not empty after truncate", zap.String("table", table), zap.Int("rows", n))
	}
	return nil
}

func (d *DB) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
