// Package postgres provides a Postgres-backed results ledger.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqdata/areacrawl/internal/engine"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Ledger writes one row per completed unit. It is a reporting surface only;
// resumption never reads it back.
type Ledger struct {
	pool  execCloser
	table string
}

// New creates a Postgres-backed Ledger using the provided config.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "unit_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &Ledger{pool: pool, table: table}, nil
}

// NewWithPool constructs a Ledger from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string) (*Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "unit_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Ledger{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (l *Ledger) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}

// RecordUnit upserts a result row keyed by unit; a later rerun of the same
// unit (after an operator reset) overwrites the previous row.
func (l *Ledger) RecordUnit(ctx context.Context, result engine.UnitResult) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("results ledger is not configured")
	}
	if result.UnitID == "" {
		return fmt.Errorf("unit id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	unit_id,
	parent,
	run_id,
	payload_uri,
	vendors,
	pages,
	used_headless,
	fetched_at,
	duration_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (unit_id) DO UPDATE SET
	parent = EXCLUDED.parent,
	run_id = EXCLUDED.run_id,
	payload_uri = EXCLUDED.payload_uri,
	vendors = EXCLUDED.vendors,
	pages = EXCLUDED.pages,
	used_headless = EXCLUDED.used_headless,
	fetched_at = EXCLUDED.fetched_at,
	duration_ms = EXCLUDED.duration_ms
`, l.table)
	_, err := l.pool.Exec(ctx, query,
		result.UnitID,
		result.Parent,
		result.RunID,
		result.PayloadURI,
		result.Vendors,
		result.Pages,
		result.UsedHeadless,
		result.FetchedAt,
		result.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert unit result: %w", err)
	}
	return nil
}
