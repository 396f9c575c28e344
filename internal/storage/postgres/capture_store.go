// Package postgres provides the Postgres-backed capture audit trail.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/shotapi/internal/capture"
)

const defaultTable = "captures"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for capture rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// CaptureStore writes capture records into Postgres. It implements capture.Recorder.
type CaptureStore struct {
	pool  pool
	table string
}

var _ capture.Recorder = (*CaptureStore)(nil)

// NewCaptureStore creates a Postgres-backed CaptureStore using the provided config.
func NewCaptureStore(ctx context.Context, cfg Config) (*CaptureStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewCaptureStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewCaptureStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCaptureStoreWithPool(p pool, table string) (*CaptureStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CaptureStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *CaptureStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordCapture inserts one capture row. Re-delivered records with the same id are ignored.
func (s *CaptureStore) RecordCapture(ctx context.Context, rec capture.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	cache_key,
	url,
	kind,
	cache_status,
	bytes,
	duration_ms,
	captured_at,
	error
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
) ON CONFLICT (id) DO NOTHING`, s.table)

	var errMsg *string
	if rec.Error != "" {
		errMsg = &rec.Error
	}
	args := []any{
		rec.ID,
		rec.Key,
		rec.URL,
		string(rec.Kind),
		string(rec.Status),
		rec.Bytes,
		rec.Duration.Milliseconds(),
		rec.CapturedAt,
		errMsg,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// Recent returns the newest records first.
func (s *CaptureStore) Recent(ctx context.Context, limit int) ([]capture.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT id, cache_key, url, kind, cache_status, bytes, duration_ms, captured_at, error
FROM %s
ORDER BY captured_at DESC
LIMIT $1`, s.table)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	var out []capture.Record
	for rows.Next() {
		var (
			rec        capture.Record
			kind       string
			status     string
			durationMS int64
			errMsg     *string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Key,
			&rec.URL,
			&kind,
			&status,
			&rec.Bytes,
			&durationMS,
			&rec.CapturedAt,
			&errMsg,
		); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		rec.Kind = capture.ContentKind(kind)
		rec.Status = capture.CacheStatus(status)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if errMsg != nil {
			rec.Error = *errMsg
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate captures: %w", err)
	}
	return out, nil
}

// Purge deletes records captured before cutoff and returns how many were removed.
func (s *CaptureStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE captured_at < $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge captures: %w", err)
	}
	return tag.RowsAffected(), nil
}
