package core

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed persistence layer for cached engine results and
// imported impact tables.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		schema, err := migrationFS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(schema)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

// CachedResult returns the engine response stored under fingerprint if it is
// younger than ttl. A non-positive ttl never expires.
func (s *Store) CachedResult(ctx context.Context, fingerprint string, ttl time.Duration) ([]byte, bool, error) {
	var body []byte
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT body, created_at FROM engine_results WHERE fingerprint = ?`, fingerprint,
	).Scan(&body, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache: %w", err)
	}
	if ttl > 0 && time.Since(time.Unix(created, 0)) > ttl {
		return nil, false, nil
	}
	return body, true, nil
}

// PutResult stores an engine response.
func (s *Store) PutResult(ctx context.Context, fingerprint, engineName string, year int, body []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engine_results (fingerprint, engine, year, body, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET body = excluded.body, created_at = excluded.created_at`,
		fingerprint, engineName, year, body, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// PurgeResults deletes cached responses older than ttl and reports how many
// were removed.
func (s *Store) PurgeResults(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM engine_results WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return res.RowsAffected()
}

// ImpactRow is one metric of a precomputed nationwide impact.
type ImpactRow struct {
	ReformKey string
	Baseline  string
	Year      int
	Metric    string
	Value     float64
}

const impactBatch = 500

// PutImpacts upserts rows, committing in batches.
func (s *Store) PutImpacts(ctx context.Context, rows []ImpactRow) error {
	for _, batch := range Chunk(rows, impactBatch) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO impacts (reform_key, baseline, year, metric, value) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(reform_key, baseline, year, metric) DO UPDATE SET value = excluded.value`)
		if err != nil {
			tx.Rollback()
			return err
		}
		for _, r := range batch {
			if _, err := stmt.ExecContext(ctx, r.ReformKey, r.Baseline, r.Year, r.Metric, r.Value); err != nil {
				stmt.Close()
				tx.Rollback()
				return fmt.Errorf("insert impact %s/%s/%d: %w", r.ReformKey, r.Baseline, r.Year, err)
			}
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Impacts returns the metrics stored for one reform, baseline and year.
func (s *Store) Impacts(ctx context.Context, reformKey, baseline string, year int) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metric, value FROM impacts WHERE reform_key = ? AND baseline = ? AND year = ?`,
		reformKey, baseline, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var metric string
		var value float64
		if err := rows.Scan(&metric, &value); err != nil {
			return nil, err
		}
		out[metric] = value
	}
	return out, rows.Err()
}

// ImpactCount reports the number of stored impact rows.
func (s *Store) ImpactCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM impacts`).Scan(&n)
	return n, err
}
