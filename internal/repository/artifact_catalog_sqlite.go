package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"

	_ "modernc.org/sqlite"
)

// SQLiteCatalog indexes artifact summaries so listing endpoints never decode
// weight files.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens (or creates) the catalog database. Use ":memory:"
// for an ephemeral catalog.
func NewSQLiteCatalog(ctx context.Context, path string) (*SQLiteCatalog, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("catalog dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// A single connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("catalog wal: %w", err)
		}
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS artifacts (
			ticker     TEXT NOT NULL,
			model      TEXT NOT NULL,
			metrics    TEXT NOT NULL,
			trained_at INTEGER NOT NULL,
			path       TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (ticker, model)
		)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog schema: %w", err)
	}
	return &SQLiteCatalog{db: db}, nil
}

var _ repository.ArtifactCatalog = (*SQLiteCatalog)(nil)

func (c *SQLiteCatalog) Upsert(ctx context.Context, s models.ArtifactSummary) error {
	m, err := json.Marshal(s.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	const q = `
		INSERT INTO artifacts (ticker, model, metrics, trained_at, path)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ticker, model) DO UPDATE SET
			metrics = excluded.metrics,
			trained_at = excluded.trained_at,
			path = excluded.path`
	if _, err := c.db.ExecContext(ctx, q,
		s.Key.Ticker, string(s.Key.Model), string(m), s.TrainedAt.UnixMilli(), s.Path); err != nil {
		return fmt.Errorf("upsert %s: %w", s.Key, err)
	}
	return nil
}

func (c *SQLiteCatalog) Tickers(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT ticker FROM artifacts ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *SQLiteCatalog) ByTicker(ctx context.Context, ticker string) ([]models.ArtifactSummary, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT ticker, model, metrics, trained_at, path FROM artifacts WHERE ticker = ? ORDER BY model`, ticker)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ticker, err)
	}
	defer rows.Close()

	out := []models.ArtifactSummary{}
	for rows.Next() {
		var (
			s       models.ArtifactSummary
			model   string
			metrics string
			at      int64
		)
		if err := rows.Scan(&s.Key.Ticker, &model, &metrics, &at, &s.Path); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		s.Key.Model = models.ModelType(model)
		if err := json.Unmarshal([]byte(metrics), &s.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		s.TrainedAt = time.UnixMilli(at).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}
