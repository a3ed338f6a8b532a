package repository

import (
	"context"
	"fmt"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"
	pkgch "StockCast/pkg/clickhouse"
	applogger "StockCast/pkg/logger"
)

// CHPriceHistory stores daily bars in a ReplacingMergeTree so re-downloading a
// range overwrites rather than duplicates.
type CHPriceHistory struct {
	ch    *pkgch.Client
	table string
	l     *applogger.Logger
}

func NewCHPriceHistory(ch *pkgch.Client, table string, l *applogger.Logger) *CHPriceHistory {
	if table == "" {
		table = "daily_bars"
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHPriceHistory{ch: ch, table: table, l: l}
}

var _ repository.PriceHistory = (*CHPriceHistory)(nil)

func (s *CHPriceHistory) Init(ctx context.Context) error {
	return s.ch.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol     LowCardinality(String),
			date       Date,
			open       Float64,
			high       Float64,
			low        Float64,
			close      Float64,
			volume     Float64,
			updated_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (symbol, date)`, s.table))
}

func (s *CHPriceHistory) StoreBars(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(bars))
	now := time.Now().UTC()
	for _, b := range bars {
		rows = append(rows, []any{b.Symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, now})
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, date, open, high, low, close, volume, updated_at)", s.table)
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		s.l.Error("clickhouse store_bars error",
			applogger.String("table", s.table),
			applogger.String("symbol", bars[0].Symbol),
			applogger.Int("rows", len(rows)),
			applogger.Error(err))
		return fmt.Errorf("store bars: %w", err)
	}
	return nil
}

func (s *CHPriceHistory) Recent(ctx context.Context, symbol string, since time.Time) ([]models.Bar, error) {
	q := fmt.Sprintf(`
		SELECT symbol, date, open, high, low, close, volume
		FROM %s FINAL
		WHERE symbol = ? AND date >= ?
		ORDER BY date ASC`, s.table)
	rows, err := s.ch.DB().QueryContext(ctx, q, symbol, since)
	if err != nil {
		return nil, fmt.Errorf("recent bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 64)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = b.Date.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// Close is a no-op; the client is owned by the caller.
func (s *CHPriceHistory) Close() error { return nil }
