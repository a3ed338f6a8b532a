package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"

	_ "github.com/lib/pq"
)

// PGPredictionLog appends one-step predictions to the stock_predictions table.
type PGPredictionLog struct {
	db *sql.DB
}

// NewPGPredictionLog opens a pool on dsn and checks connectivity.
func NewPGPredictionLog(ctx context.Context, dsn string, maxConns int) (*PGPredictionLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGPredictionLog{db: db}, nil
}

var _ repository.PredictionLog = (*PGPredictionLog)(nil)

func (p *PGPredictionLog) Init(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS stock_predictions (
			id              SERIAL PRIMARY KEY,
			symbol          VARCHAR(16) NOT NULL,
			model_name      VARCHAR(20) NOT NULL,
			prediction_date DATE NOT NULL,
			predicted_price DOUBLE PRECISION NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_stock_predictions_symbol_created
			ON stock_predictions (symbol, created_at DESC);`
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init stock_predictions: %w", err)
	}
	return nil
}

func (p *PGPredictionLog) Record(ctx context.Context, pr models.Prediction) error {
	created := pr.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	const q = `
		INSERT INTO stock_predictions (symbol, model_name, prediction_date, predicted_price, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := p.db.ExecContext(ctx, q,
		pr.Symbol, string(pr.Model), pr.PredictionDate, pr.PredictedPrice, created); err != nil {
		return fmt.Errorf("record prediction: %w", err)
	}
	return nil
}

// History returns the newest rows first. An empty symbol returns all symbols.
func (p *PGPredictionLog) History(ctx context.Context, symbol string, limit int) ([]models.PredictionRecord, error) {
	const q = `
		SELECT id, symbol, model_name, prediction_date, predicted_price, created_at
		FROM stock_predictions
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := p.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("prediction history: %w", err)
	}
	defer rows.Close()

	out := []models.PredictionRecord{}
	for rows.Next() {
		var (
			r       models.PredictionRecord
			day     time.Time
			created time.Time
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.ModelName, &day, &r.PredictedPrice, &created); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		r.PredictionDate = day.Format(models.DateLayout)
		r.CreatedAt = created.UTC().Format(time.RFC3339)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PGPredictionLog) Close() error {
	return p.db.Close()
}
