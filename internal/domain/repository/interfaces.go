package repository

import (
	"context"
	"time"

	"StockCast/internal/domain/models"
)

// PriceSource downloads daily bars. Errors are classified with the sentinels in
// models (ErrDataUnavailable, ErrRateLimited, ErrTransientFetch).
type PriceSource interface {
	Fetch(ctx context.Context, ticker string, start, end time.Time) ([]models.Bar, error)
}

// ArtifactStore persists trained artifacts keyed by (ticker, model type).
// Put replaces the key atomically.
type ArtifactStore interface {
	Get(ctx context.Context, key models.ArtifactKey) (*models.Artifact, error)
	Put(ctx context.Context, a *models.Artifact) error
	Exists(ctx context.Context, key models.ArtifactKey) (bool, error)
	List(ctx context.Context) ([]models.ArtifactKey, error)
}

// ArtifactCatalog indexes artifact summaries for listing endpoints.
type ArtifactCatalog interface {
	Upsert(ctx context.Context, s models.ArtifactSummary) error
	Tickers(ctx context.Context) ([]string, error)
	ByTicker(ctx context.Context, ticker string) ([]models.ArtifactSummary, error)
	Close() error
}

// PriceHistory stores downloaded bars for the stock endpoint.
type PriceHistory interface {
	Init(ctx context.Context) error
	StoreBars(ctx context.Context, bars []models.Bar) error
	Recent(ctx context.Context, symbol string, since time.Time) ([]models.Bar, error)
	Close() error
}

// PredictionLog records every freshly computed one-step prediction.
type PredictionLog interface {
	Init(ctx context.Context) error
	Record(ctx context.Context, p models.Prediction) error
	History(ctx context.Context, symbol string, limit int) ([]models.PredictionRecord, error)
	Close() error
}

// EventPublisher announces training results and predictions.
type EventPublisher interface {
	PublishTrainingResult(ctx context.Context, r models.TrainingResult) error
	PublishPrediction(ctx context.Context, p models.Prediction) error
	Close() error
}

// PredictionCache memoizes one-step predictions per (symbol, model, day).
type PredictionCache interface {
	Get(ctx context.Context, symbol string, model models.ModelType, day string) (*models.Prediction, bool, error)
	Set(ctx context.Context, p models.Prediction, day string) error
	Invalidate(ctx context.Context, symbol string, model models.ModelType) error
}

// KeyLocker guards a training key. Acquire returns false when already held,
// and otherwise the owner token Release must present.
type KeyLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// TradingCalendar yields the trading days following a date.
type TradingCalendar interface {
	NextTradingDays(after time.Time, n int) []time.Time
}

// JobQueue enqueues training jobs for background workers.
type JobQueue interface {
	EnqueueTraining(ctx context.Context, job models.TrainingJob) (string, error)
}

// Metrics is the recorder interface the usecases report through.
type Metrics interface {
	RecordTraining(model, outcome string, seconds float64)
	RecordFetch(outcome string)
	RecordPrediction(model string, cached bool)
	RecordForecastSteps(model string, steps int)
	RecordError(kind string)
}
