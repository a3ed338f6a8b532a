package repository

import (
	"context"
	"fmt"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"
	"StockCast/pkg/cache"
)

// CachedPredictions stores one-step predictions under
// prediction:{SYMBOL}:{model}:{date}.
type CachedPredictions struct {
	c   cache.Service
	ttl time.Duration
}

func NewCachedPredictions(c cache.Service, ttl time.Duration) *CachedPredictions {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedPredictions{c: c, ttl: ttl}
}

var _ repository.PredictionCache = (*CachedPredictions)(nil)

func predictionKey(symbol string, model models.ModelType, day string) string {
	return fmt.Sprintf("prediction:%s:%s:%s", symbol, model.Lower(), day)
}

func (p *CachedPredictions) Get(ctx context.Context, symbol string, model models.ModelType, day string) (*models.Prediction, bool, error) {
	pr, ok, err := cache.GetTyped[models.Prediction](ctx, p.c, predictionKey(symbol, model, day))
	if err != nil || !ok {
		return nil, false, err
	}
	return &pr, true, nil
}

func (p *CachedPredictions) Set(ctx context.Context, pr models.Prediction, day string) error {
	return p.c.Set(ctx, predictionKey(pr.Symbol, pr.Model, day), pr, p.ttl)
}

func (p *CachedPredictions) Invalidate(ctx context.Context, symbol string, model models.ModelType) error {
	return p.c.DeleteByPattern(ctx, fmt.Sprintf("prediction:%s:%s:*", symbol, model.Lower()))
}
