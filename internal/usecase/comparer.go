package usecase

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"StockCast/internal/domain/models"
	"StockCast/internal/forecast"
)

// loadMetrics reads the metrics of every model type of ticker concurrently,
// skipping the untrained ones. The result keeps AllModelTypes order.
func (r *Registry) loadMetrics(ctx context.Context, ticker string) ([]models.Metrics, error) {
	types := models.AllModelTypes()
	found := make([]*models.Metrics, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, mt := range types {
		g.Go(func() error {
			a, err := r.store.Get(gctx, models.NewArtifactKey(ticker, mt))
			if isNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			m := a.Metrics
			found[i] = &m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load metrics for %s: %w", ticker, err)
	}

	out := make([]models.Metrics, 0, len(types))
	for _, m := range found {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

// Compare ranks every trained model of ticker by average metric rank.
func (r *Registry) Compare(ctx context.Context, ticker string) (*models.Comparison, error) {
	key := models.NewArtifactKey(ticker, "")
	entries, err := r.loadMetrics(ctx, key.Ticker)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("compare %s: %w", key.Ticker, models.ErrArtifactNotFound)
	}
	ranked := forecast.Rank(entries)
	return &models.Comparison{
		Ticker:      key.Ticker,
		Ranked:      ranked,
		Best:        ranked[0].Model,
		BestVsWorst: forecast.BestVsWorst(ranked),
	}, nil
}
