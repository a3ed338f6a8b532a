package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"StockCast/internal/domain/models"
	drepo "StockCast/internal/domain/repository"
	"StockCast/pkg/logger"
	xutil "StockCast/pkg/util"
)

// Registry answers read-only questions about trained artifacts, stored
// prices and logged predictions.
type Registry struct {
	store   drepo.ArtifactStore
	catalog drepo.ArtifactCatalog
	history drepo.PriceHistory
	source  drepo.PriceSource
	logs    drepo.PredictionLog
	log     *logger.Logger
	now     func() time.Time
}

// NewRegistry creates a Registry. catalog may be nil, in which case listings
// are answered from the artifact store.
func NewRegistry(
	store drepo.ArtifactStore,
	catalog drepo.ArtifactCatalog,
	history drepo.PriceHistory,
	source drepo.PriceSource,
	logs drepo.PredictionLog,
	lgr *logger.Logger,
) *Registry {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &Registry{
		store:   store,
		catalog: catalog,
		history: history,
		source:  source,
		logs:    logs,
		log:     lgr,
		now:     time.Now,
	}
}

// Resync upserts every stored artifact into the catalog. Artifacts written
// while the catalog was unavailable become listable again.
func (r *Registry) Resync(ctx context.Context) (int, error) {
	if r.catalog == nil {
		return 0, nil
	}
	keys, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("resync catalog: %w", err)
	}
	n := 0
	for _, k := range keys {
		a, err := r.store.Get(ctx, k)
		if err != nil {
			r.log.Warn("resync skipped artifact", logger.String("key", k.String()), logger.Error(err))
			continue
		}
		s := models.ArtifactSummary{Key: k, Metrics: a.Metrics, TrainedAt: a.Meta.TrainedAt}
		if err := r.catalog.Upsert(ctx, s); err != nil {
			return n, fmt.Errorf("resync catalog: %w", err)
		}
		n++
	}
	r.log.Info("catalog resynced", logger.Int("artifacts", n))
	return n, nil
}

// Tickers lists tickers with at least one trained model.
func (r *Registry) Tickers(ctx context.Context) ([]string, error) {
	if r.catalog != nil {
		return r.catalog.Tickers(ctx)
	}
	keys, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}
	tickers := make([]string, 0, len(keys))
	for _, k := range keys {
		tickers = append(tickers, k.Ticker)
	}
	out := xutil.NormalizeSymbols(tickers)
	sort.Strings(out)
	return out, nil
}

// TrainedModels reports which model types have an artifact for ticker.
func (r *Registry) TrainedModels(ctx context.Context, ticker string) ([]models.ModelType, error) {
	out := make([]models.ModelType, 0, 3)
	for _, mt := range models.AllModelTypes() {
		ok, err := r.store.Exists(ctx, models.NewArtifactKey(ticker, mt))
		if err != nil {
			return nil, fmt.Errorf("trained models: %w", err)
		}
		if ok {
			out = append(out, mt)
		}
	}
	return out, nil
}

// ModelMetrics returns the held-out metrics of every trained model of ticker.
// ErrArtifactNotFound when nothing was trained.
func (r *Registry) ModelMetrics(ctx context.Context, ticker string) ([]models.Metrics, error) {
	ticker = normTicker(ticker)
	var out []models.Metrics
	if r.catalog != nil {
		sums, err := r.catalog.ByTicker(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("model metrics: %w", err)
		}
		for _, s := range sums {
			out = append(out, s.Metrics)
		}
	} else {
		var err error
		if out, err = r.loadMetrics(ctx, ticker); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("model metrics for %s: %w", ticker, models.ErrArtifactNotFound)
	}
	return out, nil
}

// StockBars returns the bars of the last days calendar days, from price
// history when it has them and from the price source otherwise.
func (r *Registry) StockBars(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	symbol = normTicker(symbol)
	end := r.now().UTC()
	since := end.AddDate(0, 0, -days)
	if r.history != nil {
		bars, err := r.history.Recent(ctx, symbol, since)
		if err != nil {
			r.log.Warn("price history read failed", logger.String("symbol", symbol), logger.Error(err))
		} else if len(bars) > 0 {
			return bars, nil
		}
	}
	bars, err := r.source.Fetch(ctx, symbol, since, end)
	if err != nil {
		return nil, fmt.Errorf("stock data for %s: %w", symbol, err)
	}
	if r.history != nil {
		if err := r.history.StoreBars(ctx, bars); err != nil {
			r.log.Warn("store price history failed", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	return bars, nil
}

// PredictionHistory lists logged predictions, newest first.
func (r *Registry) PredictionHistory(ctx context.Context, symbol string, limit int) ([]models.PredictionRecord, error) {
	if r.logs == nil {
		return []models.PredictionRecord{}, nil
	}
	recs, err := r.logs.History(ctx, normTicker(symbol), limit)
	if err != nil {
		return nil, fmt.Errorf("prediction history: %w", err)
	}
	return recs, nil
}

func normTicker(s string) string {
	return models.NewArtifactKey(s, "").Ticker
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrArtifactNotFound)
}
