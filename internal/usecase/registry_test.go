package usecase

import (
	"context"
	"errors"
	"testing"

	"StockCast/internal/domain/models"
	"StockCast/internal/repository"
)

func putMetrics(t *testing.T, env *testEnv, ticker string, mt models.ModelType, v float64) {
	t.Helper()
	a := &models.Artifact{
		Key:     models.NewArtifactKey(ticker, mt),
		Spec:    models.ModelSpec{Type: mt, WindowLen: 60},
		Metrics: models.Metrics{Ticker: ticker, Model: mt, RMSE: v, MAE: v, MAPE: v},
	}
	if err := env.store.Put(context.Background(), a); err != nil {
		t.Fatalf("put: %v", err)
	}
}

func TestCompareRanksModels(t *testing.T) {
	env := newTestEnv(t, nil)
	putMetrics(t, env, "AAPL", models.ModelLSTM, 10)
	putMetrics(t, env, "AAPL", models.ModelGRU, 5)
	putMetrics(t, env, "AAPL", models.ModelTransformer, 1)
	r := NewRegistry(env.store, nil, nil, env.source, nil, nil)

	c, err := r.Compare(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if c.Ticker != "AAPL" || c.Best != models.ModelTransformer || len(c.Ranked) != 3 {
		t.Fatalf("unexpected comparison %+v", c)
	}
	if c.Ranked[2].Model != models.ModelLSTM || c.Ranked[2].AvgRank != 3 {
		t.Fatalf("unexpected worst %+v", c.Ranked[2])
	}
	if c.BestVsWorst == nil || c.BestVsWorst.RMSE != 900 {
		t.Fatalf("unexpected diff %+v", c.BestVsWorst)
	}

	if _, err := r.Compare(context.Background(), "MSFT"); !errors.Is(err, models.ErrArtifactNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegistryListingsWithCatalog(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	putMetrics(t, env, "TSLA", models.ModelGRU, 2)
	putMetrics(t, env, "AAPL", models.ModelLSTM, 3)

	cat, err := repository.NewSQLiteCatalog(ctx, ":memory:")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	defer cat.Close()

	r := NewRegistry(env.store, cat, nil, env.source, nil, nil)
	n, err := r.Resync(ctx)
	if err != nil || n != 2 {
		t.Fatalf("resync: %d %v", n, err)
	}

	tickers, err := r.Tickers(ctx)
	if err != nil || len(tickers) != 2 || tickers[0] != "AAPL" || tickers[1] != "TSLA" {
		t.Fatalf("tickers %v %v", tickers, err)
	}
	ms, err := r.ModelMetrics(ctx, "TSLA")
	if err != nil || len(ms) != 1 || ms[0].RMSE != 2 {
		t.Fatalf("metrics %+v %v", ms, err)
	}
	if _, err := r.ModelMetrics(ctx, "NVDA"); !errors.Is(err, models.ErrArtifactNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	trained, err := r.TrainedModels(ctx, "TSLA")
	if err != nil || len(trained) != 1 || trained[0] != models.ModelGRU {
		t.Fatalf("trained %v %v", trained, err)
	}
}

func TestRegistryTickersFromStore(t *testing.T) {
	env := newTestEnv(t, nil)
	putMetrics(t, env, "MSFT", models.ModelGRU, 2)
	putMetrics(t, env, "MSFT", models.ModelLSTM, 3)
	r := NewRegistry(env.store, nil, nil, env.source, nil, nil)

	tickers, err := r.Tickers(context.Background())
	if err != nil || len(tickers) != 1 || tickers[0] != "MSFT" {
		t.Fatalf("tickers %v %v", tickers, err)
	}
	ms, err := r.ModelMetrics(context.Background(), "MSFT")
	if err != nil || len(ms) != 2 || ms[0].Model != models.ModelLSTM {
		t.Fatalf("metrics %+v %v", ms, err)
	}
}

func TestStockBarsFallsBackToSource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, linearBars("AAPL", 10, 100, 1))
	history := repository.NewMemoryPriceHistory()
	r := NewRegistry(env.store, nil, history, env.source, nil, nil)
	r.now = fixedClock

	bars, err := r.StockBars(ctx, "AAPL", 90)
	if err != nil || len(bars) != 10 {
		t.Fatalf("bars %d %v", len(bars), err)
	}
	if _, err := r.StockBars(ctx, "AAPL", 90); err != nil {
		t.Fatalf("second read: %v", err)
	}
	if env.source.Calls() != 1 {
		t.Fatalf("second read should come from price history, calls=%d", env.source.Calls())
	}

	env.source.errs = []error{models.ErrDataUnavailable}
	if _, err := r.StockBars(ctx, "ZZZZ", 30); !errors.Is(err, models.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable, got %v", err)
	}
}

func TestPredictionHistoryWithoutLog(t *testing.T) {
	env := newTestEnv(t, nil)
	r := NewRegistry(env.store, nil, nil, env.source, nil, nil)
	recs, err := r.PredictionHistory(context.Background(), "", 10)
	if err != nil || recs == nil || len(recs) != 0 {
		t.Fatalf("expected empty history, got %v %v", recs, err)
	}
}
