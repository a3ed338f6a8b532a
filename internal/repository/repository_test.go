package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/pkg/cache"
)

func sampleArtifact(ticker string, mt models.ModelType) *models.Artifact {
	key := models.NewArtifactKey(ticker, mt)
	return &models.Artifact{
		Key:     key,
		Spec:    models.ModelSpec{Type: mt, WindowLen: 60, Hidden: 4, Dropout: 0.2, Seed: 42},
		Weights: map[string][]float64{"w": {0.1, -0.2, 0.3}},
		Scaler:  models.ScalerState{Min: 10, Max: 20},
		Metrics: models.Metrics{Ticker: key.Ticker, Model: mt, RMSE: 1.5, MAE: 1.2, MAPE: 0.8},
		Meta:    models.TrainingMeta{RunID: "run-1", TrainedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
}

func TestFileArtifactStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileArtifactStore(dir, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	key := models.NewArtifactKey("aapl", models.ModelGRU)
	if _, err := s.Get(ctx, key); !errors.Is(err, models.ErrArtifactNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if ok, _ := s.Exists(ctx, key); ok {
		t.Fatalf("should not exist yet")
	}

	a := sampleArtifact("AAPL", models.ModelGRU)
	if err := s.Put(ctx, a); err != nil {
		t.Fatalf("put: %v", err)
	}
	if want := filepath.Join(dir, "AAPL", "gru_aapl.json"); s.Path(key) != want {
		t.Fatalf("path %s want %s", s.Path(key), want)
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Scaler != a.Scaler || got.Weights["w"][1] != -0.2 || got.Metrics.RMSE != 1.5 {
		t.Fatalf("round trip mismatch %+v", got)
	}

	// Overwrite keeps a single file and no temp leftovers.
	a.Metrics.RMSE = 0.9
	if err := s.Put(ctx, a); err != nil {
		t.Fatalf("put again: %v", err)
	}
	files, _ := os.ReadDir(filepath.Join(dir, "AAPL"))
	if len(files) != 1 {
		t.Fatalf("expected one file, got %d", len(files))
	}
	got, _ = s.Get(ctx, key)
	if got.Metrics.RMSE != 0.9 {
		t.Fatalf("overwrite not visible")
	}
}

func TestFileArtifactStoreList(t *testing.T) {
	ctx := context.Background()
	s, _ := NewFileArtifactStore(t.TempDir(), nil)
	for _, a := range []*models.Artifact{
		sampleArtifact("MSFT", models.ModelLSTM),
		sampleArtifact("AAPL", models.ModelTransformer),
		sampleArtifact("AAPL", models.ModelGRU),
	} {
		if err := s.Put(ctx, a); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	keys, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"AAPL:GRU", "AAPL:TRANSFORMER", "MSFT:LSTM"}
	if len(keys) != len(want) {
		t.Fatalf("got %v", keys)
	}
	for i, k := range keys {
		if k.String() != want[i] {
			t.Fatalf("got %v want %v", keys, want)
		}
	}
}

func TestSQLiteCatalog(t *testing.T) {
	ctx := context.Background()
	c, err := NewSQLiteCatalog(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, a := range []*models.Artifact{sampleArtifact("AAPL", models.ModelGRU), sampleArtifact("AAPL", models.ModelLSTM), sampleArtifact("TSLA", models.ModelGRU)} {
		if err := c.Upsert(ctx, models.ArtifactSummary{Key: a.Key, Metrics: a.Metrics, TrainedAt: at}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	// Upsert replaces.
	m := sampleArtifact("AAPL", models.ModelGRU).Metrics
	m.RMSE = 0.5
	if err := c.Upsert(ctx, models.ArtifactSummary{Key: models.NewArtifactKey("AAPL", models.ModelGRU), Metrics: m, TrainedAt: at}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	tickers, err := c.Tickers(ctx)
	if err != nil || len(tickers) != 2 || tickers[0] != "AAPL" {
		t.Fatalf("tickers %v %v", tickers, err)
	}
	rows, err := c.ByTicker(ctx, "AAPL")
	if err != nil || len(rows) != 2 {
		t.Fatalf("by ticker %v %v", rows, err)
	}
	if rows[0].Key.Model != models.ModelGRU || rows[0].Metrics.RMSE != 0.5 || !rows[0].TrainedAt.Equal(at) {
		t.Fatalf("unexpected row %+v", rows[0])
	}
	if rows, _ := c.ByTicker(ctx, "NONE"); len(rows) != 0 {
		t.Fatalf("expected empty result")
	}
}

func TestMemoryPriceHistory(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryPriceHistory()
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }
	_ = h.StoreBars(ctx, []models.Bar{{Symbol: "AAPL", Date: d(3), Close: 3}, {Symbol: "AAPL", Date: d(2), Close: 2}})
	_ = h.StoreBars(ctx, []models.Bar{{Symbol: "AAPL", Date: d(3), Close: 3.5}, {Symbol: "MSFT", Date: d(3), Close: 9}})

	bars, _ := h.Recent(ctx, "AAPL", d(1))
	if len(bars) != 2 || bars[0].Close != 2 || bars[1].Close != 3.5 {
		t.Fatalf("unexpected bars %+v", bars)
	}
	bars, _ = h.Recent(ctx, "AAPL", d(3))
	if len(bars) != 1 {
		t.Fatalf("since filter not applied: %+v", bars)
	}
}

func TestMemoryPredictionLog(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryPredictionLog(3)
	for i, s := range []string{"AAPL", "MSFT", "AAPL", "AAPL"} {
		_ = l.Record(ctx, models.Prediction{Symbol: s, Model: models.ModelGRU, PredictedPrice: float64(i)})
	}
	all, _ := l.History(ctx, "", 10)
	if len(all) != 3 || all[0].PredictedPrice != 3 {
		t.Fatalf("expected newest first and bounded, got %+v", all)
	}
	aapl, _ := l.History(ctx, "AAPL", 1)
	if len(aapl) != 1 || aapl[0].Symbol != "AAPL" {
		t.Fatalf("unexpected %+v", aapl)
	}
}

func TestCachedPredictions(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	pc := NewCachedPredictions(mc, time.Hour)

	p := models.Prediction{Symbol: "AAPL", Model: models.ModelGRU, PredictedPrice: 190.1, PredictionDate: "2024-01-03"}
	if err := pc.Set(ctx, p, "2024-01-02"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := pc.Get(ctx, "AAPL", models.ModelGRU, "2024-01-02")
	if err != nil || !ok || got.PredictedPrice != 190.1 {
		t.Fatalf("get %+v %v %v", got, ok, err)
	}
	if _, ok, _ := pc.Get(ctx, "AAPL", models.ModelLSTM, "2024-01-02"); ok {
		t.Fatalf("model must be part of the key")
	}
	if err := pc.Invalidate(ctx, "AAPL", models.ModelGRU); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := pc.Get(ctx, "AAPL", models.ModelGRU, "2024-01-02"); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestCacheLocker(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	l := NewCacheLocker(mc)

	token, ok, _ := l.Acquire(ctx, "train:AAPL:GRU", time.Minute)
	if !ok || token == "" {
		t.Fatalf("first acquire should succeed")
	}
	if _, ok, _ := l.Acquire(ctx, "train:AAPL:GRU", time.Minute); ok {
		t.Fatalf("second acquire should fail")
	}
	if _, ok, _ := l.Acquire(ctx, "train:AAPL:LSTM", time.Minute); !ok {
		t.Fatalf("other keys are independent")
	}
	if err := l.Release(ctx, "train:AAPL:GRU", "someone-else"); !errors.Is(err, cache.ErrLockNotHeld) {
		t.Fatalf("release with a foreign token: %v", err)
	}
	if err := l.Release(ctx, "train:AAPL:GRU", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := l.Acquire(ctx, "train:AAPL:GRU", time.Minute); !ok {
		t.Fatalf("acquire after release should succeed")
	}
}

func TestCacheLockerSurvivesFullCache(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(5000))
	defer mc.Close()
	l := NewCacheLocker(mc)
	pc := NewCachedPredictions(mc, time.Hour)

	if _, ok, _ := l.Acquire(ctx, "train:AAPL:GRU", time.Hour); !ok {
		t.Fatalf("first acquire should succeed")
	}
	for i := 0; i < 5000; i++ {
		p := models.Prediction{Symbol: fmt.Sprintf("T%d", i), Model: models.ModelGRU, PredictedPrice: 1}
		if err := pc.Set(ctx, p, "2024-01-02"); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if _, ok, _ := l.Acquire(ctx, "train:AAPL:GRU", time.Hour); ok {
		t.Fatalf("cached predictions evicted a held training lock")
	}
}

type fakeQueue struct {
	msgType string
	payload interface{}
}

func (f *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) (string, error) {
	f.msgType, f.payload = msgType, payload
	return "msg-1", nil
}

func TestQueueJobs(t *testing.T) {
	fq := &fakeQueue{}
	id, err := NewQueueJobs(fq).EnqueueTraining(context.Background(), models.TrainingJob{Ticker: "AAPL", Model: "GRU"})
	if err != nil || id == "" {
		t.Fatalf("enqueue %q %v", id, err)
	}
	job, ok := fq.payload.(models.TrainingJob)
	if fq.msgType != models.TrainingJobType || !ok || job.JobID != id {
		t.Fatalf("unexpected message %s %+v", fq.msgType, fq.payload)
	}
}
