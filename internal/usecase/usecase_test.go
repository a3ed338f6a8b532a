package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/forecast"
	"StockCast/internal/model"
	"StockCast/internal/repository"
	"StockCast/pkg/cache"
)

// linearBars returns n weekday bars from 2024-01-01 with closes base+i*step.
func linearBars(ticker string, n int, base, step float64) []models.Bar {
	days := forecast.Weekdays{}.NextTradingDays(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), n)
	out := make([]models.Bar, n)
	for i, d := range days {
		c := base + float64(i)*step
		out[i] = models.Bar{Symbol: ticker, Date: d, Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return out
}

type fakeSource struct {
	mu    sync.Mutex
	bars  []models.Bar
	errs  []error
	calls int
}

func (f *fakeSource) Fetch(_ context.Context, ticker string, _, _ time.Time) ([]models.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([]models.Bar, len(f.bars))
	for i, b := range f.bars {
		b.Symbol = ticker
		out[i] = b
	}
	return out, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMetrics struct {
	mu       sync.Mutex
	training map[string]int
	fetches  map[string]int
	cached   int
	fresh    int
	steps    int
	errors   map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{training: map[string]int{}, fetches: map[string]int{}, errors: map[string]int{}}
}

func (m *fakeMetrics) RecordTraining(_, outcome string, _ float64) {
	m.mu.Lock()
	m.training[outcome]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordFetch(outcome string) {
	m.mu.Lock()
	m.fetches[outcome]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordPrediction(_ string, cached bool) {
	m.mu.Lock()
	if cached {
		m.cached++
	} else {
		m.fresh++
	}
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordForecastSteps(_ string, steps int) {
	m.mu.Lock()
	m.steps += steps
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

type fakeEvents struct {
	mu          sync.Mutex
	results     []models.TrainingResult
	predictions []models.Prediction
}

func (e *fakeEvents) PublishTrainingResult(_ context.Context, r models.TrainingResult) error {
	e.mu.Lock()
	e.results = append(e.results, r)
	e.mu.Unlock()
	return nil
}

func (e *fakeEvents) PublishPrediction(_ context.Context, p models.Prediction) error {
	e.mu.Lock()
	e.predictions = append(e.predictions, p)
	e.mu.Unlock()
	return nil
}

func (e *fakeEvents) Close() error { return nil }

// lastValue predicts the most recent value of the window, i.e. yesterday's
// price.
type lastValue struct {
	spec models.ModelSpec
}

func newLastValue(spec models.ModelSpec) (model.Adapter, error) {
	return &lastValue{spec: spec}, nil
}

func (m *lastValue) Type() models.ModelType { return m.spec.Type }
func (m *lastValue) WindowLen() int { return m.spec.WindowLen }
func (m *lastValue) Spec() models.ModelSpec { return m.spec }
func (m *lastValue) Fit(_ [][]float64, _ []float64, _ model.FitOptions) (models.TrainingCurve, error) {
	return models.TrainingCurve{Train: []float64{0}, Validation: []float64{0}}, nil
}
func (m *lastValue) PredictStep(w []float64) (float64, error) { return w[len(w)-1], nil }
func (m *lastValue) Weights() map[string][]float64 { return map[string][]float64{"none": {0}} }
func (m *lastValue) SetWeights(map[string][]float64) error { return nil }

type testEnv struct {
	source  *fakeSource
	store   *repository.FileArtifactStore
	locker  *repository.CacheLocker
	mem     *cache.MemoryCache
	metrics *fakeMetrics
	events  *fakeEvents
}

func newTestEnv(t *testing.T, bars []models.Bar) *testEnv {
	t.Helper()
	store, err := repository.NewFileArtifactStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	return &testEnv{
		source:  &fakeSource{bars: bars},
		store:   store,
		locker:  repository.NewCacheLocker(mem),
		mem:     mem,
		metrics: newFakeMetrics(),
		events:  &fakeEvents{},
	}
}
