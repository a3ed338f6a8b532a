package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"StockCast/internal/domain/models"
	drepo "StockCast/internal/domain/repository"
	"StockCast/internal/forecast"
	"StockCast/internal/model"
	svccache "StockCast/internal/service/cache"
	"StockCast/pkg/logger"
	xutil "StockCast/pkg/util"
)

// loadedModel is a restored artifact ready to serve.
type loadedModel struct {
	model  *model.Model
	scaler *forecast.Scaler
}

// Predictor serves one-step predictions and rolling forecasts from stored
// artifacts.
type Predictor struct {
	source   drepo.PriceSource
	store    drepo.ArtifactStore
	calendar drepo.TradingCalendar
	metrics  drepo.Metrics
	log      *logger.Logger

	cache  drepo.PredictionCache
	logs   drepo.PredictionLog
	events drepo.EventPublisher

	memo       *svccache.TTLCache[*loadedModel]
	memoTTL    time.Duration
	recentDays int
	now        func() time.Time
}

// PredictorOption customizes a Predictor.
type PredictorOption func(*Predictor)

func WithPredictionCache(c drepo.PredictionCache) PredictorOption {
	return func(p *Predictor) { p.cache = c }
}

func WithPredictionLog(l drepo.PredictionLog) PredictorOption {
	return func(p *Predictor) { p.logs = l }
}

func WithPredictionEvents(e drepo.EventPublisher) PredictorOption {
	return func(p *Predictor) { p.events = e }
}

func WithMemoTTL(d time.Duration) PredictorOption {
	return func(p *Predictor) { p.memoTTL = d }
}

// WithRecentDays sets how many calendar days of recent bars seed a prediction.
func WithRecentDays(n int) PredictorOption {
	return func(p *Predictor) {
		if n > 0 {
			p.recentDays = n
		}
	}
}

func WithPredictorClock(now func() time.Time) PredictorOption {
	return func(p *Predictor) { p.now = now }
}

// NewPredictor creates a Predictor. A nil calendar means weekdays.
func NewPredictor(
	source drepo.PriceSource,
	store drepo.ArtifactStore,
	calendar drepo.TradingCalendar,
	metrics drepo.Metrics,
	lgr *logger.Logger,
	opts ...PredictorOption,
) *Predictor {
	if calendar == nil {
		calendar = forecast.Weekdays{}
	}
	if lgr == nil {
		lgr = logger.Nop()
	}
	p := &Predictor{
		source:     source,
		store:      store,
		calendar:   calendar,
		metrics:    metrics,
		log:        lgr,
		memo:       svccache.NewTTLCache[*loadedModel](),
		memoTTL:    10 * time.Minute,
		recentDays: 90,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Forget drops the memoized artifact of a key so the next request reloads it.
func (p *Predictor) Forget(key models.ArtifactKey) {
	p.memo.Delete(key.String())
}

func (p *Predictor) load(ctx context.Context, key models.ArtifactKey) (*loadedModel, error) {
	if lm, ok := p.memo.Get(key.String()); ok {
		return lm, nil
	}
	a, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	m, err := model.Restore(a)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	lm := &loadedModel{model: m, scaler: forecast.ScalerFromState(a.Scaler)}
	p.memo.Set(key.String(), lm, p.memoTTL)
	return lm, nil
}

// recent fetches enough trailing bars to seed a window of length l.
func (p *Predictor) recent(ctx context.Context, ticker string, l int) ([]models.Bar, error) {
	days := p.recentDays
	if margin := l*7/5 + 30; margin > days {
		days = margin
	}
	end := p.now().UTC()
	bars, err := p.source.Fetch(ctx, ticker, end.AddDate(0, 0, -days), end)
	if err != nil {
		p.metrics.RecordFetch("error")
		return nil, fmt.Errorf("recent data for %s: %w", ticker, err)
	}
	p.metrics.RecordFetch("success")
	return bars, nil
}

// seed loads the model of key and the scaled trailing window it starts from.
func (p *Predictor) seed(ctx context.Context, key models.ArtifactKey) (*loadedModel, []models.Bar, []float64, error) {
	lm, err := p.load(ctx, key)
	if err != nil {
		return nil, nil, nil, err
	}
	bars, err := p.recent(ctx, key.Ticker, lm.model.WindowLen())
	if err != nil {
		return nil, nil, nil, err
	}
	w, err := forecast.SeedWindow(lm.scaler.Transform(models.Closes(bars)), lm.model.WindowLen())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("seed %s: %w", key, err)
	}
	return lm, bars, w, nil
}

// PredictOneStep predicts the close of the next trading day after the last
// observed bar. Results are cached per (symbol, model, day).
func (p *Predictor) PredictOneStep(ctx context.Context, ticker, modelName string) (*models.Prediction, error) {
	mt, err := models.ParseModelType(modelName)
	if err != nil {
		return nil, err
	}
	key := models.NewArtifactKey(ticker, mt)
	day := xutil.Today(p.now()).Format(models.DateLayout)

	if p.cache != nil {
		cached, ok, err := p.cache.Get(ctx, key.Ticker, mt, day)
		if err != nil {
			p.log.Warn("prediction cache read failed", logger.String("key", key.String()), logger.Error(err))
		} else if ok {
			cached.Cached = true
			p.metrics.RecordPrediction(string(mt), true)
			return cached, nil
		}
	}

	lm, bars, window, err := p.seed(ctx, key)
	if err != nil {
		p.metrics.RecordError("predict")
		return nil, err
	}
	next, err := lm.model.PredictStep(window)
	if err != nil {
		p.metrics.RecordError("predict")
		return nil, fmt.Errorf("predict %s: %w", key, err)
	}

	last := models.LastDate(bars)
	pred := models.Prediction{
		Symbol:         key.Ticker,
		Model:          mt,
		PredictedPrice: lm.scaler.InverseOne(next),
		PredictionDate: p.calendar.NextTradingDays(last, 1)[0].Format(models.DateLayout),
		LastClose:      bars[len(bars)-1].Close,
		LastDate:       last.Format(models.DateLayout),
		CreatedAt:      p.now().UTC(),
	}
	p.metrics.RecordPrediction(string(mt), false)
	p.record(ctx, pred, day)
	return &pred, nil
}

// record caches, logs and announces a fresh prediction. None of these fail
// the request.
func (p *Predictor) record(ctx context.Context, pred models.Prediction, day string) {
	l := p.log.With(logger.String("symbol", pred.Symbol), logger.String("model", string(pred.Model)))
	if p.cache != nil {
		if err := p.cache.Set(ctx, pred, day); err != nil {
			l.Warn("prediction cache write failed", logger.Error(err))
		}
	}
	if p.logs != nil {
		if err := p.logs.Record(ctx, pred); err != nil {
			l.Warn("prediction log failed", logger.Error(err))
		}
	}
	if p.events != nil {
		if err := p.events.PublishPrediction(ctx, pred); err != nil {
			l.Warn("publish prediction failed", logger.Error(err))
		}
	}
}

// Forecast rolls the model forward over count units of the horizon.
func (p *Predictor) Forecast(ctx context.Context, ticker, modelName string, count int, unit string) (*models.Forecast, error) {
	mt, err := models.ParseModelType(modelName)
	if err != nil {
		return nil, err
	}
	u, err := models.ParsePeriodUnit(unit)
	if err != nil {
		return nil, err
	}
	h, err := forecast.ResolveHorizon(count, u)
	if err != nil {
		return nil, err
	}
	key := models.NewArtifactKey(ticker, mt)

	lm, bars, window, err := p.seed(ctx, key)
	if err != nil {
		p.metrics.RecordError("forecast")
		return nil, err
	}
	prices, err := forecast.Roll(lm.model, lm.scaler, window, h.Steps)
	if err != nil {
		p.metrics.RecordError("forecast")
		return nil, fmt.Errorf("forecast %s: %w", key, err)
	}
	p.metrics.RecordForecastSteps(string(mt), h.Steps)

	current := bars[len(bars)-1].Close
	out := &models.Forecast{
		Ticker:              key.Ticker,
		Model:               mt,
		PeriodType:          u,
		Periods:             count,
		TotalDays:           h.TotalDays,
		TradingDays:         h.Steps,
		Dates:               forecast.FormatDates(p.calendar.NextTradingDays(models.LastDate(bars), h.Steps)),
		Prices:              prices,
		CurrentPrice:        current,
		PredictedPriceAtEnd: current,
		Trend:               models.TrendBearish,
	}
	if len(prices) > 0 {
		first, last := prices[0], prices[len(prices)-1]
		out.PredictedPriceAtEnd = last
		if last > first {
			out.Trend = models.TrendBullish
		}
		out.ChangePercent = changePercent(first, last)
	}

	p.log.Info("forecast computed",
		logger.String("ticker", key.Ticker),
		logger.String("model", string(mt)),
		logger.Int("steps", h.Steps),
		logger.String("trend", string(out.Trend)),
	)
	return out, nil
}

// changePercent is (last-first)/first*100 rounded half away from zero to
// two decimals.
func changePercent(first, last float64) float64 {
	if first == 0 {
		return 0
	}
	f := decimal.NewFromFloat(first)
	return decimal.NewFromFloat(last).Sub(f).Div(f).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}
