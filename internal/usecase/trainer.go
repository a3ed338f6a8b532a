package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"StockCast/internal/domain/models"
	drepo "StockCast/internal/domain/repository"
	"StockCast/internal/forecast"
	"StockCast/internal/model"
	"StockCast/pkg/logger"
	"StockCast/pkg/retry"
)

// Observer receives every state transition of a training run.
type Observer func(ev models.TrainingEvent)

// ClassifyFetchError maps price source failures onto retry classes.
func ClassifyFetchError(err error) retry.Class {
	switch {
	case errors.Is(err, models.ErrDataUnavailable):
		return retry.Permanent
	case errors.Is(err, models.ErrRateLimited):
		return retry.Throttled
	default:
		return retry.Transient
	}
}

// Trainer runs the download, prepare, fit, evaluate and persist pipeline for
// one (ticker, model type) at a time.
type Trainer struct {
	source  drepo.PriceSource
	store   drepo.ArtifactStore
	locker  drepo.KeyLocker
	metrics drepo.Metrics
	log     *logger.Logger

	catalog drepo.ArtifactCatalog
	history drepo.PriceHistory
	events  drepo.EventPublisher

	retry        *retry.Policy
	factory      model.Factory
	spec         func(models.ModelType) models.ModelSpec
	fit          model.FitOptions
	lockTTL      time.Duration
	defaultStart time.Time
	now          func() time.Time

	mu        sync.RWMutex
	observers []Observer
}

// TrainerOption customizes a Trainer.
type TrainerOption func(*Trainer)

func WithCatalog(c drepo.ArtifactCatalog) TrainerOption {
	return func(t *Trainer) { t.catalog = c }
}

func WithPriceHistory(h drepo.PriceHistory) TrainerOption {
	return func(t *Trainer) { t.history = h }
}

func WithEvents(p drepo.EventPublisher) TrainerOption {
	return func(t *Trainer) { t.events = p }
}

func WithRetryPolicy(p *retry.Policy) TrainerOption {
	return func(t *Trainer) {
		if p != nil {
			t.retry = p
		}
	}
}

func WithModelFactory(f model.Factory) TrainerOption {
	return func(t *Trainer) {
		if f != nil {
			t.factory = f
		}
	}
}

// WithModelSpecs sets the topology used for each model type.
func WithModelSpecs(fn func(models.ModelType) models.ModelSpec) TrainerOption {
	return func(t *Trainer) {
		if fn != nil {
			t.spec = fn
		}
	}
}

// WithFitOptions sets the base fit options. Epochs and batch size of a
// request override them.
func WithFitOptions(o model.FitOptions) TrainerOption {
	return func(t *Trainer) { t.fit = o }
}

func WithLockTTL(d time.Duration) TrainerOption {
	return func(t *Trainer) {
		if d > 0 {
			t.lockTTL = d
		}
	}
}

func WithDefaultStart(d time.Time) TrainerOption {
	return func(t *Trainer) { t.defaultStart = d }
}

func WithTrainerClock(now func() time.Time) TrainerOption {
	return func(t *Trainer) { t.now = now }
}

// NewTrainer creates a Trainer. Catalog, price history and events are optional.
func NewTrainer(
	source drepo.PriceSource,
	store drepo.ArtifactStore,
	locker drepo.KeyLocker,
	metrics drepo.Metrics,
	lgr *logger.Logger,
	opts ...TrainerOption,
) *Trainer {
	if lgr == nil {
		lgr = logger.Nop()
	}
	t := &Trainer{
		source:       source,
		store:        store,
		locker:       locker,
		metrics:      metrics,
		log:          lgr,
		retry:        retry.New(retry.WithClassifier(ClassifyFetchError)),
		factory:      model.NewAdapter,
		spec:         model.DefaultSpec,
		fit:          model.DefaultFitOptions(),
		lockTTL:      time.Hour,
		defaultStart: time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Subscribe registers an observer for state transitions of every run.
func (t *Trainer) Subscribe(o Observer) {
	t.mu.Lock()
	t.observers = append(t.observers, o)
	t.mu.Unlock()
}

// run carries the state of one Train call.
type run struct {
	id      string
	key     models.ArtifactKey
	state   models.TrainingState
	started time.Time
	log     *logger.Logger
}

func (t *Trainer) transition(r *run, s models.TrainingState, detail string) {
	r.state = s
	r.log.Debug("training state", logger.String("state", string(s)), logger.String("detail", detail))
	t.emit(models.TrainingEvent{RunID: r.id, Key: r.key, State: s, Detail: detail, At: t.now().UTC()})
}

func (t *Trainer) emit(ev models.TrainingEvent) {
	t.mu.RLock()
	obs := t.observers
	t.mu.RUnlock()
	for _, o := range obs {
		o(ev)
	}
}

// Train runs the whole pipeline for one key. Failures are reported in the
// result, never as an error.
func (t *Trainer) Train(ctx context.Context, req models.TrainRequest) models.TrainingResult {
	r := &run{
		id:      uuid.NewString(),
		key:     models.NewArtifactKey(req.Ticker, req.Model),
		state:   models.StateIdle,
		started: t.now(),
	}
	r.log = t.log.With(
		logger.String("run_id", r.id),
		logger.String("ticker", r.key.Ticker),
		logger.String("model", string(r.key.Model)),
	)

	if r.key.Ticker == "" {
		return t.fail(ctx, r, fmt.Errorf("ticker is required"))
	}
	mt, err := models.ParseModelType(string(req.Model))
	if err != nil {
		return t.fail(ctx, r, err)
	}
	r.key.Model = mt

	lockKey := "train:" + r.key.String()
	token, ok, err := t.locker.Acquire(ctx, lockKey, t.lockTTL)
	if err != nil {
		return t.fail(ctx, r, fmt.Errorf("acquire lock: %w", err))
	}
	if !ok {
		return t.fail(ctx, r, models.ErrTrainingInProgress)
	}
	defer func() {
		// release even when ctx is already cancelled
		if err := t.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			r.log.Warn("release training lock failed", logger.Duration("lock_ttl", t.lockTTL), logger.Error(err))
		}
	}()

	r.log.Info("training started")
	res, err := t.pipeline(ctx, r, req)
	if err != nil {
		return t.fail(ctx, r, err)
	}
	return res
}

func (t *Trainer) pipeline(ctx context.Context, r *run, req models.TrainRequest) (models.TrainingResult, error) {
	start, end := req.Start, req.End
	if start.IsZero() {
		start = t.defaultStart
	}
	if end.IsZero() {
		end = t.now().UTC()
	}
	if end.Before(start) {
		return models.TrainingResult{}, fmt.Errorf("end %s is before start %s",
			end.Format(models.DateLayout), start.Format(models.DateLayout))
	}

	t.transition(r, models.StateDownloading, fmt.Sprintf("%s to %s", start.Format(models.DateLayout), end.Format(models.DateLayout)))
	bars, err := retry.Value(ctx, t.retry, "fetch "+r.key.Ticker, func(ctx context.Context) ([]models.Bar, error) {
		b, err := t.source.Fetch(ctx, r.key.Ticker, start, end)
		if err == nil && len(b) == 0 {
			err = fmt.Errorf("%w: empty series for %s", models.ErrTransientFetch, r.key.Ticker)
		}
		return b, err
	})
	if err != nil {
		t.metrics.RecordFetch("error")
		return models.TrainingResult{}, fmt.Errorf("download: %w", err)
	}
	t.metrics.RecordFetch("success")
	if t.history != nil {
		if err := t.history.StoreBars(ctx, bars); err != nil {
			r.log.Warn("store price history failed", logger.Error(err))
		}
	}

	t.transition(r, models.StatePreparing, fmt.Sprintf("%d bars", len(bars)))
	spec := t.spec(r.key.Model)
	closes := models.Closes(bars)
	scaler, err := forecast.FitScaler(closes)
	if err != nil {
		return models.TrainingResult{}, fmt.Errorf("prepare: %w", err)
	}
	x, y, err := forecast.MakeWindows(scaler.Transform(closes), spec.WindowLen)
	if err != nil {
		return models.TrainingResult{}, fmt.Errorf("prepare: %w", err)
	}
	split, err := forecast.SplitPositional(x, y, forecast.TrainFraction)
	if err != nil {
		return models.TrainingResult{}, fmt.Errorf("prepare: %w", err)
	}

	t.transition(r, models.StateBuilding, "")
	m, err := t.factory(spec)
	if err != nil {
		return models.TrainingResult{}, fmt.Errorf("build: %w", err)
	}

	t.transition(r, models.StateFitting, fmt.Sprintf("%d train windows", len(split.TrainX)))
	opts := t.fit
	if req.Epochs > 0 {
		opts.Epochs = req.Epochs
	}
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}
	opts.Context = ctx
	opts.OnEpoch = func(epoch int, trainLoss, valLoss float64) {
		t.emit(models.TrainingEvent{
			RunID:  r.id,
			Key:    r.key,
			State:  models.StateFitting,
			Detail: fmt.Sprintf("epoch %d loss=%.6f val_loss=%.6f", epoch, trainLoss, valLoss),
			At:     t.now().UTC(),
		})
	}
	curve, err := m.Fit(split.TrainX, split.TrainY, opts)
	if err != nil {
		return models.TrainingResult{}, fmt.Errorf("fit: %w", err)
	}

	t.transition(r, models.StateEvaluating, fmt.Sprintf("%d test windows", len(split.TestX)))
	predicted := make([]float64, len(split.TestX))
	for i, w := range split.TestX {
		p, err := m.PredictStep(w)
		if err != nil {
			return models.TrainingResult{}, fmt.Errorf("evaluate: %w", err)
		}
		predicted[i] = p
	}
	scores, err := forecast.Evaluate(scaler.Inverse(split.TestY), scaler.Inverse(predicted))
	if err != nil {
		return models.TrainingResult{}, fmt.Errorf("evaluate: %w", err)
	}

	trainedAt := t.now().UTC()
	first, last := bars[0].Date.Format(models.DateLayout), models.LastDate(bars).Format(models.DateLayout)
	metrics := models.Metrics{
		Ticker:     r.key.Ticker,
		Model:      r.key.Model,
		RMSE:       scores.RMSE,
		MAE:        scores.MAE,
		MAPE:       scores.MAPE,
		TrainDate:  trainedAt.Format(models.DateLayout),
		DataPeriod: first + " to " + last,
		Samples:    models.SampleCounts{Train: len(split.TrainX), Test: len(split.TestX)},
	}
	art := &models.Artifact{
		Key:     r.key,
		Spec:    m.Spec(),
		Weights: m.Weights(),
		Scaler:  scaler.State(),
		Metrics: metrics,
		Meta: models.TrainingMeta{
			RunID:     r.id,
			Start:     first,
			End:       last,
			Bars:      len(bars),
			TrainedAt: trainedAt,
			Epochs:    curve.Epochs(),
			BestEpoch: curve.BestEpoch,
			BestLoss:  curve.BestLoss,
		},
	}
	if err := t.store.Put(ctx, art); err != nil {
		return models.TrainingResult{}, fmt.Errorf("persist: %w", err)
	}
	if t.catalog != nil {
		if err := t.catalog.Upsert(ctx, models.ArtifactSummary{Key: r.key, Metrics: metrics, TrainedAt: trainedAt}); err != nil {
			r.log.Warn("catalog upsert failed", logger.Error(err))
		}
	}
	t.transition(r, models.StatePersisted, fmt.Sprintf("rmse=%.4f mae=%.4f mape=%.2f", scores.RMSE, scores.MAE, scores.MAPE))

	res := models.TrainingResult{
		RunID:    r.id,
		Key:      r.key,
		Success:  true,
		State:    models.StatePersisted,
		Metrics:  &metrics,
		Epochs:   curve.Epochs(),
		Duration: t.now().Sub(r.started),
		Finished: trainedAt,
	}
	t.metrics.RecordTraining(string(r.key.Model), "success", res.Duration.Seconds())
	t.publish(ctx, r, res)
	r.log.Info("training finished",
		logger.Float64("rmse", scores.RMSE),
		logger.Float64("mae", scores.MAE),
		logger.Float64("mape", scores.MAPE),
		logger.Int("epochs", res.Epochs),
		logger.Duration("took", res.Duration),
	)
	return res, nil
}

func (t *Trainer) fail(ctx context.Context, r *run, err error) models.TrainingResult {
	failedIn := r.state
	t.transition(r, models.StateFailed, err.Error())

	res := models.TrainingResult{
		RunID:    r.id,
		Key:      r.key,
		State:    models.StateFailed,
		Error:    err.Error(),
		Duration: t.now().Sub(r.started),
		Finished: t.now().UTC(),
	}
	outcome := "failed"
	if errors.Is(err, models.ErrTrainingInProgress) {
		outcome = "locked"
	}
	t.metrics.RecordTraining(string(r.key.Model), outcome, res.Duration.Seconds())
	t.metrics.RecordError("training")
	r.log.Error("training failed", logger.String("state", string(failedIn)), logger.Error(err))

	if outcome != "locked" {
		t.publish(ctx, r, res)
	}
	return res
}

func (t *Trainer) publish(ctx context.Context, r *run, res models.TrainingResult) {
	if t.events == nil {
		return
	}
	if err := t.events.PublishTrainingResult(context.WithoutCancel(ctx), res); err != nil {
		r.log.Warn("publish training result failed", logger.Error(err))
	}
}
