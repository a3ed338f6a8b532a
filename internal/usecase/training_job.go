package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"StockCast/internal/domain/models"
	drepo "StockCast/internal/domain/repository"
	"StockCast/pkg/logger"
	"StockCast/pkg/queue"
)

// TrainingJobHandler runs queued training jobs on a worker.
type TrainingJobHandler struct {
	trainer *Trainer
	log     *logger.Logger
}

var _ queue.Job = (*TrainingJobHandler)(nil)

func NewTrainingJobHandler(trainer *Trainer, lgr *logger.Logger) *TrainingJobHandler {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &TrainingJobHandler{trainer: trainer, log: lgr}
}

func (h *TrainingJobHandler) Name() string { return "training-runner" }
func (h *TrainingJobHandler) Type() string { return models.TrainingJobType }

// Handle trains one key. Only malformed payloads are returned as errors, a
// failed run is final and must not be requeued.
func (h *TrainingJobHandler) Handle(ctx context.Context, payload interface{}) error {
	job, err := queue.ParsePayload[models.TrainingJob](payload)
	if err != nil {
		return fmt.Errorf("training job: %w", err)
	}
	req, err := job.Request()
	if err != nil {
		return fmt.Errorf("training job %s: %w", job.JobID, err)
	}
	res := h.trainer.Train(ctx, req)
	h.log.Info("training job done",
		logger.String("job_id", job.JobID),
		logger.String("key", res.Key.String()),
		logger.Bool("success", res.Success),
		logger.String("error", res.Error),
	)
	return nil
}

// Scheduler turns a training request for a ticker into one queued job per
// model type.
type Scheduler struct {
	jobs     drepo.JobQueue
	defaults []models.ModelType
}

// NewScheduler creates a Scheduler. defaults are used when a request names
// no models.
func NewScheduler(jobs drepo.JobQueue, defaults []models.ModelType) *Scheduler {
	if len(defaults) == 0 {
		defaults = models.AllModelTypes()
	}
	return &Scheduler{jobs: jobs, defaults: defaults}
}

// ScheduledJob identifies an enqueued training job.
type ScheduledJob struct {
	JobID string           `json:"job_id"`
	Model models.ModelType `json:"model"`
}

// EnqueueTicker validates the request and enqueues its jobs.
func (s *Scheduler) EnqueueTicker(ctx context.Context, req models.TrainTickerRequest) ([]ScheduledJob, error) {
	types := s.defaults
	if len(req.Models) > 0 {
		types = make([]models.ModelType, 0, len(req.Models))
		for _, name := range req.Models {
			mt, err := models.ParseModelType(name)
			if err != nil {
				return nil, err
			}
			types = append(types, mt)
		}
	}

	key := models.NewArtifactKey(req.Ticker, "")
	out := make([]ScheduledJob, 0, len(types))
	for _, mt := range types {
		id, err := s.jobs.EnqueueTraining(ctx, models.TrainingJob{
			JobID:     uuid.NewString(),
			Ticker:    key.Ticker,
			Model:     string(mt),
			Start:     req.Start,
			End:       req.End,
			Epochs:    req.Epochs,
			BatchSize: req.BatchSize,
		})
		if err != nil {
			return out, err
		}
		out = append(out, ScheduledJob{JobID: id, Model: mt})
	}
	return out, nil
}

// LocalJobs runs training jobs on in-process workers when no queue backend
// is configured.
type LocalJobs struct {
	handler *TrainingJobHandler
	ch      chan models.TrainingJob
	log     *logger.Logger
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// ErrLocalJobsClosed is returned by EnqueueTraining after Close.
var ErrLocalJobsClosed = errors.New("local jobs closed")

var _ drepo.JobQueue = (*LocalJobs)(nil)

// NewLocalJobs starts workers goroutines draining a queue of size buffer.
func NewLocalJobs(handler *TrainingJobHandler, workers, buffer int, lgr *logger.Logger) *LocalJobs {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	if lgr == nil {
		lgr = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	j := &LocalJobs{
		handler: handler,
		ch:      make(chan models.TrainingJob, buffer),
		log:     lgr,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		j.wg.Add(1)
		go j.work()
	}
	return j
}

func (j *LocalJobs) work() {
	defer j.wg.Done()
	for job := range j.ch {
		if err := j.handler.Handle(j.ctx, job); err != nil {
			j.log.Error("local training job failed", logger.String("job_id", job.JobID), logger.Error(err))
		}
	}
}

// EnqueueTraining fails when the buffer is full instead of blocking the caller.
func (j *LocalJobs) EnqueueTraining(ctx context.Context, job models.TrainingJob) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return "", fmt.Errorf("enqueue %s: %w", job.Ticker, ErrLocalJobsClosed)
	}
	select {
	case j.ch <- job:
		return job.JobID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", fmt.Errorf("enqueue %s %s: local job queue is full", job.Ticker, job.Model)
	}
}

// Close stops accepting jobs, cancels running ones and waits for the workers.
func (j *LocalJobs) Close() error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.ch)
	}
	j.mu.Unlock()
	j.cancel()
	j.wg.Wait()
	return nil
}
