package repository

import (
	"context"
	"fmt"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"
	"StockCast/pkg/queue"

	"github.com/google/uuid"
)

// QueueJobs publishes training jobs onto the Redis queue. The returned id is
// the job id carried in the payload, so workers and callers share it.
type QueueJobs struct {
	q queue.Publisher
}

func NewQueueJobs(q queue.Publisher) *QueueJobs {
	return &QueueJobs{q: q}
}

var _ repository.JobQueue = (*QueueJobs)(nil)

func (j *QueueJobs) EnqueueTraining(ctx context.Context, job models.TrainingJob) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if _, err := j.q.PublishMessage(ctx, models.TrainingJobType, job); err != nil {
		return "", fmt.Errorf("enqueue %s %s: %w", job.Ticker, job.Model, err)
	}
	return job.JobID, nil
}
