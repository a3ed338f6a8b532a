package models

import (
	"fmt"
	"time"
)

// TrainingState is a step of the training pipeline.
type TrainingState string

const (
	StateIdle        TrainingState = "idle"
	StateDownloading TrainingState = "downloading"
	StatePreparing   TrainingState = "preparing"
	StateBuilding    TrainingState = "building"
	StateFitting     TrainingState = "fitting"
	StateEvaluating  TrainingState = "evaluating"
	StatePersisted   TrainingState = "persisted"
	StateFailed      TrainingState = "failed"
)

// Terminal reports whether no further transition can follow.
func (s TrainingState) Terminal() bool {
	return s == StatePersisted || s == StateFailed
}

// TrainRequest asks for one (ticker, model) training run.
type TrainRequest struct {
	Ticker    string    `json:"ticker"`
	Model     ModelType `json:"model"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Epochs    int       `json:"epochs"`
	BatchSize int       `json:"batch_size"`
}

// TrainingResult is the outcome of a run. Failures are values, not errors.
type TrainingResult struct {
	RunID    string        `json:"run_id"`
	Key      ArtifactKey   `json:"key"`
	Success  bool          `json:"success"`
	State    TrainingState `json:"state"`
	Error    string        `json:"error,omitempty"`
	Metrics  *Metrics      `json:"metrics,omitempty"`
	Epochs   int           `json:"epochs"`
	Duration time.Duration `json:"duration"`
	Finished time.Time     `json:"finished"`
}

// TrainingEvent is emitted on every state transition of a run.
type TrainingEvent struct {
	RunID  string        `json:"run_id"`
	Key    ArtifactKey   `json:"key"`
	State  TrainingState `json:"state"`
	Detail string        `json:"detail,omitempty"`
	At     time.Time     `json:"at"`
}

// TrainingJob is the queued form of a TrainRequest.
type TrainingJob struct {
	JobID     string `json:"job_id"`
	Ticker    string `json:"ticker"`
	Model     string `json:"model"`
	Start     string `json:"start"`
	End       string `json:"end,omitempty"`
	Epochs    int    `json:"epochs"`
	BatchSize int    `json:"batch_size"`
}

// TrainingJobType is the queue message type of a TrainingJob.
const TrainingJobType = "training.run"

// Request converts a queued job back into a TrainRequest. Empty dates mean
// the trainer defaults.
func (j TrainingJob) Request() (TrainRequest, error) {
	mt, err := ParseModelType(j.Model)
	if err != nil {
		return TrainRequest{}, err
	}
	req := TrainRequest{Ticker: j.Ticker, Model: mt, Epochs: j.Epochs, BatchSize: j.BatchSize}
	if j.Start != "" {
		if req.Start, err = time.Parse(DateLayout, j.Start); err != nil {
			return TrainRequest{}, fmt.Errorf("start: %w", err)
		}
	}
	if j.End != "" {
		if req.End, err = time.Parse(DateLayout, j.End); err != nil {
			return TrainRequest{}, fmt.Errorf("end: %w", err)
		}
	}
	return req, nil
}
