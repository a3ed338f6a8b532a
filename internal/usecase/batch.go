package usecase

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"StockCast/internal/domain/models"
	"StockCast/pkg/logger"
)

// BatchRequest trains the cross product of tickers and model types.
type BatchRequest struct {
	Tickers   []string
	Models    []models.ModelType
	Start     time.Time
	End       time.Time
	Epochs    int
	BatchSize int
}

// BatchSummary collects the results of a batch run, sorted by key.
type BatchSummary struct {
	Results   []models.TrainingResult `json:"results"`
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
	Duration  time.Duration           `json:"duration"`
}

// BatchTrainer fans independent training jobs out over a bounded pool.
type BatchTrainer struct {
	trainer     *Trainer
	parallelism int
	log         *logger.Logger
}

// NewBatchTrainer creates a BatchTrainer running at most parallelism jobs at once.
func NewBatchTrainer(trainer *Trainer, parallelism int, lgr *logger.Logger) *BatchTrainer {
	if parallelism <= 0 {
		parallelism = 1
	}
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &BatchTrainer{trainer: trainer, parallelism: parallelism, log: lgr}
}

// Run trains every (ticker, model) pair. One failing job never stops the
// others; each outcome is in the summary.
func (b *BatchTrainer) Run(ctx context.Context, req BatchRequest) BatchSummary {
	started := time.Now()
	results := make([]models.TrainingResult, 0, len(req.Tickers)*len(req.Models))
	out := make(chan models.TrainingResult, len(req.Tickers)*len(req.Models))

	b.log.Info("batch training started",
		logger.Strings("tickers", req.Tickers),
		logger.Int("jobs", len(req.Tickers)*len(req.Models)),
		logger.Int("parallelism", b.parallelism))

	var g errgroup.Group
	g.SetLimit(b.parallelism)
	for _, ticker := range req.Tickers {
		for _, mt := range req.Models {
			tr := models.TrainRequest{
				Ticker:    ticker,
				Model:     mt,
				Start:     req.Start,
				End:       req.End,
				Epochs:    req.Epochs,
				BatchSize: req.BatchSize,
			}
			g.Go(func() error {
				out <- b.trainer.Train(ctx, tr)
				return nil
			})
		}
	}
	_ = g.Wait()
	close(out)

	sum := BatchSummary{}
	for r := range out {
		results = append(results, r)
		if r.Success {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key.String() < results[j].Key.String() })
	sum.Results = results
	sum.Duration = time.Since(started)

	b.log.Info("batch training finished",
		logger.Int("succeeded", sum.Succeeded),
		logger.Int("failed", sum.Failed),
		logger.Duration("took", sum.Duration),
	)
	return sum
}
