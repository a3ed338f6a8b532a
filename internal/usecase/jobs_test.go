package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/repository"
)

func TestBatchTrainerRunsEveryPair(t *testing.T) {
	env := newTestEnv(t, linearBars("X", 150, 20, 0.25))
	env.source.errs = []error{nil, nil, nil, models.ErrDataUnavailable}
	b := NewBatchTrainer(newTestTrainer(env, &sleeps{}), 1, nil)

	sum := b.Run(context.Background(), BatchRequest{
		Tickers: []string{"AAPL", "MSFT"},
		Models:  []models.ModelType{models.ModelGRU, models.ModelLSTM},
	})
	if len(sum.Results) != 4 || sum.Succeeded != 3 || sum.Failed != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	for i := 1; i < len(sum.Results); i++ {
		if sum.Results[i-1].Key.String() > sum.Results[i].Key.String() {
			t.Fatalf("results not sorted by key")
		}
	}
}

func TestBatchTrainerParallel(t *testing.T) {
	env := newTestEnv(t, linearBars("X", 150, 20, 0.25))
	b := NewBatchTrainer(newTestTrainer(env, &sleeps{}), 3, nil)
	sum := b.Run(context.Background(), BatchRequest{
		Tickers: []string{"TSLA", "AAPL", "GOOGL"},
		Models:  models.AllModelTypes(),
	})
	if sum.Succeeded != 9 || sum.Failed != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	keys, _ := env.store.List(context.Background())
	if len(keys) != 9 {
		t.Fatalf("expected 9 artifacts, got %d", len(keys))
	}
}

func TestTrainingJobHandler(t *testing.T) {
	env := newTestEnv(t, linearBars("X", 150, 20, 0.25))
	h := NewTrainingJobHandler(newTestTrainer(env, &sleeps{}), nil)
	if h.Type() != models.TrainingJobType {
		t.Fatalf("unexpected type %s", h.Type())
	}

	// payloads arrive from Redis as decoded JSON maps
	var payload map[string]interface{}
	raw, _ := json.Marshal(models.TrainingJob{JobID: "j1", Ticker: "NVDA", Model: "lstm", Start: "2020-01-01", Epochs: 3})
	_ = json.Unmarshal(raw, &payload)

	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if ok, _ := env.store.Exists(context.Background(), models.NewArtifactKey("NVDA", models.ModelLSTM)); !ok {
		t.Fatalf("job did not train")
	}

	if err := h.Handle(context.Background(), models.TrainingJob{Ticker: "NVDA", Model: "svm"}); !errors.Is(err, models.ErrInvalidModelType) {
		t.Fatalf("expected invalid model, got %v", err)
	}
	if err := h.Handle(context.Background(), 42); err == nil {
		t.Fatalf("expected payload error")
	}
}

type recordingJobs struct {
	mu   sync.Mutex
	jobs []models.TrainingJob
	err  error
}

func (r *recordingJobs) EnqueueTraining(_ context.Context, job models.TrainingJob) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.jobs = append(r.jobs, job)
	return job.JobID, nil
}

func TestSchedulerEnqueueTicker(t *testing.T) {
	q := &recordingJobs{}
	s := NewScheduler(q, nil)

	jobs, err := s.EnqueueTicker(context.Background(), models.TrainTickerRequest{Ticker: "aapl", Start: "2018-01-01", Epochs: 20, BatchSize: 32})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(jobs) != 3 || len(q.jobs) != 3 {
		t.Fatalf("expected one job per model type, got %v", jobs)
	}
	for i, j := range jobs {
		if j.JobID == "" || j.JobID != q.jobs[i].JobID || q.jobs[i].Ticker != "AAPL" {
			t.Fatalf("job %d mismatch %+v %+v", i, j, q.jobs[i])
		}
	}

	jobs, err = s.EnqueueTicker(context.Background(), models.TrainTickerRequest{Ticker: "AAPL", Models: []string{"gru"}})
	if err != nil || len(jobs) != 1 || jobs[0].Model != models.ModelGRU {
		t.Fatalf("unexpected jobs %v %v", jobs, err)
	}
	if _, err := s.EnqueueTicker(context.Background(), models.TrainTickerRequest{Ticker: "AAPL", Models: []string{"rnn"}}); !errors.Is(err, models.ErrInvalidModelType) {
		t.Fatalf("expected invalid model, got %v", err)
	}
}

func TestLocalJobsRunsQueuedTraining(t *testing.T) {
	env := newTestEnv(t, linearBars("X", 150, 20, 0.25))
	tr := newTestTrainer(env, &sleeps{})
	done := make(chan models.TrainingEvent, 8)
	tr.Subscribe(func(ev models.TrainingEvent) {
		if ev.State.Terminal() {
			done <- ev
		}
	})
	jobs := NewLocalJobs(NewTrainingJobHandler(tr, nil), 1, 4, nil)
	defer jobs.Close()

	id, err := NewScheduler(jobs, []models.ModelType{models.ModelGRU}).EnqueueTicker(context.Background(),
		models.TrainTickerRequest{Ticker: "AMD"})
	if err != nil || len(id) != 1 {
		t.Fatalf("enqueue: %v %v", id, err)
	}
	select {
	case ev := <-done:
		if ev.State != models.StatePersisted || ev.Key.Ticker != "AMD" {
			t.Fatalf("unexpected terminal event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("local job did not finish")
	}

	_ = jobs.Close()
	if _, err := jobs.EnqueueTraining(context.Background(), models.TrainingJob{Ticker: "AMD", Model: "GRU"}); !errors.Is(err, ErrLocalJobsClosed) {
		t.Fatalf("closed queue should reject jobs, got %v", err)
	}
}

func TestLocalJobsCloseWhileEnqueueing(t *testing.T) {
	env := newTestEnv(t, nil)
	jobs := NewLocalJobs(NewTrainingJobHandler(newTestTrainer(env, &sleeps{}), nil), 2, 1, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				_, _ = jobs.EnqueueTraining(context.Background(), models.TrainingJob{Ticker: "AMD", Model: "bogus"})
			}
		}()
	}
	_ = jobs.Close()
	wg.Wait()
	if _, err := jobs.EnqueueTraining(context.Background(), models.TrainingJob{Ticker: "AMD", Model: "GRU"}); !errors.Is(err, ErrLocalJobsClosed) {
		t.Fatalf("closed queue should reject jobs, got %v", err)
	}
}

type forgetter struct{ keys []models.ArtifactKey }

func (f *forgetter) Forget(k models.ArtifactKey) { f.keys = append(f.keys, k) }

func TestModelEventsHandlerInvalidates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	pc := repository.NewCachedPredictions(env.mem, time.Hour)
	key := models.NewArtifactKey("AAPL", models.ModelGRU)
	if err := pc.Set(ctx, models.Prediction{Symbol: "AAPL", Model: models.ModelGRU, PredictedPrice: 1}, "2024-01-02"); err != nil {
		t.Fatalf("set: %v", err)
	}

	memo := &forgetter{}
	h := NewModelEventsHandler("training.results", memo, pc, env.metrics, nil)

	failed, _ := json.Marshal(models.TrainingResult{Key: key, Success: false})
	if err := h.Handle(ctx, failed); err != nil || len(memo.keys) != 0 {
		t.Fatalf("failed runs must not invalidate: %v %v", err, memo.keys)
	}

	ok, _ := json.Marshal(models.TrainingResult{Key: key, Success: true})
	if err := h.Handle(ctx, ok); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(memo.keys) != 1 || memo.keys[0] != key {
		t.Fatalf("memo not forgotten: %v", memo.keys)
	}
	if _, hit, _ := pc.Get(ctx, "AAPL", models.ModelGRU, "2024-01-02"); hit {
		t.Fatalf("cached prediction should be invalidated")
	}

	if err := h.Handle(ctx, []byte("{")); err == nil || env.metrics.errors["consumer_unmarshal"] != 1 {
		t.Fatalf("expected decode error to be counted")
	}

	h.Observe(models.TrainingEvent{Key: key, State: models.StatePersisted})
	h.Observe(models.TrainingEvent{Key: key, State: models.StateFitting})
	if len(memo.keys) != 2 {
		t.Fatalf("only persisted events invalidate, got %v", memo.keys)
	}
}
