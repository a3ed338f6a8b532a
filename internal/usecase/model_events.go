package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	"StockCast/pkg/logger"
)

// Forgetter drops memoized state of a retrained key.
type Forgetter interface {
	Forget(key models.ArtifactKey)
}

// ModelEventsHandler consumes training results and invalidates what the API
// instance memoized for the retrained key.
type ModelEventsHandler struct {
	topic   string
	memo    Forgetter
	cache   domrepo.PredictionCache
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewModelEventsHandler(topic string, memo Forgetter, cache domrepo.PredictionCache, metrics domrepo.Metrics, lgr *logger.Logger) *ModelEventsHandler {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &ModelEventsHandler{topic: topic, memo: memo, cache: cache, metrics: metrics, log: lgr}
}

func (h *ModelEventsHandler) Topic() string { return h.topic }

// Handle decodes a TrainingResult. Failed runs left the old artifact in
// place, so only successful ones invalidate.
func (h *ModelEventsHandler) Handle(ctx context.Context, b []byte) error {
	var r models.TrainingResult
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode training result: %w", err)
	}
	if !r.Success {
		return nil
	}
	return h.Invalidate(ctx, r.Key)
}

// Invalidate forgets the memoized artifact and cached predictions of key.
func (h *ModelEventsHandler) Invalidate(ctx context.Context, key models.ArtifactKey) error {
	if key.Ticker == "" || key.Model == "" {
		return nil
	}
	if h.memo != nil {
		h.memo.Forget(key)
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, key.Ticker, key.Model); err != nil {
			h.metrics.RecordError("cache_invalidate")
			return fmt.Errorf("invalidate %s: %w", key, err)
		}
	}
	h.log.Info("model invalidated", logger.String("key", key.String()))
	return nil
}

// Observe invalidates in-process on persisted runs. It is subscribed to the
// trainer when no event bus connects trainers and API instances.
func (h *ModelEventsHandler) Observe(ev models.TrainingEvent) {
	if ev.State != models.StatePersisted {
		return
	}
	if err := h.Invalidate(context.Background(), ev.Key); err != nil {
		h.log.Warn("in-process invalidation failed", logger.Error(err))
	}
}
