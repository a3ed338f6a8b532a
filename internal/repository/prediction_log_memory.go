package repository

import (
	"context"
	"sync"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"
)

// MemoryPredictionLog is a bounded in-process history. Used when Postgres is
// disabled and in tests.
type MemoryPredictionLog struct {
	mu   sync.RWMutex
	rows []models.PredictionRecord
	max  int
	next int64
}

func NewMemoryPredictionLog(max int) *MemoryPredictionLog {
	if max <= 0 {
		max = 10000
	}
	return &MemoryPredictionLog{max: max}
}

var _ repository.PredictionLog = (*MemoryPredictionLog)(nil)

func (m *MemoryPredictionLog) Init(context.Context) error { return nil }

func (m *MemoryPredictionLog) Record(_ context.Context, p models.Prediction) error {
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.rows = append(m.rows, models.PredictionRecord{
		ID:             m.next,
		Symbol:         p.Symbol,
		ModelName:      string(p.Model),
		PredictionDate: p.PredictionDate,
		PredictedPrice: p.PredictedPrice,
		CreatedAt:      created.Format(time.RFC3339),
	})
	if len(m.rows) > m.max {
		m.rows = m.rows[len(m.rows)-m.max:]
	}
	return nil
}

func (m *MemoryPredictionLog) History(_ context.Context, symbol string, limit int) ([]models.PredictionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.PredictionRecord{}
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if symbol == "" || m.rows[i].Symbol == symbol {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

func (m *MemoryPredictionLog) Close() error { return nil }
