package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"
)

// MemoryPriceHistory keeps bars per symbol in process. Used when ClickHouse is
// disabled and in tests.
type MemoryPriceHistory struct {
	mu   sync.RWMutex
	bars map[string]map[string]models.Bar
}

func NewMemoryPriceHistory() *MemoryPriceHistory {
	return &MemoryPriceHistory{bars: make(map[string]map[string]models.Bar)}
}

var _ repository.PriceHistory = (*MemoryPriceHistory)(nil)

func (m *MemoryPriceHistory) Init(context.Context) error { return nil }

func (m *MemoryPriceHistory) StoreBars(_ context.Context, bars []models.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		days, ok := m.bars[b.Symbol]
		if !ok {
			days = make(map[string]models.Bar)
			m.bars[b.Symbol] = days
		}
		days[b.Date.Format(models.DateLayout)] = b
	}
	return nil
}

func (m *MemoryPriceHistory) Recent(_ context.Context, symbol string, since time.Time) ([]models.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Bar{}
	for _, b := range m.bars[symbol] {
		if !b.Date.Before(since) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *MemoryPriceHistory) Close() error { return nil }
