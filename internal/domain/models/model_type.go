package models

import (
	"fmt"
	"strings"
)

// ModelType tags one of the interchangeable forecasting architectures.
type ModelType string

const (
	// ModelLSTM is the long short-term memory recurrent variant.
	ModelLSTM ModelType = "LSTM"
	// ModelGRU is the gated recurrent unit variant.
	ModelGRU ModelType = "GRU"
	// ModelTransformer is the self-attention variant.
	ModelTransformer ModelType = "TRANSFORMER"
)

// AllModelTypes lists every supported variant in report order.
func AllModelTypes() []ModelType {
	return []ModelType{ModelLSTM, ModelGRU, ModelTransformer}
}

// ParseModelType accepts any casing ("gru", "Gru", "GRU").
func ParseModelType(s string) (ModelType, error) {
	switch mt := ModelType(strings.ToUpper(strings.TrimSpace(s))); mt {
	case ModelLSTM, ModelGRU, ModelTransformer:
		return mt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidModelType, s)
	}
}

// Lower is the lowercase form used in file names and cache keys.
func (m ModelType) Lower() string { return strings.ToLower(string(m)) }

// ModelSpec fixes the topology of a model. It is persisted with the weights so
// a stored artifact always rebuilds the network it was trained with.
type ModelSpec struct {
	Type      ModelType `json:"type"`
	WindowLen int       `json:"window_len"`
	Hidden    int       `json:"hidden,omitempty"`
	DModel    int       `json:"d_model,omitempty"`
	Heads     int       `json:"heads,omitempty"`
	FFN       int       `json:"ffn,omitempty"`
	Dropout   float64   `json:"dropout"`
	Seed      int64     `json:"seed"`
}
