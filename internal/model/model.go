// Package model implements the forecasting networks behind one interface.
// Each variant maps a window of scaled closes to the next scaled close.
package model

import (
	"fmt"
	"math/rand"

	"StockCast/internal/domain/models"
)

// Adapter is what the training and serving paths see of a model.
type Adapter interface {
	Type() models.ModelType
	WindowLen() int
	Spec() models.ModelSpec
	Fit(x [][]float64, y []float64, opts FitOptions) (models.TrainingCurve, error)
	PredictStep(window []float64) (float64, error)
	Weights() map[string][]float64
	SetWeights(w map[string][]float64) error
}

// Factory builds an untrained adapter for a spec.
type Factory func(spec models.ModelSpec) (Adapter, error)

// network is the per-variant forward/backward computation on one window.
// With train set it applies dropout from rng and returns a closure that
// accumulates parameter gradients for an output gradient dy.
type network interface {
	params() []*param
	forward(x []float64, train bool, rng *rand.Rand) (float64, func(dy float64))
}

// DefaultSpec returns the stock topology of a variant.
func DefaultSpec(t models.ModelType) models.ModelSpec {
	s := models.ModelSpec{Type: t, WindowLen: 60, Dropout: 0.2, Seed: 42}
	switch t {
	case models.ModelTransformer:
		s.DModel, s.Heads, s.FFN = 16, 4, 64
	default:
		s.Hidden = 50
	}
	return s
}

// Model is the concrete Adapter for every variant.
type Model struct {
	spec models.ModelSpec
	net  network
}

var _ Adapter = (*Model)(nil)

// New builds an untrained model with weights initialized from spec.Seed.
func New(spec models.ModelSpec) (*Model, error) {
	if spec.WindowLen <= 0 {
		return nil, fmt.Errorf("new model: window length %d must be positive", spec.WindowLen)
	}
	if spec.Dropout < 0 || spec.Dropout >= 1 {
		return nil, fmt.Errorf("new model: dropout %v out of [0,1)", spec.Dropout)
	}
	rng := rand.New(rand.NewSource(spec.Seed))

	var net network
	switch spec.Type {
	case models.ModelGRU:
		if spec.Hidden <= 0 {
			return nil, fmt.Errorf("new model: gru needs hidden units")
		}
		net = newGRU(spec.Hidden, spec.Dropout, rng)
	case models.ModelLSTM:
		if spec.Hidden <= 0 {
			return nil, fmt.Errorf("new model: lstm needs hidden units")
		}
		net = newLSTM(spec.Hidden, spec.Dropout, rng)
	case models.ModelTransformer:
		if spec.DModel <= 0 || spec.Heads <= 0 || spec.DModel%spec.Heads != 0 || spec.FFN <= 0 {
			return nil, fmt.Errorf("new model: transformer needs d_model divisible by heads and ffn > 0, got %d/%d/%d",
				spec.DModel, spec.Heads, spec.FFN)
		}
		net = newAttention(spec.DModel, spec.Heads, spec.FFN, spec.Dropout, rng)
	default:
		return nil, fmt.Errorf("new model: %w: %q", models.ErrInvalidModelType, spec.Type)
	}
	return &Model{spec: spec, net: net}, nil
}

// NewAdapter is New behind the Factory signature.
func NewAdapter(spec models.ModelSpec) (Adapter, error) {
	return New(spec)
}

// Restore rebuilds a trained model from a persisted artifact.
func Restore(a *models.Artifact) (*Model, error) {
	m, err := New(a.Spec)
	if err != nil {
		return nil, err
	}
	if err := m.SetWeights(a.Weights); err != nil {
		return nil, fmt.Errorf("restore %s: %w", a.Key, err)
	}
	return m, nil
}

func (m *Model) Type() models.ModelType { return m.spec.Type }
func (m *Model) WindowLen() int { return m.spec.WindowLen }
func (m *Model) Spec() models.ModelSpec { return m.spec }

// PredictStep predicts the next scaled value. The window must be exactly
// WindowLen long.
func (m *Model) PredictStep(window []float64) (float64, error) {
	if len(window) != m.spec.WindowLen {
		return 0, fmt.Errorf("predict step: %w: window has %d values, model needs %d",
			models.ErrInsufficientSeed, len(window), m.spec.WindowLen)
	}
	y, _ := m.net.forward(window, false, nil)
	return y, nil
}

// Predict runs PredictStep over a batch of windows.
func (m *Model) Predict(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, w := range x {
		y, err := m.PredictStep(w)
		if err != nil {
			return nil, err
		}
		out[i] = y
	}
	return out, nil
}

// Weights copies every tensor by name.
func (m *Model) Weights() map[string][]float64 {
	out := make(map[string][]float64)
	for _, p := range m.net.params() {
		out[p.name] = append([]float64(nil), p.w...)
	}
	return out
}

// SetWeights loads tensors by name. Every tensor must be present with the
// expected size.
func (m *Model) SetWeights(w map[string][]float64) error {
	ps := m.net.params()
	for _, p := range ps {
		src, ok := w[p.name]
		if !ok {
			return fmt.Errorf("set weights: missing tensor %q", p.name)
		}
		if len(src) != len(p.w) {
			return fmt.Errorf("set weights: tensor %q has %d values, want %d", p.name, len(src), len(p.w))
		}
	}
	for _, p := range ps {
		copy(p.w, w[p.name])
	}
	return nil
}
