// Package forecast holds the series preparation and rolling prediction pipeline:
// scaling, windowing, splitting, horizon resolution, evaluation and ranking.
package forecast

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"StockCast/internal/domain/models"
)

// Scaler maps prices onto [0,1] with a min-max transform fitted once.
// A flat series uses a unit span so every value scales to 0 and inverts to min.
type Scaler struct {
	min  float64
	max  float64
	span float64
}

// FitScaler fits the range of series.
func FitScaler(series []float64) (*Scaler, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("fit scaler: %w: empty series", models.ErrInsufficientData)
	}
	return newScaler(floats.Min(series), floats.Max(series)), nil
}

// ScalerFromState rebuilds a scaler persisted in an artifact.
func ScalerFromState(s models.ScalerState) *Scaler {
	return newScaler(s.Min, s.Max)
}

func newScaler(lo, hi float64) *Scaler {
	span := hi - lo
	if span == 0 {
		span = 1
	}
	return &Scaler{min: lo, max: hi, span: span}
}

// State returns the persisted form.
func (s *Scaler) State() models.ScalerState {
	return models.ScalerState{Min: s.min, Max: s.max}
}

// TransformOne scales a single value. Out-of-range values are not clamped.
func (s *Scaler) TransformOne(v float64) float64 { return (v - s.min) / s.span }

// InverseOne maps a scaled value back to price units.
func (s *Scaler) InverseOne(v float64) float64 { return v*s.span + s.min }

// Transform scales values into a new slice.
func (s *Scaler) Transform(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = s.TransformOne(v)
	}
	return out
}

// Inverse maps scaled values back into a new slice.
func (s *Scaler) Inverse(scaled []float64) []float64 {
	out := make([]float64, len(scaled))
	for i, v := range scaled {
		out[i] = s.InverseOne(v)
	}
	return out
}
