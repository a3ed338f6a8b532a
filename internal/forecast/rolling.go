package forecast

import (
	"fmt"

	"StockCast/internal/domain/models"
)

// Stepper predicts the next scaled value from a window of scaled values.
type Stepper interface {
	WindowLen() int
	PredictStep(window []float64) (float64, error)
}

// Roll runs the autoregressive loop: each prediction is reported in price units
// and its scaled form replaces the oldest element of the window. Errors compound
// over the horizon since every step consumes earlier predictions.
func Roll(m Stepper, s *Scaler, seed []float64, steps int) ([]float64, error) {
	if steps < 0 {
		return nil, fmt.Errorf("roll: negative steps %d", steps)
	}
	if len(seed) != m.WindowLen() {
		return nil, fmt.Errorf("roll: %w: seed has %d values, model needs %d",
			models.ErrInsufficientSeed, len(seed), m.WindowLen())
	}
	out := make([]float64, 0, steps)
	if steps == 0 {
		return out, nil
	}

	window := make([]float64, len(seed))
	copy(window, seed)
	for k := 0; k < steps; k++ {
		next, err := m.PredictStep(window)
		if err != nil {
			return nil, fmt.Errorf("roll: step %d: %w", k, err)
		}
		out = append(out, s.InverseOne(next))
		copy(window, window[1:])
		window[len(window)-1] = next
	}
	return out, nil
}
