package forecast

import (
	"fmt"

	"StockCast/internal/domain/models"
)

const (
	// DefaultWindowLen is the number of past closes fed to a model.
	DefaultWindowLen = 60
	// TrainFraction is the positional train share of the windows.
	TrainFraction = 0.8
)

// MakeWindows turns a scaled series into stride-1 windows of length l, each
// paired with the value right after it. It yields len(scaled)-l windows.
func MakeWindows(scaled []float64, l int) ([][]float64, []float64, error) {
	if l <= 0 {
		return nil, nil, fmt.Errorf("make windows: window length %d must be positive", l)
	}
	if len(scaled) <= l {
		return nil, nil, fmt.Errorf("make windows: %w: %d values for window %d", models.ErrInsufficientData, len(scaled), l)
	}
	n := len(scaled) - l
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		w := make([]float64, l)
		copy(w, scaled[i:i+l])
		x[i] = w
		y[i] = scaled[i+l]
	}
	return x, y, nil
}

// SeedWindow returns a copy of the trailing l values. Like MakeWindows it
// requires strictly more than l values.
func SeedWindow(scaled []float64, l int) ([]float64, error) {
	if l <= 0 {
		return nil, fmt.Errorf("seed window: window length %d must be positive", l)
	}
	if len(scaled) <= l {
		return nil, fmt.Errorf("seed window: %w: %d values for window %d", models.ErrInsufficientData, len(scaled), l)
	}
	w := make([]float64, l)
	copy(w, scaled[len(scaled)-l:])
	return w, nil
}

// Split holds the positional train/test partition of windows.
type Split struct {
	TrainX [][]float64
	TrainY []float64
	TestX  [][]float64
	TestY  []float64
}

// SplitPositional puts the first int(n*frac) windows in train and the rest in
// test without shuffling. Either side being empty is ErrInsufficientData.
func SplitPositional(x [][]float64, y []float64, frac float64) (Split, error) {
	if len(x) != len(y) {
		return Split{}, fmt.Errorf("split: %d windows but %d targets", len(x), len(y))
	}
	cut := int(float64(len(x)) * frac)
	if cut == 0 || cut == len(x) {
		return Split{}, fmt.Errorf("split: %w: %d windows give train=%d test=%d",
			models.ErrInsufficientData, len(x), cut, len(x)-cut)
	}
	return Split{
		TrainX: x[:cut],
		TrainY: y[:cut],
		TestX:  x[cut:],
		TestY:  y[cut:],
	}, nil
}
