package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"StockCast/internal/domain/models"
)

// FitOptions controls a training run.
type FitOptions struct {
	Epochs             int
	BatchSize          int
	LearningRate       float64
	ValidationFraction float64
	Patience           int
	ClipNorm           float64
	Seed               int64
	// Context cancels training between batches.
	Context context.Context
	// OnEpoch is called after every epoch with its losses.
	OnEpoch func(epoch int, trainLoss, valLoss float64)
}

// DefaultFitOptions mirrors the stock training setup.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Epochs:             20,
		BatchSize:          32,
		LearningRate:       0.001,
		ValidationFraction: 0.1,
		Patience:           5,
		ClipNorm:           1,
		Seed:               42,
	}
}

func (o FitOptions) withDefaults() FitOptions {
	d := DefaultFitOptions()
	if o.Epochs <= 0 {
		o.Epochs = d.Epochs
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.LearningRate <= 0 {
		o.LearningRate = d.LearningRate
	}
	if o.Patience <= 0 {
		o.Patience = d.Patience
	}
	if o.ValidationFraction < 0 || o.ValidationFraction >= 1 {
		o.ValidationFraction = d.ValidationFraction
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	return o
}

// Fit trains with Adam on mean squared error. The last ValidationFraction of the
// windows is held out by position. Training stops once the monitored loss has
// not improved for Patience epochs and the best weights are restored. Without
// validation rows the training loss is monitored.
func (m *Model) Fit(x [][]float64, y []float64, opts FitOptions) (models.TrainingCurve, error) {
	var curve models.TrainingCurve
	if len(x) == 0 || len(x) != len(y) {
		return curve, fmt.Errorf("fit: %w: %d windows, %d targets", models.ErrInsufficientData, len(x), len(y))
	}
	for i, w := range x {
		if len(w) != m.spec.WindowLen {
			return curve, fmt.Errorf("fit: window %d has %d values, want %d", i, len(w), m.spec.WindowLen)
		}
	}
	opts = opts.withDefaults()

	split := int(float64(len(x)) * (1 - opts.ValidationFraction))
	if split == 0 {
		split = len(x)
	}
	trainX, trainY := x[:split], y[:split]
	valX, valY := x[split:], y[split:]

	rng := rand.New(rand.NewSource(opts.Seed))
	ps := m.net.params()
	opt := newAdam(opts.LearningRate)

	best := math.Inf(1)
	bestW := snapshot(ps)
	wait := 0
	order := make([]int, len(trainX))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var sum float64
		for start := 0; start < len(order); start += opts.BatchSize {
			if err := opts.Context.Err(); err != nil {
				restore(ps, bestW)
				return curve, fmt.Errorf("fit: %w", err)
			}
			end := start + opts.BatchSize
			if end > len(order) {
				end = len(order)
			}
			bs := float64(end - start)
			zeroGrads(ps)
			for _, idx := range order[start:end] {
				out, back := m.net.forward(trainX[idx], true, rng)
				diff := out - trainY[idx]
				sum += diff * diff
				back(2 * diff / bs)
			}
			clipGrads(ps, opts.ClipNorm)
			opt.step(ps)
		}
		trainLoss := sum / float64(len(order))
		if math.IsNaN(trainLoss) || math.IsInf(trainLoss, 0) {
			restore(ps, bestW)
			return curve, fmt.Errorf("fit: loss diverged at epoch %d", epoch+1)
		}
		curve.Train = append(curve.Train, trainLoss)

		monitored := trainLoss
		if len(valX) > 0 {
			monitored = m.mse(valX, valY)
			curve.Validation = append(curve.Validation, monitored)
		}
		if opts.OnEpoch != nil {
			opts.OnEpoch(epoch+1, trainLoss, monitored)
		}

		if monitored < best {
			best = monitored
			bestW = snapshot(ps)
			curve.BestEpoch = epoch + 1
			wait = 0
			continue
		}
		wait++
		if wait >= opts.Patience {
			curve.StoppedEarly = true
			break
		}
	}
	restore(ps, bestW)
	curve.BestLoss = best
	return curve, nil
}

func (m *Model) mse(x [][]float64, y []float64) float64 {
	var sum float64
	for i, w := range x {
		out, _ := m.net.forward(w, false, nil)
		d := out - y[i]
		sum += d * d
	}
	return sum / float64(len(x))
}
