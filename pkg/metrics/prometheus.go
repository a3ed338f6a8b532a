package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	trainingRuns     *prometheus.CounterVec
	trainingDuration *prometheus.HistogramVec
	fetches          *prometheus.CounterVec
	predictions      *prometheus.CounterVec
	forecastSteps    *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
}

// New creates a recorder registered on reg; nil means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		trainingRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_training_runs_total",
				Help: "Training runs by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		trainingDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockcast_training_duration_seconds",
				Help:    "Wall time of training runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"model"},
		),
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_price_fetches_total",
				Help: "Price downloads by outcome",
			},
			[]string{"outcome"},
		),
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_predictions_total",
				Help: "One-step predictions served",
			},
			[]string{"model", "cached"},
		),
		forecastSteps: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockcast_forecast_steps",
				Help:    "Steps per rolling forecast",
				Buckets: []float64{1, 5, 10, 21, 63, 126, 260},
			},
			[]string{"model"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordTraining records a finished training run.
func (r *Recorder) RecordTraining(model, outcome string, seconds float64) {
	r.trainingRuns.WithLabelValues(model, outcome).Inc()
	r.trainingDuration.WithLabelValues(model).Observe(seconds)
}

// RecordFetch records a price download outcome.
func (r *Recorder) RecordFetch(outcome string) {
	r.fetches.WithLabelValues(outcome).Inc()
}

// RecordPrediction records a served one-step prediction.
func (r *Recorder) RecordPrediction(model string, cached bool) {
	r.predictions.WithLabelValues(model, strconv.FormatBool(cached)).Inc()
}

// RecordForecastSteps records the horizon of a rolling forecast.
func (r *Recorder) RecordForecastSteps(model string, steps int) {
	r.forecastSteps.WithLabelValues(model).Observe(float64(steps))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
