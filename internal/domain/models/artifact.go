package models

import (
	"fmt"
	"strings"
	"time"
)

// ArtifactKey identifies a trained model: one per (ticker, model type).
type ArtifactKey struct {
	Ticker string    `json:"ticker"`
	Model  ModelType `json:"model"`
}

// NewArtifactKey normalizes the ticker to upper case.
func NewArtifactKey(ticker string, model ModelType) ArtifactKey {
	return ArtifactKey{Ticker: strings.ToUpper(strings.TrimSpace(ticker)), Model: model}
}

func (k ArtifactKey) String() string {
	return fmt.Sprintf("%s:%s", k.Ticker, k.Model)
}

// ScalerState is the fitted min-max range of a training series.
type ScalerState struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SampleCounts are the window counts on each side of the positional split.
type SampleCounts struct {
	Train int `json:"train"`
	Test  int `json:"test"`
}

// Metrics are computed once on the held-out split, in price units.
type Metrics struct {
	Ticker     string       `json:"ticker"`
	Model      ModelType    `json:"model"`
	RMSE       float64      `json:"rmse"`
	MAE        float64      `json:"mae"`
	MAPE       float64      `json:"mape"`
	TrainDate  string       `json:"train_date"`
	DataPeriod string       `json:"data_period"`
	Samples    SampleCounts `json:"samples"`
}

// TrainingCurve records per-epoch losses of a fit.
type TrainingCurve struct {
	Train        []float64 `json:"train"`
	Validation   []float64 `json:"validation"`
	BestEpoch    int       `json:"best_epoch"`
	BestLoss     float64   `json:"best_loss"`
	StoppedEarly bool      `json:"stopped_early"`
}

// Epochs is the number of epochs actually run.
func (c TrainingCurve) Epochs() int { return len(c.Train) }

// TrainingMeta describes the run that produced an artifact.
type TrainingMeta struct {
	RunID     string    `json:"run_id"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Bars      int       `json:"bars"`
	TrainedAt time.Time `json:"trained_at"`
	Epochs    int       `json:"epochs"`
	BestEpoch int       `json:"best_epoch"`
	BestLoss  float64   `json:"best_loss"`
}

// Artifact bundles a trained model with the scaler it was trained with.
// It is never mutated after it is persisted.
type Artifact struct {
	Key     ArtifactKey          `json:"key"`
	Spec    ModelSpec            `json:"spec"`
	Weights map[string][]float64 `json:"weights"`
	Scaler  ScalerState          `json:"scaler"`
	Metrics Metrics              `json:"metrics"`
	Meta    TrainingMeta         `json:"meta"`
}

// ArtifactSummary is the catalog view of an artifact, without weights.
type ArtifactSummary struct {
	Key       ArtifactKey `json:"key"`
	Metrics   Metrics     `json:"metrics"`
	TrainedAt time.Time   `json:"trained_at"`
	Path      string      `json:"path,omitempty"`
}
