package models

import (
	"fmt"
	"strings"
	"time"
)

// PeriodUnit is the unit of a forecast horizon.
type PeriodUnit string

const (
	PeriodDay   PeriodUnit = "day"
	PeriodWeek  PeriodUnit = "week"
	PeriodMonth PeriodUnit = "month"
	PeriodYear  PeriodUnit = "year"
)

// ParsePeriodUnit accepts any casing.
func ParsePeriodUnit(s string) (PeriodUnit, error) {
	switch u := PeriodUnit(strings.ToLower(strings.TrimSpace(s))); u {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return u, nil
	default:
		return "", fmt.Errorf("%w: %q (use day, week, month, year)", ErrInvalidPeriodUnit, s)
	}
}

// Trend labels the direction of a forecast from first to last step.
type Trend string

const (
	TrendBullish Trend = "Bullish"
	TrendBearish Trend = "Bearish"
)

// Prediction is a single next-trading-day prediction.
type Prediction struct {
	Symbol         string    `json:"symbol"`
	Model          ModelType `json:"model"`
	PredictedPrice float64   `json:"predicted_price"`
	PredictionDate string    `json:"prediction_date"`
	LastClose      float64   `json:"last_close"`
	LastDate       string    `json:"last_date"`
	Cached         bool      `json:"cached"`
	CreatedAt      time.Time `json:"created_at"`
}

// Forecast is a rolling multi-step forecast.
type Forecast struct {
	Ticker              string     `json:"ticker"`
	Model               ModelType  `json:"model"`
	PeriodType          PeriodUnit `json:"period_type"`
	Periods             int        `json:"periods"`
	TotalDays           int        `json:"total_days"`
	TradingDays         int        `json:"trading_days"`
	Dates               []string   `json:"dates"`
	Prices              []float64  `json:"predictions"`
	CurrentPrice        float64    `json:"current_price"`
	PredictedPriceAtEnd float64    `json:"predicted_price_at_end"`
	Trend               Trend      `json:"trend"`
	ChangePercent       float64    `json:"change_percent"`
}

// RankedModel is one row of a comparison report.
type RankedModel struct {
	Model    ModelType `json:"model"`
	Metrics  Metrics   `json:"metrics"`
	RMSERank float64   `json:"rmse_rank"`
	MAERank  float64   `json:"mae_rank"`
	MAPERank float64   `json:"mape_rank"`
	AvgRank  float64   `json:"avg_rank"`
}

// MetricDiff is how much worse the worst model is than the best, in percent.
type MetricDiff struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	MAPE float64 `json:"mape"`
}

// Comparison ranks the trained variants of one ticker.
type Comparison struct {
	Ticker      string        `json:"ticker"`
	Ranked      []RankedModel `json:"ranked"`
	Best        ModelType     `json:"best"`
	BestVsWorst *MetricDiff   `json:"best_vs_worst,omitempty"`
}
