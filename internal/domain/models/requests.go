package models

// Requests for the forecasting HTTP endpoints. Defined in domain for consistency and reuse.

type PredictRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,max=20,dive,required,ticker"`
	Models  []string `json:"models" validate:"required,min=1,max=3,dive,required"`
}

type FutureRequest struct {
	Ticker     string `query:"ticker" json:"ticker" validate:"required,ticker"`
	Model      string `query:"model" json:"model" default:"gru" validate:"required"`
	Periods    int    `query:"periods" json:"periods" default:"30" validate:"gte=1,lte=365"`
	PeriodType string `query:"period_type" json:"period_type" default:"day" validate:"required"`
}

type TrainTickerRequest struct {
	Ticker    string   `param:"ticker" validate:"required,ticker"`
	Models    []string `json:"models"`
	Start     string   `json:"start" default:"2018-01-01" validate:"datetime=2006-01-02"`
	End       string   `json:"end" validate:"omitempty,datetime=2006-01-02"`
	Epochs    int      `json:"epochs" default:"20" validate:"gte=1,lte=500"`
	BatchSize int      `json:"batch_size" default:"32" validate:"gte=1,lte=1024"`
}

type TickerRequest struct {
	Ticker string `param:"ticker" validate:"required,ticker"`
}

type StockRequest struct {
	Symbol string `param:"symbol" validate:"required,ticker"`
	Days   int    `query:"days" default:"30" validate:"gte=1,lte=3650"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" validate:"omitempty,ticker"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// PredictionRecord is one persisted row of the prediction history.
type PredictionRecord struct {
	ID             int64   `json:"id"`
	Symbol         string  `json:"symbol"`
	ModelName      string  `json:"model_name"`
	PredictionDate string  `json:"prediction_date"`
	PredictedPrice float64 `json:"predicted_price"`
	CreatedAt      string  `json:"created_at"`
}
