package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"StockCast/internal/domain/models"
	"StockCast/internal/usecase"
	xhttp "StockCast/pkg/http"
	xlogger "StockCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

type fakePredictor struct {
	trained map[string]bool
	lastF   *models.FutureRequest
}

func (f *fakePredictor) PredictOneStep(_ context.Context, ticker, model string) (*models.Prediction, error) {
	mt, err := models.ParseModelType(model)
	if err != nil {
		return nil, err
	}
	key := models.NewArtifactKey(ticker, mt)
	if !f.trained[key.String()] {
		return nil, fmt.Errorf("load %s: %w", key, models.ErrArtifactNotFound)
	}
	return &models.Prediction{Symbol: key.Ticker, Model: mt, PredictedPrice: 101, PredictionDate: "2024-01-02"}, nil
}

func (f *fakePredictor) Forecast(_ context.Context, ticker, model string, count int, unit string) (*models.Forecast, error) {
	f.lastF = &models.FutureRequest{Ticker: ticker, Model: model, Periods: count, PeriodType: unit}
	if _, err := models.ParsePeriodUnit(unit); err != nil {
		return nil, err
	}
	if ticker == "TINY" {
		return nil, fmt.Errorf("seed: %w", models.ErrInsufficientData)
	}
	return &models.Forecast{Ticker: ticker, TradingDays: count * 5 / 7}, nil
}

type fakeComparer struct{}

func (fakeComparer) Compare(_ context.Context, ticker string) (*models.Comparison, error) {
	if ticker != "AAPL" {
		return nil, models.ErrArtifactNotFound
	}
	return &models.Comparison{Ticker: ticker, Best: models.ModelGRU}, nil
}

type fakeCatalog struct{}

func (fakeCatalog) Tickers(context.Context) ([]string, error) { return []string{"AAPL"}, nil }

func (fakeCatalog) TrainedModels(_ context.Context, ticker string) ([]models.ModelType, error) {
	if ticker == "AAPL" {
		return []models.ModelType{models.ModelGRU}, nil
	}
	return nil, nil
}

func (fakeCatalog) ModelMetrics(_ context.Context, ticker string) ([]models.Metrics, error) {
	return []models.Metrics{{Ticker: ticker, Model: models.ModelGRU, RMSE: 1}}, nil
}

func (fakeCatalog) StockBars(_ context.Context, symbol string, days int) ([]models.Bar, error) {
	if symbol == "GONE" {
		return nil, models.ErrDataUnavailable
	}
	return make([]models.Bar, days), nil
}

func (fakeCatalog) PredictionHistory(_ context.Context, _ string, limit int) ([]models.PredictionRecord, error) {
	return make([]models.PredictionRecord, 0, limit), nil
}

type fakeScheduler struct {
	got models.TrainTickerRequest
}

func (s *fakeScheduler) EnqueueTicker(_ context.Context, req models.TrainTickerRequest) ([]usecase.ScheduledJob, error) {
	s.got = req
	return []usecase.ScheduledJob{{JobID: "j1", Model: models.ModelGRU}}, nil
}

func newTestServer() (*echo.Echo, *fakePredictor, *fakeScheduler) {
	p := &fakePredictor{trained: map[string]bool{"AAPL:GRU": true}}
	s := &fakeScheduler{}
	e := echo.New()
	NewForecastEchoHandler(xlogger.Nop(), p, fakeComparer{}).RegisterRoutes(e)
	NewCatalogEchoHandler(xlogger.Nop(), fakeCatalog{}, s).RegisterRoutes(e)
	return e, p, s
}

func do(e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, xhttp.APIResponse) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var out xhttp.APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestStatusMapping(t *testing.T) {
	e, _, _ := newTestServer()
	cases := []struct {
		name, method, target, body string
		want                       int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"predict", http.MethodPost, "/api/predict", `{"symbols":["aapl"],"models":["gru"]}`, http.StatusOK},
		{"predict untrained", http.MethodPost, "/api/predict", `{"symbols":["MSFT"],"models":["gru"]}`, http.StatusNotFound},
		{"predict bad model", http.MethodPost, "/api/predict", `{"symbols":["AAPL"],"models":["arima"]}`, http.StatusBadRequest},
		{"predict no symbols", http.MethodPost, "/api/predict", `{"symbols":[],"models":["gru"]}`, http.StatusBadRequest},
		{"predict bad ticker", http.MethodPost, "/api/predict", `{"symbols":["no spaces"],"models":["gru"]}`, http.StatusBadRequest},
		{"future", http.MethodPost, "/api/predict/future?ticker=AAPL&periods=2&period_type=week", "", http.StatusOK},
		{"future bad unit", http.MethodPost, "/api/predict/future?ticker=AAPL&period_type=decade", "", http.StatusBadRequest},
		{"future short seed", http.MethodPost, "/api/predict/future?ticker=TINY", "", http.StatusUnprocessableEntity},
		{"future too long", http.MethodPost, "/api/predict/future?ticker=AAPL&periods=1000", "", http.StatusBadRequest},
		{"compare", http.MethodGet, "/api/compare/AAPL", "", http.StatusOK},
		{"compare untrained", http.MethodGet, "/api/compare/MSFT", "", http.StatusNotFound},
		{"tickers", http.MethodGet, "/api/tickers", "", http.StatusOK},
		{"models", http.MethodGet, "/api/models/AAPL", "", http.StatusOK},
		{"models none", http.MethodGet, "/api/models/MSFT", "", http.StatusNotFound},
		{"metrics", http.MethodGet, "/api/metrics/models/AAPL", "", http.StatusOK},
		{"stock", http.MethodGet, "/api/stock/AAPL?days=5", "", http.StatusOK},
		{"stock delisted", http.MethodGet, "/api/stock/GONE", "", http.StatusServiceUnavailable},
		{"history", http.MethodGet, "/api/predictions/history?limit=5", "", http.StatusOK},
		{"history bad limit", http.MethodGet, "/api/predictions/history?limit=0", "", http.StatusOK},
		{"train", http.MethodPost, "/api/train/AAPL", `{"models":["gru"]}`, http.StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := do(e, tc.method, tc.target, tc.body)
			if rec.Code != tc.want || body.Status != tc.want {
				t.Fatalf("status %d (body %d) want %d: %s", rec.Code, body.Status, tc.want, rec.Body.String())
			}
		})
	}
}

func TestPredictAllModelsReportsFailures(t *testing.T) {
	e, _, _ := newTestServer()
	rec, _ := do(e, http.MethodPost, "/api/predict", `{"symbols":["AAPL"],"models":["all"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Data PredictResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Data.Predictions) != 1 || len(out.Data.Failures) != 2 {
		t.Fatalf("expected 1 prediction and 2 failures, got %+v", out.Data)
	}
}

func TestFutureDefaults(t *testing.T) {
	e, p, _ := newTestServer()
	if rec, _ := do(e, http.MethodPost, "/api/predict/future?ticker=AAPL", ""); rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if p.lastF.Model != "gru" || p.lastF.Periods != 30 || p.lastF.PeriodType != "day" {
		t.Fatalf("defaults not applied: %+v", p.lastF)
	}
}

func TestTrainDefaults(t *testing.T) {
	e, _, s := newTestServer()
	if rec, _ := do(e, http.MethodPost, "/api/train/tsla", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if s.got.Ticker != "tsla" || s.got.Start != "2018-01-01" || s.got.Epochs != 20 || s.got.BatchSize != 32 {
		t.Fatalf("defaults not applied: %+v", s.got)
	}
}
