package api

import (
	"context"
	"strings"

	"StockCast/internal/domain/models"
	xhttp "StockCast/pkg/http"
	xlogger "StockCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Predictor is what the forecast endpoints need from the serving usecase.
type Predictor interface {
	PredictOneStep(ctx context.Context, ticker, model string) (*models.Prediction, error)
	Forecast(ctx context.Context, ticker, model string, count int, unit string) (*models.Forecast, error)
}

// Comparer ranks the trained models of a ticker.
type Comparer interface {
	Compare(ctx context.Context, ticker string) (*models.Comparison, error)
}

// ForecastEchoHandler serves predictions, rolling forecasts and comparisons.
type ForecastEchoHandler struct {
	logger  *xlogger.Logger
	predict Predictor
	compare Comparer
}

func NewForecastEchoHandler(logger *xlogger.Logger, predict Predictor, compare Comparer) *ForecastEchoHandler {
	return &ForecastEchoHandler{logger: logger, predict: predict, compare: compare}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/predict", h.Predict)
	g.POST("/predict/future", h.Future)
	g.GET("/compare/:ticker", h.Compare)
}

// PredictionFailure reports a (symbol, model) pair that could not be served.
type PredictionFailure struct {
	Symbol string `json:"symbol"`
	Model  string `json:"model"`
	Error  string `json:"error"`
}

// PredictResponse carries the served predictions and the pairs that failed.
type PredictResponse struct {
	Predictions []*models.Prediction `json:"predictions"`
	Failures    []PredictionFailure  `json:"failures,omitempty"`
}

// Predict serves one-step predictions for every (symbol, model) pair. The
// model name "all" expands to every model type. Pairs that fail are reported
// next to the others; the request fails only when all of them did.
func (h *ForecastEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var names []string
	for _, m := range req.Models {
		if strings.EqualFold(m, "all") {
			for _, mt := range models.AllModelTypes() {
				names = append(names, string(mt))
			}
			continue
		}
		names = append(names, m)
	}

	ctx := c.Request().Context()
	res := PredictResponse{Predictions: []*models.Prediction{}}
	var firstErr error
	for _, sym := range req.Symbols {
		for _, m := range names {
			p, err := h.predict.PredictOneStep(ctx, sym, m)
			if err != nil {
				h.logger.Warn("prediction failed", xlogger.String("symbol", sym), xlogger.String("model", m), xlogger.Error(err))
				if firstErr == nil {
					firstErr = err
				}
				res.Failures = append(res.Failures, PredictionFailure{Symbol: strings.ToUpper(sym), Model: m, Error: err.Error()})
				continue
			}
			res.Predictions = append(res.Predictions, p)
		}
	}
	if len(res.Predictions) == 0 && firstErr != nil {
		return xhttp.AppErrorResponse(c, appError(firstErr))
	}
	return xhttp.SuccessResponse(c, res)
}

// Future accepts its parameters in the query string or a JSON body.
func (h *ForecastEchoHandler) Future(c echo.Context) error {
	req := &models.FutureRequest{}
	// echo binds the query only for GET, DELETE and HEAD
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, req); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	f, err := h.predict.Forecast(c.Request().Context(), req.Ticker, req.Model, req.Periods, req.PeriodType)
	if err != nil {
		h.logger.Error("forecast usecase error", xlogger.String("ticker", req.Ticker), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, f)
}

func (h *ForecastEchoHandler) Compare(c echo.Context) error {
	req := &models.TickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cmp, err := h.compare.Compare(c.Request().Context(), req.Ticker)
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, cmp)
}
