package api

import (
	"context"
	"net/http"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/usecase"
	xhttp "StockCast/pkg/http"
	xlogger "StockCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Catalog is the read side over trained models, prices and predictions.
type Catalog interface {
	Tickers(ctx context.Context) ([]string, error)
	TrainedModels(ctx context.Context, ticker string) ([]models.ModelType, error)
	ModelMetrics(ctx context.Context, ticker string) ([]models.Metrics, error)
	StockBars(ctx context.Context, symbol string, days int) ([]models.Bar, error)
	PredictionHistory(ctx context.Context, symbol string, limit int) ([]models.PredictionRecord, error)
}

// Scheduler enqueues training jobs.
type Scheduler interface {
	EnqueueTicker(ctx context.Context, req models.TrainTickerRequest) ([]usecase.ScheduledJob, error)
}

// CatalogEchoHandler serves training, listing and history endpoints.
type CatalogEchoHandler struct {
	logger  *xlogger.Logger
	catalog Catalog
	jobs    Scheduler
}

func NewCatalogEchoHandler(logger *xlogger.Logger, catalog Catalog, jobs Scheduler) *CatalogEchoHandler {
	return &CatalogEchoHandler{logger: logger, catalog: catalog, jobs: jobs}
}

func (h *CatalogEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.POST("/train/:ticker", h.Train)
	g.GET("/tickers", h.Tickers)
	g.GET("/models/:ticker", h.Models)
	g.GET("/metrics/models/:ticker", h.Metrics)
	g.GET("/stock/:symbol", h.Stock)
	g.GET("/predictions/history", h.History)
}

func (h *CatalogEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// TrainResponse acknowledges queued training jobs.
type TrainResponse struct {
	Ticker string                 `json:"ticker"`
	Jobs   []usecase.ScheduledJob `json:"jobs"`
}

// Train enqueues one job per requested model type and returns immediately.
func (h *CatalogEchoHandler) Train(c echo.Context) error {
	req := &models.TrainTickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	jobs, err := h.jobs.EnqueueTicker(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("enqueue training failed", xlogger.String("ticker", req.Ticker), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.DataResponse(c, http.StatusAccepted, TrainResponse{
		Ticker: models.NewArtifactKey(req.Ticker, "").Ticker,
		Jobs:   jobs,
	})
}

func (h *CatalogEchoHandler) Tickers(c echo.Context) error {
	tickers, err := h.catalog.Tickers(c.Request().Context())
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.ListResponse(c, tickers, int64(len(tickers)))
}

func (h *CatalogEchoHandler) Models(c echo.Context) error {
	req := &models.TickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	trained, err := h.catalog.TrainedModels(c.Request().Context(), req.Ticker)
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	if len(trained) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no models found for ticker %s", req.Ticker))
	}
	return xhttp.ListResponse(c, trained, int64(len(trained)))
}

func (h *CatalogEchoHandler) Metrics(c echo.Context) error {
	req := &models.TickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ms, err := h.catalog.ModelMetrics(c.Request().Context(), req.Ticker)
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.ListResponse(c, ms, int64(len(ms)))
}

func (h *CatalogEchoHandler) Stock(c echo.Context) error {
	req := &models.StockRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	bars, err := h.catalog.StockBars(c.Request().Context(), req.Symbol, req.Days)
	if err != nil {
		h.logger.Error("stock data failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

func (h *CatalogEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	recs, err := h.catalog.PredictionHistory(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}
