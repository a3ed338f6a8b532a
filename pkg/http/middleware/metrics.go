package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "StockCast/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

var (
	httpOnce sync.Once
	httpM    *httpMetrics
)

func registerHTTPMetrics() {
	httpM = &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockcast_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		// forecasts that load and run a model sit in the upper buckets
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockcast_http_request_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60},
		}, []string{"route", "method"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockcast_http_in_flight_requests",
			Help: "Requests being served",
		}),
	}
	prometheus.MustRegister(httpM.requests, httpM.latency, httpM.inFlight)
}

// Metrics counts requests by route template, so "/api/compare/:ticker" is
// one series. 5xx responses are logged as errors and requests slower than
// slow as warnings.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	httpOnce.Do(registerHTTPMetrics)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpM.inFlight.Inc()
			defer httpM.inFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			code := c.Response().Status
			took := time.Since(start)
			httpM.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
			httpM.latency.WithLabelValues(route, method).Observe(took.Seconds())

			if l == nil {
				return nil
			}
			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", code),
				applogger.Duration("took", took),
			}
			switch {
			case code >= 500:
				l.Error("http request failed", fields...)
			case slow > 0 && took >= slow:
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}
