package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/pkg/logger"
)

// Two trading days at 14:30 UTC, the second close repeated by a late
// intraday row, plus a null close that must be skipped.
const chartBody = `{"chart":{"result":[{"meta":{"symbol":"AAPL","gmtoffset":-18000},
"timestamp":[1704205800,1704292200,1704378600,1704306600],
"indicators":{"quote":[{"open":[187.1,184.2,null,184.0],"high":[188.4,185.8,null,185.0],
"low":[183.8,183.4,null,183.0],"close":[185.6,184.2,null,184.9],"volume":[82488700,58414500,null,100]}]}}],
"error":null}}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(logger.Nop(), WithBaseURL(srv.URL))
}

func TestFetchParsesChart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/AAPL" || r.URL.Query().Get("interval") != "1d" {
			t.Errorf("unexpected request %s", r.URL)
		}
		fmt.Fprint(w, chartBody)
	})

	bars, err := c.Fetch(context.Background(), "aapl",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Date.Format(models.DateLayout) != "2024-01-02" || bars[0].Close != 185.6 {
		t.Fatalf("unexpected first bar %+v", bars[0])
	}
	if bars[1].Date.Format(models.DateLayout) != "2024-01-03" || bars[1].Close != 184.9 {
		t.Fatalf("unexpected second bar %+v", bars[1])
	}
	if bars[0].Symbol != "AAPL" {
		t.Fatalf("ticker not normalized")
	}
}

func TestFetchClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, "Too Many Requests", models.ErrRateLimited},
		{"unknown ticker", http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`, models.ErrDataUnavailable},
		{"server error", http.StatusBadGateway, "bad gateway", models.ErrTransientFetch},
		{"empty result", http.StatusOK, `{"chart":{"result":[],"error":null}}`, models.ErrTransientFetch},
		{"api error delisted", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Bad Request","description":"XYZ: possibly delisted; No timezone found"}}}`, models.ErrDataUnavailable},
		{"all null", http.StatusOK, `{"chart":{"result":[{"meta":{},"timestamp":[1],"indicators":{"quote":[{"close":[null]}]}}]}}`, models.ErrTransientFetch},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			fmt.Fprint(w, tc.body)
		})
		_, err := c.Fetch(context.Background(), "XYZ", time.Now().AddDate(0, -1, 0), time.Now())
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestFetchReturnsContextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := c.Fetch(ctx, "AAPL", time.Now(), time.Now()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
