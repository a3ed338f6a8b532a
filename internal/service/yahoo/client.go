package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/service/ratelimit"
	xhttp "StockCast/pkg/http"
	"StockCast/pkg/logger"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client reads daily bars from the Yahoo Finance chart API and classifies
// failures with the sentinels in models.
type Client struct {
	http      *xhttp.Client
	baseURL   string
	limiter   *ratelimit.Limiter
	perMinute int
	log       *logger.Logger
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API host, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *xhttp.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per minute. Zero disables the limit.
func WithRateLimit(l *ratelimit.Limiter, perMinute int) Option {
	return func(c *Client) {
		c.limiter = l
		c.perMinute = perMinute
	}
}

// New creates a chart API client.
func New(lgr *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		log:     lgr,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient()
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	return c
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GMTOffset int64  `json:"gmtoffset"`
				Timezone  string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch returns the daily bars of ticker between start and end inclusive,
// ordered by date. A zero end means today.
func (c *Client) Fetch(ctx context.Context, ticker string, start, end time.Time) ([]models.Bar, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if end.IsZero() {
		end = time.Now().UTC()
	}

	if c.limiter != nil && c.perMinute > 0 {
		if err := c.limiter.Wait(ctx, "yahoo", float64(c.perMinute), float64(c.perMinute)/60); err != nil {
			return nil, err
		}
	}

	var resp chartResponse
	err := c.http.GetJSON(ctx, fmt.Sprintf("%s/v8/finance/chart/%s", c.baseURL, url.PathEscape(ticker)), url.Values{
		"period1":  {strconv.FormatInt(start.Unix(), 10)},
		"period2":  {strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10)},
		"interval": {"1d"},
		"events":   {"history"},
	}, &resp)
	if err != nil {
		return nil, classify(ctx, ticker, err)
	}

	bars, err := parseChart(ticker, &resp)
	if err != nil {
		return nil, err
	}

	c.log.Debug("yahoo bars fetched",
		logger.String("ticker", ticker),
		logger.Int("bars", len(bars)))
	return bars, nil
}

func classify(ctx context.Context, ticker string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests:
			return fmt.Errorf("fetch %s: %w", ticker, models.ErrRateLimited)
		case se.Code == http.StatusNotFound || se.Code == http.StatusBadRequest || isDelisted(se.Body):
			return fmt.Errorf("fetch %s: %w: %s", ticker, models.ErrDataUnavailable, describe(se.Body))
		default:
			return fmt.Errorf("fetch %s: %w: status %d", ticker, models.ErrTransientFetch, se.Code)
		}
	}
	return fmt.Errorf("fetch %s: %w: %v", ticker, models.ErrTransientFetch, err)
}

func isDelisted(body string) bool {
	b := strings.ToLower(body)
	return strings.Contains(b, "delisted") ||
		strings.Contains(b, "no data found") ||
		strings.Contains(b, "no timezone found")
}

func describe(body string) string {
	if len(body) > 120 {
		return body[:120]
	}
	return body
}

func parseChart(ticker string, resp *chartResponse) ([]models.Bar, error) {
	if e := resp.Chart.Error; e != nil {
		if strings.EqualFold(e.Code, "Not Found") || isDelisted(e.Description) {
			return nil, fmt.Errorf("fetch %s: %w: %s", ticker, models.ErrDataUnavailable, e.Description)
		}
		return nil, fmt.Errorf("fetch %s: %w: %s", ticker, models.ErrTransientFetch, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("fetch %s: %w: empty result", ticker, models.ErrTransientFetch)
	}

	r := resp.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 || len(r.Timestamp) == 0 {
		return nil, fmt.Errorf("fetch %s: %w: no rows", ticker, models.ErrTransientFetch)
	}
	q := r.Indicators.Quote[0]

	byDay := make(map[string]models.Bar, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		cl := at(q.Close, i)
		if cl == nil {
			continue
		}
		// Dates are taken in exchange local time so a bar never lands on the
		// previous UTC day.
		local := time.Unix(ts+r.Meta.GMTOffset, 0).UTC()
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		b := models.Bar{
			Symbol: ticker,
			Date:   day,
			Close:  *cl,
			Open:   valueOr(at(q.Open, i), *cl),
			High:   valueOr(at(q.High, i), *cl),
			Low:    valueOr(at(q.Low, i), *cl),
			Volume: valueOr(at(q.Volume, i), 0),
		}
		byDay[day.Format(models.DateLayout)] = b
	}
	if len(byDay) == 0 {
		return nil, fmt.Errorf("fetch %s: %w: no closing prices", ticker, models.ErrTransientFetch)
	}

	bars := make([]models.Bar, 0, len(byDay))
	for _, b := range byDay {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func at(xs []*float64, i int) *float64 {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
