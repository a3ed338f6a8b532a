package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

var errMissing = errors.New("missing")

func TestFromError(t *testing.T) {
	rules := []ErrorRule{{Target: errMissing, Build: NotFoundError}}

	got := FromError(errors.Join(errors.New("lookup"), errMissing), rules...)
	if got.Status != http.StatusNotFound || !errors.Is(got, errMissing) {
		t.Fatalf("unexpected mapping %+v", got)
	}
	if got := FromError(errors.New("boom"), rules...); got.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got.Status)
	}
	conflict := ConflictError("busy")
	if got := FromError(conflict, rules...); got != conflict {
		t.Fatalf("app errors should pass through")
	}
}

func TestAppErrorResponseStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := AppErrorResponse(c, UnprocessableError("not enough data")); err != nil {
		t.Fatalf("response: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Status != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

type tickerReq struct {
	Ticker string `json:"ticker" validate:"required,ticker"`
	Days   int    `default:"30" validate:"gte=1"`
}

func TestValidateStruct(t *testing.T) {
	ok := &tickerReq{Ticker: "BRK-B"}
	if errs := ValidateStruct(ok); errs != nil {
		t.Fatalf("unexpected errors %v", errs)
	}
	if ok.Days != 30 {
		t.Fatalf("default not applied: %d", ok.Days)
	}
	errs := ValidateStruct(&tickerReq{Ticker: "no spaces"})
	if len(errs) != 1 || errs[0].Code != "ERR_TICKER" || errs[0].Field != "ticker" {
		t.Fatalf("unexpected errors %v", errs)
	}
	if errs := ValidateStruct(&tickerReq{Ticker: "^GSPC"}); errs != nil {
		t.Fatalf("index symbol rejected: %v", errs)
	}
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("user agent not sent")
		}
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("test-agent"))
	var out map[string]interface{}
	err := c.GetJSON(context.Background(), srv.URL, nil, &out)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 status error, got %v", err)
	}
}

func TestClientAddsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("interval") != "1d" || r.URL.Query().Get("keep") != "yes" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	if err := NewClient().GetJSON(context.Background(), srv.URL+"?keep=yes", url.Values{"interval": {"1d"}}, &out); err != nil || !out.OK {
		t.Fatalf("get: %+v %v", out, err)
	}
}

func TestAppErrorCodes(t *testing.T) {
	cases := map[string]*AppError{
		"ERR_NOT_FOUND":     NotFoundError("x"),
		"ERR_BAD_REQUEST":   BadRequestError("x"),
		"ERR_CONFLICT":      ConflictError("x"),
		"ERR_UNPROCESSABLE": UnprocessableError("x"),
		"ERR_UNAVAILABLE":   UnavailableError("x"),
	}
	for want, e := range cases {
		if e.Code != want {
			t.Fatalf("got %s want %s", e.Code, want)
		}
	}
}

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
}

func TestServerRoutesAndCORS(t *testing.T) {
	s := NewServer(nil, []Handler{pingHandler{}, nil},
		WithHost("127.0.0.1"), WithPort(9001), WithCORS(true, "https://app.example"), WithMetricsPath(""))
	if s.Addr() != "127.0.0.1:9001" {
		t.Fatalf("addr %s", s.Addr())
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("cors header missing: %v", rec.Header())
	}

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics should be disabled, got %d", rec.Code)
	}
}
