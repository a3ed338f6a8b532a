package calendar

import (
	"testing"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/forecast"
)

func TestEmptyMICIsWeekdays(t *testing.T) {
	cal, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := cal.(forecast.Weekdays); !ok {
		t.Fatalf("expected weekday calendar, got %T", cal)
	}
}

func TestUnknownMIC(t *testing.T) {
	if _, err := New("XXXX"); err == nil {
		t.Fatalf("expected error for unknown MIC")
	}
}

func TestNYSESkipsChristmas(t *testing.T) {
	cal, err := New("XNYS")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	days := cal.NextTradingDays(time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC), 3)
	got := []string{}
	for _, d := range days {
		got = append(got, d.Format(models.DateLayout))
	}
	want := []string{"2024-12-26", "2024-12-27", "2024-12-30"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
