package calendar

import (
	"fmt"
	"strings"
	"time"

	"StockCast/internal/domain/repository"
	"StockCast/internal/forecast"

	"github.com/scmhub/calendar"
)

// Exchange labels forecast dates with the holidays of one market.
type Exchange struct {
	mic string
	cal *calendar.Calendar
}

// New returns the calendar for a MIC such as "XNYS". An empty MIC gives plain
// weekdays.
func New(mic string) (repository.TradingCalendar, error) {
	mic = strings.ToLower(strings.TrimSpace(mic))
	if mic == "" {
		return forecast.Weekdays{}, nil
	}
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		return nil, fmt.Errorf("unknown market calendar %q", mic)
	}
	return &Exchange{mic: mic, cal: cal}, nil
}

// MIC returns the market identifier.
func (e *Exchange) MIC() string { return strings.ToUpper(e.mic) }

// NextTradingDays returns the n business days strictly after the given date.
func (e *Exchange) NextTradingDays(after time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	y, m, d := after.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for len(out) < n {
		day = day.AddDate(0, 0, 1)
		// Checked at midday in the exchange zone so the date does not shift.
		local := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, e.cal.Loc)
		if e.cal.IsBusinessDay(local) {
			out = append(out, day)
		}
	}
	return out
}
