package forecast

import (
	"fmt"
	"time"

	"StockCast/internal/domain/models"
)

var unitDays = map[models.PeriodUnit]int{
	models.PeriodDay:   1,
	models.PeriodWeek:  7,
	models.PeriodMonth: 30,
	models.PeriodYear:  365,
}

// Horizon is a forecast length resolved to calendar days and trading steps.
type Horizon struct {
	Count     int
	Unit      models.PeriodUnit
	TotalDays int
	Steps     int
}

// ResolveHorizon converts count units to calendar days and then to trading steps
// with the five-in-seven approximation.
func ResolveHorizon(count int, unit models.PeriodUnit) (Horizon, error) {
	days, ok := unitDays[unit]
	if !ok {
		return Horizon{}, fmt.Errorf("resolve horizon: %w: %q", models.ErrInvalidPeriodUnit, unit)
	}
	if count < 0 {
		return Horizon{}, fmt.Errorf("resolve horizon: negative count %d", count)
	}
	total := count * days
	return Horizon{Count: count, Unit: unit, TotalDays: total, Steps: total * 5 / 7}, nil
}

// Weekdays is the default trading calendar: Monday to Friday, no holidays.
type Weekdays struct{}

// NextTradingDays returns the n weekdays strictly after the given date.
func (Weekdays) NextTradingDays(after time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := truncateDay(after)
	for len(out) < n {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, d)
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatDates renders dates with the wire layout.
func FormatDates(ds []time.Time) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Format(models.DateLayout)
	}
	return out
}
