package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
)

// Period is the bucket width of a statistics series.
type Period string

const (
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// ParsePeriod reads a period query value. Empty means month.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodMonth, nil
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
		return p, nil
	}
	return "", fmt.Errorf("%w: period %q", core.ErrInvalidParameter, s)
}

// Label names the bucket t falls in. Labels of one period sort
// chronologically as strings. Weeks are ISO weeks.
func (p Period) Label(t time.Time) string {
	t = t.UTC()
	switch p {
	case PeriodDay:
		return t.Format("2006-01-02")
	case PeriodWeek:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case PeriodQuarter:
		return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case PeriodYear:
		return fmt.Sprintf("%d", t.Year())
	default:
		return t.Format("2006-01")
	}
}

const dateLayout = "2006-01-02"

// ParseRange reads optional start and end query values. Dates may be
// YYYY-MM-DD or RFC 3339; a date-only end covers the whole day.
func ParseRange(start, end string) (core.DateRange, error) {
	var r core.DateRange
	var err error
	if start = strings.TrimSpace(start); start != "" {
		if r.From, _, err = parseBound(start); err != nil {
			return r, fmt.Errorf("%w: start_date %q", core.ErrInvalidParameter, start)
		}
	}
	if end = strings.TrimSpace(end); end != "" {
		to, dateOnly, err := parseBound(end)
		if err != nil {
			return r, fmt.Errorf("%w: end_date %q", core.ErrInvalidParameter, end)
		}
		if dateOnly {
			to = EndOfDay(to)
		}
		r.To = to
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return r, fmt.Errorf("%w: end_date before start_date", core.ErrInvalidParameter)
	}
	return r, nil
}

func parseBound(s string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t.UTC(), false, err
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last instant of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Nanosecond)
}
