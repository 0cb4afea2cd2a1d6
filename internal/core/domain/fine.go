package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComputeFine returns the whole calendar days between dueDate and returnDate
// (never negative) and the fine owed at ratePerDay.
func ComputeFine(dueDate, returnDate time.Time, ratePerDay decimal.Decimal) (int, decimal.Decimal) {
	days := CalendarDaysBetween(dueDate, returnDate)
	if days <= 0 {
		return 0, decimal.Zero
	}
	return days, ratePerDay.Mul(decimal.NewFromInt(int64(days)))
}

// CalendarDaysBetween counts date boundaries from a to b, ignoring time of day
func CalendarDaysBetween(a, b time.Time) int {
	ad := DateOnly(a)
	bd := DateOnly(b.In(a.Location()))
	return int(bd.Sub(ad).Hours() / 24)
}

// DateOnly truncates t to midnight in its own location as a UTC date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays adds whole days to t
func AddDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}
