// Package money holds the currency and calendar-date conversions shared by the
// import pipeline. All stored and compared amounts are int64 minor units
// (cents); decimal unit amounts exist only at the source boundary.
package money

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for ledger rows and dedup keys.
const DateLayout = "2006-01-02"

var hundred = decimal.NewFromInt(100)

// ToCents converts a unit-currency amount to minor units, rounding the cent
// boundary half away from zero (19.999 -> 2000, -19.999 -> -2000).
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units back to a unit-currency amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatDate renders t as a calendar date string (YYYY-MM-DD).
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatCents renders minor units as a grouped two-decimal amount, e.g.
// 1234550 -> "12,345.50". Used only for display.
func FormatCents(cents int64) string {
	s := FromCents(cents).StringFixed(2)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	whole, frac := s[:dot], s[dot:]

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}
