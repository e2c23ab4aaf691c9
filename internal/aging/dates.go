package aging

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is a calendar date. All aging comparisons are date-only; time of
// day is discarded when constructing one so UTC boundary effects cannot
// shift an item between buckets.
type Date struct {
	t time.Time
}

// NewDate builds a Date from calendar components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its UTC calendar date.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("aging: parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool       { return d.t.IsZero() }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }
func (d Date) Year() int          { return d.t.Year() }
func (d Date) Month() time.Month  { return d.t.Month() }
func (d Date) Day() int           { return d.t.Day() }
func (d Date) Time() time.Time    { return d.t }
func (d Date) AddDays(n int) Date { return DateOf(d.t.AddDate(0, 0, n)) }
func (d Date) String() string     { return d.t.Format("2006-01-02") }

// DaysSince returns the whole days elapsed from o to d.
func (d Date) DaysSince(o Date) int {
	return int(d.t.Sub(o.t) / (24 * time.Hour))
}

// MarshalJSON encodes the date as "YYYY-MM-DD", or null when zero.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD", the external wire encoding, or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*d = Date{}
		return nil
	}
	if parsed, ok := DecodeWireDate(s); ok {
		*d = parsed
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DecodeWireDate decodes the external source's string-wrapped timestamp
// encodings: "/Date(1706572800000+0000)/" and its escaped form
// "\/Date(...)\/", plus plain ISO dates. The embedded value is epoch
// milliseconds; only the calendar date survives decoding.
func DecodeWireDate(raw string) (Date, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Date{}, false
	}
	s = strings.ReplaceAll(s, `\/`, "/")
	if strings.HasPrefix(s, "/Date(") {
		inner := strings.TrimPrefix(s, "/Date(")
		sign := ""
		if strings.HasPrefix(inner, "-") {
			sign = "-"
			inner = inner[1:]
		}
		if idx := strings.IndexAny(inner, "+-)"); idx >= 0 {
			inner = inner[:idx]
		}
		ms, err := strconv.ParseInt(sign+inner, 10, 64)
		if err != nil {
			return Date{}, false
		}
		return DateOf(time.UnixMilli(ms).UTC()), true
	}
	if d, err := ParseDate(s); err == nil {
		return d, true
	}
	// Source sometimes ships full timestamps for date fields.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), true
	}
	return Date{}, false
}

// PaymentDate resolves the single effective payment date of an item, in
// priority order: the explicit settlement date, the latest payment or
// allocation event, the last-modified proxy when money moved without
// structured payment data, and finally the issue date for settled items
// old enough that the source retains no payment history.
func (it FinancialItem) PaymentDate() (Date, bool) {
	if d, ok := DecodeWireDate(it.FullyPaidOn); ok {
		return d, true
	}
	var latest Date
	for _, p := range it.Payments {
		if !p.Date.IsZero() && (latest.IsZero() || p.Date.After(latest)) {
			latest = p.Date
		}
	}
	for _, a := range it.Allocations {
		if !a.Date.IsZero() && (latest.IsZero() || a.Date.After(latest)) {
			latest = a.Date
		}
	}
	if !latest.IsZero() {
		return latest, true
	}
	if it.AmountPaid > 0 && !it.UpdatedAt.IsZero() {
		return it.UpdatedAt, true
	}
	if it.AmountPaid > 0 && it.AmountDue == 0 && !it.IssueDate.IsZero() {
		return it.IssueDate, true
	}
	return Date{}, false
}
