package aging

import (
	"errors"
	"fmt"
)

// PeriodType selects the unit an aging period is measured in.
type PeriodType string

const (
	PeriodDay   PeriodType = "Day"
	PeriodWeek  PeriodType = "Week"
	PeriodMonth PeriodType = "Month"
)

// Valid reports whether the period type is one of Day, Week, Month.
func (p PeriodType) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return true
	}
	return false
}

// BucketCurrent names the not-yet-due bucket shared by every bucket set.
const BucketCurrent = "Current"

// MaxPeriods bounds the configurable number of aging periods.
const MaxPeriods = 12

var errBadPeriods = errors.New("aging: periods must be between 1 and 12")
var errBadPeriodType = errors.New("aging: period type must be Day, Week or Month")

// BucketSet is one aging configuration: Current, "< 1 <period>", one
// bucket per period, and a terminal overflow bucket. A bucket is chosen
// purely from report date minus due date, never from the item kind.
type BucketSet struct {
	periods    int
	periodType PeriodType
	names      []string
}

// NewBucketSet validates the configuration and precomputes bucket names.
func NewBucketSet(periods int, periodType PeriodType) (BucketSet, error) {
	if periods < 1 || periods > MaxPeriods {
		return BucketSet{}, errBadPeriods
	}
	if !periodType.Valid() {
		return BucketSet{}, errBadPeriodType
	}
	names := make([]string, 0, periods+3)
	names = append(names, BucketCurrent)
	names = append(names, fmt.Sprintf("< 1 %s", periodType))
	for n := 1; n <= periods; n++ {
		names = append(names, periodLabel(n, periodType))
	}
	names = append(names, fmt.Sprintf("> %s", periodLabel(periods, periodType)))
	return BucketSet{periods: periods, periodType: periodType, names: names}, nil
}

func periodLabel(n int, periodType PeriodType) string {
	if n > 1 {
		return fmt.Sprintf("%d %ss", n, periodType)
	}
	return fmt.Sprintf("%d %s", n, periodType)
}

// Periods returns the configured period count.
func (b BucketSet) Periods() int { return b.periods }

// PeriodType returns the configured period unit.
func (b BucketSet) PeriodType() PeriodType { return b.periodType }

// Names lists every bucket in display order.
func (b BucketSet) Names() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Overflow returns the terminal bucket name.
func (b BucketSet) Overflow() string { return b.names[len(b.names)-1] }

// For assigns the bucket for an amount due on due and reported as of
// reportDate. A due date after the report date is Current; otherwise the
// elapsed periods pick the bucket, spilling into the overflow bucket.
func (b BucketSet) For(reportDate, due Date) string {
	if due.IsZero() {
		due = reportDate
	}
	days := reportDate.DaysSince(due)
	if days < 0 {
		return BucketCurrent
	}
	var elapsed int
	switch b.periodType {
	case PeriodMonth:
		elapsed = (reportDate.Year()-due.Year())*12 + int(reportDate.Month()) - int(due.Month())
		if reportDate.Day() < due.Day() {
			elapsed--
		}
	case PeriodWeek:
		elapsed = days / 7
	default:
		elapsed = days
	}
	switch {
	case elapsed <= 0:
		return b.names[1]
	case elapsed <= b.periods:
		return b.names[1+elapsed]
	default:
		return b.Overflow()
	}
}
