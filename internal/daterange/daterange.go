package daterange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const Layout = "2006-01-02"

// MaxDays bounds a single range so a typo in the year cannot fan out into
// thousands of writes.
const MaxDays = 731

var (
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvertedRange  = errors.New("start date is after end date")
	ErrRangeTooLong   = fmt.Errorf("date range exceeds %d days", MaxDays)
	ErrInvalidWeekday = errors.New("weekday must be between 0 (Sunday) and 6 (Saturday)")
)

// Date is a calendar day. The zero value is not a valid date.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(Layout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidDate, s)
	}
	return FromTime(t), nil
}

func MustParse(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool { return d.t.IsZero() }
func (d Date) Time() time.Time { return d.t }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }
func (d Date) String() string { return d.t.Format(Layout) }
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween counts calendar days in [start, end].
func DaysBetween(start, end Date) int {
	if end.Before(start) {
		return 0
	}
	return int(end.t.Sub(start.t).Hours()/24) + 1
}

type Filter struct {
	SkipWeekdays []int
	SkipDates    []Date
}

func (f Filter) Validate() error {
	for _, wd := range f.SkipWeekdays {
		if wd < 0 || wd > 6 {
			return fmt.Errorf("%w: got %d", ErrInvalidWeekday, wd)
		}
	}
	return nil
}

type SkipReason string

const (
	SkipWeekday      SkipReason = "weekday"
	SkipExcludedDate SkipReason = "excluded date"
)

type Skipped struct {
	Date   Date
	Reason SkipReason
}

// Plan is the full outcome of walking a window: what qualifies and what was
// filtered out. Preview and mutation both come from the same Plan.
type Plan struct {
	Start     Date
	End       Date
	TotalDays int
	Included  []Date
	Skipped   []Skipped
}

func NewPlan(start, end Date, f Filter) (Plan, error) {
	if start.IsZero() || end.IsZero() {
		return Plan{}, fmt.Errorf("%w: start and end are required", ErrInvalidDate)
	}
	if start.After(end) {
		return Plan{}, fmt.Errorf("%w: %s > %s", ErrInvertedRange, start, end)
	}
	if err := f.Validate(); err != nil {
		return Plan{}, err
	}
	total := DaysBetween(start, end)
	if total > MaxDays {
		return Plan{}, ErrRangeTooLong
	}

	weekdays := make(map[time.Weekday]struct{}, len(f.SkipWeekdays))
	for _, wd := range f.SkipWeekdays {
		weekdays[time.Weekday(wd)] = struct{}{}
	}
	dates := make(map[Date]struct{}, len(f.SkipDates))
	for _, d := range f.SkipDates {
		dates[d] = struct{}{}
	}

	plan := Plan{Start: start, End: end, TotalDays: total, Included: make([]Date, 0, total)}
	for d := start; !d.After(end); d = d.AddDays(1) {
		if _, skip := weekdays[d.Weekday()]; skip {
			plan.Skipped = append(plan.Skipped, Skipped{Date: d, Reason: SkipWeekday})
			continue
		}
		if _, skip := dates[d]; skip {
			plan.Skipped = append(plan.Skipped, Skipped{Date: d, Reason: SkipExcludedDate})
			continue
		}
		plan.Included = append(plan.Included, d)
	}
	return plan, nil
}

// Generate returns the qualifying dates in [start, end] in ascending order.
func Generate(start, end Date, f Filter) ([]Date, error) {
	plan, err := NewPlan(start, end, f)
	if err != nil {
		return nil, err
	}
	return plan.Included, nil
}
