/*
calendar.go - Holiday tables and working-day counting

PURPOSE:
  Answers "does this date cost a day of leave?" and "how many leave
  days does this span cost?". A working day is a weekday that is not a
  configured holiday.

HOLIDAY TABLES:
  Tables are keyed by year and hold ISO date strings. They arrive as
  injected configuration (see config package) and are immutable after
  construction. A maintainer extends the table once a year.

UNCONFIGURED YEARS:
  Two modes, chosen at construction:
    Strict:  a lookup in a year with no table fails with
             MissingHolidaySetError. This is the default - a silent
             "no holidays" answer in an unmaintained year hands out
             wrong working-day counts all January.
    Lenient: unconfigured years simply have no holidays. Matches the
             legacy behavior and is useful for far-future projections.

SEE ALSO:
  - date.go: The Date type
  - config/config.go: Holiday table loading
*/
package calendar

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when a range's end date precedes its
	// start date. The caller must reject the range before computing.
	ErrInvalidRange = errors.New("invalid range: end before start")

	// ErrMissingHolidaySet is returned in strict mode when a year has
	// no configured holiday table.
	ErrMissingHolidaySet = errors.New("no holiday set configured for year")
)

// InvalidRangeError carries the offending endpoints.
type InvalidRangeError struct {
	Start Date
	End   Date
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: end %s before start %s", e.End, e.Start)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// MissingHolidaySetError identifies the unconfigured year.
type MissingHolidaySetError struct {
	Year int
}

func (e *MissingHolidaySetError) Error() string {
	return fmt.Sprintf("no holiday set configured for year %d", e.Year)
}

func (e *MissingHolidaySetError) Unwrap() error { return ErrMissingHolidaySet }

// IsClientError reports whether the error is caused by the caller's
// input rather than by calendar configuration.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange)
}

// =============================================================================
// WORKING-DAY CALENDAR
// =============================================================================

// Mode controls how lookups in unconfigured years behave.
type Mode int

const (
	// Strict fails lookups in years with no holiday table.
	Strict Mode = iota
	// Lenient treats years with no holiday table as holiday-free.
	Lenient
)

// Calendar classifies dates as working days for one jurisdiction.
// Safe for concurrent use: the tables are never mutated after New.
type Calendar struct {
	holidays map[int]map[string]struct{}
	mode     Mode
}

// New builds a calendar from holiday tables keyed by year. Each
// table is a list of ISO calendar dates ("2006-01-02"). Dates that
// do not parse are rejected.
func New(tables map[int][]string, mode Mode) (*Calendar, error) {
	holidays := make(map[int]map[string]struct{}, len(tables))
	for year, dates := range tables {
		set := make(map[string]struct{}, len(dates))
		for _, s := range dates {
			d, err := ParseDate(s)
			if err != nil {
				return nil, fmt.Errorf("holiday table %d: %w", year, err)
			}
			if d.Year() != year {
				return nil, fmt.Errorf("holiday table %d: date %s belongs to year %d", year, s, d.Year())
			}
			set[d.ISO()] = struct{}{}
		}
		holidays[year] = set
	}
	return &Calendar{holidays: holidays, mode: mode}, nil
}

// ConfiguredYears reports how many years carry a holiday table.
func (c *Calendar) ConfiguredYears() int { return len(c.holidays) }

// IsHoliday reports whether the date is a configured holiday.
// In strict mode a date in an unconfigured year returns
// MissingHolidaySetError.
func (c *Calendar) IsHoliday(d Date) (bool, error) {
	set, ok := c.holidays[d.Year()]
	if !ok {
		if c.mode == Strict {
			return false, &MissingHolidaySetError{Year: d.Year()}
		}
		return false, nil
	}
	_, found := set[d.ISO()]
	return found, nil
}

// IsWorkingDay reports whether the date is neither a weekend day nor
// a configured holiday.
func (c *Calendar) IsWorkingDay(d Date) (bool, error) {
	if d.IsWeekend() {
		return false, nil
	}
	holiday, err := c.IsHoliday(d)
	if err != nil {
		return false, err
	}
	return !holiday, nil
}

// CountWorkingDays returns the inclusive count of working days
// between start and end. Ranges with end before start fail with
// InvalidRangeError. The result is never negative.
//
// Computed as the inclusive business-day count minus the holidays
// that land on a weekday inside the range; a holiday on a Saturday
// does not subtract a day twice.
func (c *Calendar) CountWorkingDays(start, end Date) (int, error) {
	if end.Before(start) {
		return 0, &InvalidRangeError{Start: start, End: end}
	}

	business := 0
	weekdayHolidays := 0
	for d := start; !d.After(end); d = d.AddDays(1) {
		if d.IsWeekend() {
			continue
		}
		business++
		holiday, err := c.IsHoliday(d)
		if err != nil {
			return 0, err
		}
		if holiday {
			weekdayHolidays++
		}
	}

	days := business - weekdayHolidays
	if days < 0 {
		days = 0
	}
	return days, nil
}

// HasWorkingDays reports whether the inclusive range contains at
// least one working day. Leave-request submission uses this to
// reject spans that cover only weekends and holidays.
func (c *Calendar) HasWorkingDays(start, end Date) (bool, error) {
	n, err := c.CountWorkingDays(start, end)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
