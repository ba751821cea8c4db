/*
Package calendar classifies calendar dates as working days.

PURPOSE:
  Everything downstream of a leave request is priced in working days:
  a span that covers only weekends and bank holidays costs nothing and
  must be rejected, a Monday-to-Friday week costs five. This package
  owns that classification for the deployment's jurisdiction.

KEY CONCEPTS IN THIS FILE (date.go):
  - Date: A calendar day (no time-of-day, no zone arithmetic)
  - Weekend classification under the proleptic Gregorian calendar

DESIGN PRINCIPLES:
  1. Day granularity only: a Date never carries hours or a zone offset,
     so "2025-01-01" means the same day everywhere it is compared.
  2. Holiday tables are injected configuration, never compiled in.
     Adding a year is a config change, not a release.

SEE ALSO:
  - calendar.go: Holiday tables and working-day counting
*/
package calendar

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day with no time-of-day component
// =============================================================================

// Date is a single calendar day. The zero value is not a valid date.
type Date struct {
	t time.Time
}

// NewDate constructs a Date for the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime truncates a time.Time to its local calendar day.
// The wall-clock day is kept as-is: no UTC shifting, so a request
// entered late in the evening stays on the day the user saw.
func FromTime(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses an ISO calendar date ("2006-01-02").
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return FromTime(t), nil
}

// MustDate parses an ISO calendar date and panics on failure.
// For tests and static tables only.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{t: d.t.AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }

// IsWeekend reports whether the date falls on a Saturday or Sunday.
func (d Date) IsWeekend() bool {
	wd := d.t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// ISO returns the date formatted as "2006-01-02". This is the key
// format used by holiday tables.
func (d Date) ISO() string { return d.t.Format("2006-01-02") }

func (d Date) String() string { return d.ISO() }

// Today returns the current calendar day in the local zone.
func Today() Date { return FromTime(time.Now()) }
