package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxishub/leave-engine/calendar"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// uk2025 is the England & Wales bank holiday table for 2025.
var uk2025 = []string{
	"2025-01-01", // New Year's Day
	"2025-04-18", // Good Friday
	"2025-04-21", // Easter Monday
	"2025-05-05", // Early May bank holiday
	"2025-05-26", // Spring bank holiday
	"2025-08-25", // Summer bank holiday
	"2025-12-25", // Christmas Day
	"2025-12-26", // Boxing Day
}

func newUKCalendar(t *testing.T, mode calendar.Mode) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.New(map[int][]string{2025: uk2025}, mode)
	require.NoError(t, err)
	return cal
}

func countDays(t *testing.T, cal *calendar.Calendar, start, end string) int {
	t.Helper()
	n, err := cal.CountWorkingDays(calendar.MustDate(start), calendar.MustDate(end))
	require.NoError(t, err)
	return n
}

// =============================================================================
// WORKING-DAY COUNTING
// =============================================================================

func TestCountWorkingDays_StandardWeek(t *testing.T) {
	// GIVEN: Monday through Friday with no holidays in the span
	// THEN: five working days

	cal := newUKCalendar(t, calendar.Strict)
	assert.Equal(t, 5, countDays(t, cal, "2025-06-02", "2025-06-06"))
}

func TestCountWorkingDays_ExcludesWeekends(t *testing.T) {
	cal := newUKCalendar(t, calendar.Strict)

	// Monday through the following Sunday still costs five days.
	assert.Equal(t, 5, countDays(t, cal, "2025-06-02", "2025-06-08"))
}

func TestCountWorkingDays_WeekendOnlySpan(t *testing.T) {
	cal := newUKCalendar(t, calendar.Strict)

	assert.Equal(t, 0, countDays(t, cal, "2025-06-07", "2025-06-08"))
}

func TestCountWorkingDays_SingleDay(t *testing.T) {
	cal := newUKCalendar(t, calendar.Strict)

	assert.Equal(t, 1, countDays(t, cal, "2025-06-04", "2025-06-04"), "single Wednesday")
	assert.Equal(t, 0, countDays(t, cal, "2025-06-07", "2025-06-07"), "single Saturday")
	assert.Equal(t, 0, countDays(t, cal, "2025-01-01", "2025-01-01"), "single holiday")
}

func TestCountWorkingDays_ExcludesBankHolidays(t *testing.T) {
	cal := newUKCalendar(t, calendar.Strict)

	// Fri 2 May .. Fri 9 May: the early May bank holiday (Mon 5th)
	// drops out along with the weekend.
	assert.Equal(t, 5, countDays(t, cal, "2025-05-02", "2025-05-09"))

	// New Year's Day (Wed) .. Friday.
	assert.Equal(t, 2, countDays(t, cal, "2025-01-01", "2025-01-03"))

	// Good Friday .. following Friday: Good Friday and Easter Monday
	// both drop out.
	assert.Equal(t, 4, countDays(t, cal, "2025-04-18", "2025-04-25"))

	// Christmas Eve (Wed) .. Mon 29th: Christmas and Boxing Day drop.
	assert.Equal(t, 2, countDays(t, cal, "2025-12-24", "2025-12-29"))
}

func TestCountWorkingDays_MultiWeek(t *testing.T) {
	cal := newUKCalendar(t, calendar.Strict)

	assert.Equal(t, 10, countDays(t, cal, "2025-07-07", "2025-07-18"))
}

func TestCountWorkingDays_SpansYearBoundary(t *testing.T) {
	// GIVEN: holiday set {2025-01-01}, Mon 30 Dec 2024 .. Thu 2 Jan 2025
	// THEN: four business days minus the New Year holiday = 3

	cal, err := calendar.New(map[int][]string{
		2024: {},
		2025: {"2025-01-01"},
	}, calendar.Strict)
	require.NoError(t, err)

	assert.Equal(t, 3, countDays(t, cal, "2024-12-30", "2025-01-02"))
}

func TestCountWorkingDays_InvalidRange(t *testing.T) {
	cal := newUKCalendar(t, calendar.Strict)

	_, err := cal.CountWorkingDays(calendar.MustDate("2025-06-06"), calendar.MustDate("2025-06-02"))
	require.Error(t, err)
	assert.ErrorIs(t, err, calendar.ErrInvalidRange)

	var rangeErr *calendar.InvalidRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "2025-06-06", rangeErr.Start.ISO())
}

func TestCountWorkingDays_NeverNegative(t *testing.T) {
	// A span consisting entirely of weekend + holiday can at worst
	// reach zero.
	cal := newUKCalendar(t, calendar.Strict)

	// Sat 24 May .. Mon 26 May (spring bank holiday).
	assert.Equal(t, 0, countDays(t, cal, "2025-05-24", "2025-05-26"))
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestIsWorkingDay_AgreesWithParts(t *testing.T) {
	// Property: isWorkingDay(d) == !isWeekend(d) && !isHoliday(d)
	// over a full year.

	cal := newUKCalendar(t, calendar.Strict)

	for d := calendar.MustDate("2025-01-01"); !d.After(calendar.MustDate("2025-12-31")); d = d.AddDays(1) {
		working, err := cal.IsWorkingDay(d)
		require.NoError(t, err)
		holiday, err := cal.IsHoliday(d)
		require.NoError(t, err)
		assert.Equal(t, !d.IsWeekend() && !holiday, working, "date %s", d)
	}
}

func TestHasWorkingDays_MatchesCount(t *testing.T) {
	cal := newUKCalendar(t, calendar.Strict)

	spans := [][2]string{
		{"2025-06-02", "2025-06-06"},
		{"2025-06-07", "2025-06-08"},
		{"2025-01-01", "2025-01-01"},
		{"2025-12-25", "2025-12-28"},
	}
	for _, span := range spans {
		start, end := calendar.MustDate(span[0]), calendar.MustDate(span[1])
		has, err := cal.HasWorkingDays(start, end)
		require.NoError(t, err)
		n, err := cal.CountWorkingDays(start, end)
		require.NoError(t, err)
		assert.Equal(t, n > 0, has, "span %s..%s", start, end)
	}
}

func TestIsWeekend(t *testing.T) {
	assert.True(t, calendar.MustDate("2025-06-07").IsWeekend(), "Saturday")
	assert.True(t, calendar.MustDate("2025-06-08").IsWeekend(), "Sunday")
	assert.False(t, calendar.MustDate("2025-06-09").IsWeekend(), "Monday")
}

// =============================================================================
// UNCONFIGURED YEARS
// =============================================================================

func TestUnconfiguredYear_StrictFails(t *testing.T) {
	cal := newUKCalendar(t, calendar.Strict)

	_, err := cal.IsHoliday(calendar.MustDate("2031-01-01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, calendar.ErrMissingHolidaySet)

	var missing *calendar.MissingHolidaySetError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 2031, missing.Year)

	// The error surfaces through counting too.
	_, err = cal.CountWorkingDays(calendar.MustDate("2030-12-29"), calendar.MustDate("2031-01-02"))
	assert.ErrorIs(t, err, calendar.ErrMissingHolidaySet)
}

func TestUnconfiguredYear_LenientIsHolidayFree(t *testing.T) {
	cal := newUKCalendar(t, calendar.Lenient)

	holiday, err := cal.IsHoliday(calendar.MustDate("2031-01-01"))
	require.NoError(t, err)
	assert.False(t, holiday)

	// Mon .. Fri in an unconfigured year counts plain weekdays.
	n, err := cal.CountWorkingDays(calendar.MustDate("2031-01-06"), calendar.MustDate("2031-01-10"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

// =============================================================================
// TABLE VALIDATION
// =============================================================================

func TestNew_RejectsMalformedDates(t *testing.T) {
	_, err := calendar.New(map[int][]string{2025: {"not-a-date"}}, calendar.Strict)
	assert.Error(t, err)
}

func TestNew_RejectsDatesOutsideTheirYear(t *testing.T) {
	_, err := calendar.New(map[int][]string{2025: {"2024-12-25"}}, calendar.Strict)
	assert.Error(t, err)
}

func TestDate_FromTimeKeepsLocalDay(t *testing.T) {
	// 23:30 local stays on the same calendar day regardless of what
	// that instant is in UTC.
	loc := time.FixedZone("UTC+10", 10*3600)
	late := time.Date(2025, time.June, 4, 23, 30, 0, 0, loc)

	assert.Equal(t, "2025-06-04", calendar.FromTime(late).ISO())
}
