/*
Package balance derives display and decision balances for one
user-year from raw stored fields.

PURPOSE:
  The store keeps primitive fields per (tenant, user, year):
  entitlement, used, carried-over-in, TOIL hours, sick days. Everything
  a screen or an approval decision needs - remaining days, percentage
  used, TOIL in days - is derived here, in one place, as a pure
  function.

DESIGN PRINCIPLES:
  1. Precision: all amounts are decimal.Decimal. A half-day is exactly
     0.5 and stays 0.5 through every derivation; nothing rounds to
     integers at this layer.
  2. Purity: no I/O, no clock. Same input, same output, safe from any
     goroutine.
  3. Bad data is surfaced, not swallowed: a raw remaining below zero
     clamps for display but the shortfall is reported in Deficit so
     callers can flag the record.

USAGE:
  c := balance.Compute(balance.Fields{
      Entitlement: decimal.NewFromInt(25),
      Used:        decimal.NewFromFloat(12.5),
      CarriedOver: decimal.NewFromInt(3),
  })
  // c.Remaining = 15.5, c.PercentageUsed = 50

SEE ALSO:
  - toil.go: TOIL accrual and hour/day conversion
  - carryover/engine.go: Uses the same remaining arithmetic at year end
*/
package balance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// RAW FIELDS - What the store holds
// =============================================================================

// Fields are the raw stored amounts for one user-year. Entitlement,
// Used and CarriedOver are expected non-negative; TOILHours may be
// negative where policy allows over-claiming.
type Fields struct {
	Entitlement decimal.Decimal // annual entitlement, days
	Used        decimal.Decimal // annual leave used, days
	CarriedOver decimal.Decimal // carried in from the previous year, days
	TOILHours   decimal.Decimal // time-off-in-lieu balance, hours
	SickUsed    decimal.Decimal // sick leave used, days (informational)
}

// =============================================================================
// COMPUTED BALANCE
// =============================================================================

// Computed is the derived balance for one user-year.
type Computed struct {
	Entitlement decimal.Decimal
	Used        decimal.Decimal
	CarriedOver decimal.Decimal
	SickUsed    decimal.Decimal

	// Remaining = max(0, Entitlement + CarriedOver - Used).
	Remaining decimal.Decimal

	// Deficit is how far the raw remaining went below zero. A
	// positive deficit means used exceeds entitlement plus carry-in:
	// a data problem for the caller to surface, not to hide.
	Deficit decimal.Decimal

	// PercentageUsed = Used / Entitlement * 100, or 0 when the
	// entitlement itself is 0.
	PercentageUsed decimal.Decimal

	TOILHours decimal.Decimal
	TOILDays  decimal.Decimal
}

// Compute derives the balance from raw fields.
func Compute(f Fields) Computed {
	raw := f.Entitlement.Add(f.CarriedOver).Sub(f.Used)

	remaining := raw
	deficit := decimal.Zero
	if raw.IsNegative() {
		remaining = decimal.Zero
		deficit = raw.Neg()
	}

	pct := decimal.Zero
	if !f.Entitlement.IsZero() {
		pct = f.Used.Div(f.Entitlement).Mul(decimal.NewFromInt(100))
	}

	return Computed{
		Entitlement:    f.Entitlement,
		Used:           f.Used,
		CarriedOver:    f.CarriedOver,
		SickUsed:       f.SickUsed,
		Remaining:      remaining,
		Deficit:        deficit,
		PercentageUsed: pct,
		TOILHours:      f.TOILHours,
		TOILDays:       HoursToDays(f.TOILHours),
	}
}

// Remaining is the year-end arithmetic shared with the carryover
// engine: max(0, entitlement + carriedOver - used).
func Remaining(entitlement, carriedOver, used decimal.Decimal) decimal.Decimal {
	raw := entitlement.Add(carriedOver).Sub(used)
	if raw.IsNegative() {
		return decimal.Zero
	}
	return raw
}
