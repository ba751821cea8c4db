/*
toil.go - TOIL accrual and hour/day conversion

PURPOSE:
  TOIL (time off in lieu) is earned when a week's logged hours exceed
  contracted hours. Accruals are tracked in hours and expire six
  months after the week they were earned in; balances are shown to
  users in days at the standard working day length.

SEE ALSO:
  - balance.go: Computed balances carry both TOILHours and TOILDays
  - carryover/toil.go: The expiry sweep that retires old accruals
*/
package balance

import (
	"github.com/shopspring/decimal"

	"github.com/praxishub/leave-engine/calendar"
)

// HoursPerDay is the standard working day used to express TOIL hours
// as days.
var HoursPerDay = decimal.NewFromFloat(7.5)

// TOILExpiryMonths is how long an accrual stays claimable.
const TOILExpiryMonths = 6

// AccrueTOIL returns the TOIL hours earned for a week:
// max(0, logged - contracted). Undertime never accrues negative TOIL.
func AccrueTOIL(logged, contracted decimal.Decimal) decimal.Decimal {
	overtime := logged.Sub(contracted)
	if overtime.IsNegative() {
		return decimal.Zero
	}
	return overtime
}

// TOILExpiry returns the date an accrual earned in the given week
// stops being claimable.
func TOILExpiry(weekEnding calendar.Date) calendar.Date {
	return weekEnding.AddMonths(TOILExpiryMonths)
}

// HoursToDays converts TOIL hours to days at the standard working
// day length.
func HoursToDays(hours decimal.Decimal) decimal.Decimal {
	return hours.Div(HoursPerDay)
}

// DaysToHours converts whole or fractional days to hours.
func DaysToHours(days decimal.Decimal) decimal.Decimal {
	return days.Mul(HoursPerDay)
}
