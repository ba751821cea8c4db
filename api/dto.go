/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the HTTP surface. These decouple the stored
  record shape from the API contract: day amounts cross the wire as
  strings carrying the decimal's exact form, never floats.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/praxishub/leave-engine/balance"
	"github.com/praxishub/leave-engine/store"
)

// =============================================================================
// BALANCE
// =============================================================================

// BalanceDTO is the derived balance for one user-year.
type BalanceDTO struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
	Year     int    `json:"year"`

	Entitlement    string `json:"entitlement"`
	Used           string `json:"used"`
	Remaining      string `json:"remaining"`
	CarriedOver    string `json:"carriedOver"`
	SickUsed       string `json:"sickUsed"`
	PercentageUsed string `json:"percentageUsed"`
	TOILHours      string `json:"toilHours"`
	TOILDays       string `json:"toilDays"`

	// Deficit is non-zero when recorded usage exceeds entitlement
	// plus carry-in: a data problem surfaced for the caller.
	Deficit string `json:"deficit,omitempty"`
}

func balanceDTO(rec *store.BalanceRecord, c balance.Computed) BalanceDTO {
	dto := BalanceDTO{
		TenantID:       rec.TenantID,
		UserID:         rec.UserID,
		Year:           rec.Year,
		Entitlement:    c.Entitlement.String(),
		Used:           c.Used.String(),
		Remaining:      c.Remaining.String(),
		CarriedOver:    c.CarriedOver.String(),
		SickUsed:       c.SickUsed.String(),
		PercentageUsed: c.PercentageUsed.String(),
		TOILHours:      c.TOILHours.String(),
		TOILDays:       c.TOILDays.StringFixed(1),
	}
	if !c.Deficit.IsZero() {
		dto.Deficit = c.Deficit.String()
	}
	return dto
}

// SetCarryoverRequest is the admin override for carried-in days.
type SetCarryoverRequest struct {
	Year        int    `json:"year"`
	CarriedOver string `json:"carriedOver"`
}

// =============================================================================
// LEAVE VALIDATION
// =============================================================================

// ValidateLeaveRequest asks whether a proposed leave span is
// acceptable and what it costs.
type ValidateLeaveRequest struct {
	TenantID  string `json:"tenantId"`
	UserID    string `json:"userId"`
	StartDate string `json:"startDate"` // ISO date
	EndDate   string `json:"endDate"`   // ISO date
}

// ValidateLeaveResponse carries the verdict.
type ValidateLeaveResponse struct {
	Valid       bool   `json:"valid"`
	WorkingDays int    `json:"workingDays"`
	Reason      string `json:"reason,omitempty"`
}

// WorkingDaysDTO answers the raw calendar query.
type WorkingDaysDTO struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	WorkingDays int    `json:"workingDays"`
}

// =============================================================================
// TOIL
// =============================================================================

// AccrueTOILRequest records one week's logged vs contracted hours.
type AccrueTOILRequest struct {
	WeekEnding      string `json:"weekEnding"` // ISO date
	LoggedHours     string `json:"loggedHours"`
	ContractedHours string `json:"contractedHours"`
}

// AccrueTOILResponse reports what was accrued.
type AccrueTOILResponse struct {
	Accrued      bool   `json:"accrued"`
	HoursAccrued string `json:"hoursAccrued"`
	ExpiresOn    string `json:"expiresOn,omitempty"`
	AccrualID    string `json:"accrualId,omitempty"`
}

// TOILBalanceDTO is the user's current TOIL position.
type TOILBalanceDTO struct {
	UserID        string `json:"userId"`
	Year          int    `json:"year"`
	BalanceHours  string `json:"balanceHours"`
	BalanceInDays string `json:"balanceInDays"`
}

// TOILAccrualDTO is one history entry.
type TOILAccrualDTO struct {
	ID         string `json:"id"`
	WeekEnding string `json:"weekEnding"`
	Hours      string `json:"hours"`
	ExpiresOn  string `json:"expiresOn"`
	Expired    bool   `json:"expired"`
}

// =============================================================================
// BATCH JOBS
// =============================================================================

// RunCarryoverRequest triggers the annual carryover run.
type RunCarryoverRequest struct {
	FromYear int `json:"fromYear"`
}

// ExpireTOILRequest triggers the TOIL expiry sweep. AsOf defaults to
// today when empty.
type ExpireTOILRequest struct {
	AsOf string `json:"asOf,omitempty"`
}

// ErrorDTO is the uniform error body.
type ErrorDTO struct {
	Error string `json:"error"`
}

func parseAmount(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errBadAmount(field, s)
	}
	return d, nil
}
