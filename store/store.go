/*
Package store defines the persistence boundary for leave balances.

PURPOSE:
  The balance calculator and the carryover engine are pure logic; this
  package is the contract they program against. Three implementations
  exist:

    store/memory:   mutex-guarded maps, for tests and failure injection
    store/sqlite:   embedded deployments and local development
    store/postgres: the production deployment (pgx)

RECORD LIFECYCLE:
  A BalanceRecord exists per (tenant, user, year). It is created when a
  user's leave year opens (or lazily by the carryover engine), mutated
  by approval/cancellation flows and by the year-end carryover, and
  never deleted - the next year's record supersedes it.

CARRYOVER MARKERS:
  The carryover engine is not naturally idempotent: re-running it after
  the destination year has accrued usage would overwrite carried-in
  days. Stores therefore persist a per (tenant, user, fromYear) applied
  marker, and the engine skips marked users on re-runs.

ERROR CONTRACT:
  ReadBalance returns an error wrapping ErrRecordNotFound when no
  record exists; TenantDefaults wraps ErrTenantNotFound. Write
  failures surface as-is, wrapped with context.
*/
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/praxishub/leave-engine/calendar"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRecordNotFound is returned when a balance record does not
	// exist for the requested (tenant, user, year).
	ErrRecordNotFound = errors.New("balance record not found")

	// ErrTenantNotFound is returned when a tenant has no defaults
	// configured (typically: entitlement configuration missing).
	ErrTenantNotFound = errors.New("tenant defaults not found")
)

// NotFoundError identifies the missing record.
type NotFoundError struct {
	TenantID string
	UserID   string
	Year     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("balance record not found: tenant=%s user=%s year=%d",
		e.TenantID, e.UserID, e.Year)
}

func (e *NotFoundError) Unwrap() error { return ErrRecordNotFound }

// IsNotFound reports whether the error indicates a missing record or
// missing tenant configuration.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrTenantNotFound)
}

// =============================================================================
// RECORDS
// =============================================================================

// BalanceRecord holds the raw stored balance for one (tenant, user,
// year). All day amounts are decimal days; TOILHours is hours.
type BalanceRecord struct {
	ID       string
	TenantID string
	UserID   string
	Year     int

	Entitlement decimal.Decimal
	Used        decimal.Decimal
	CarriedOver decimal.Decimal
	TOILHours   decimal.Decimal
	SickUsed    decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TOILAccrual is one week's earned TOIL, with its expiry.
type TOILAccrual struct {
	ID         string
	TenantID   string
	UserID     string
	WeekEnding calendar.Date
	Hours      decimal.Decimal
	AccruedAt  time.Time
	ExpiresOn  calendar.Date
	Expired    bool
}

// TenantDefaults is per-tenant policy configuration applied when a
// record is created lazily.
type TenantDefaults struct {
	TenantID          string
	AnnualEntitlement decimal.Decimal
}

// TenantUser identifies one user of one tenant.
type TenantUser struct {
	TenantID string
	UserID   string
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

// BalanceStore is the storage collaborator for balances and the
// carryover run.
type BalanceStore interface {
	// ReadBalance returns the record for (tenant, user, year), or an
	// error wrapping ErrRecordNotFound.
	ReadBalance(ctx context.Context, tenantID, userID string, year int) (*BalanceRecord, error)

	// UpsertBalance inserts or replaces the record identified by the
	// record's (tenant, user, year).
	UpsertBalance(ctx context.Context, rec *BalanceRecord) error

	// ListTenantUserPairs enumerates every (tenant, user) pair known
	// to the platform, for the global carryover run.
	ListTenantUserPairs(ctx context.Context) ([]TenantUser, error)

	// TenantDefaults returns per-tenant policy defaults, or an error
	// wrapping ErrTenantNotFound.
	TenantDefaults(ctx context.Context, tenantID string) (*TenantDefaults, error)

	// CarryoverApplied reports whether carryover out of fromYear has
	// already been applied for this user.
	CarryoverApplied(ctx context.Context, tenantID, userID string, fromYear int) (bool, error)

	// MarkCarryoverApplied records that carryover out of fromYear has
	// been applied for this user.
	MarkCarryoverApplied(ctx context.Context, tenantID, userID string, fromYear int) error
}

// TOILStore persists TOIL accrual history.
type TOILStore interface {
	// AppendTOILAccrual records one week's earned TOIL.
	AppendTOILAccrual(ctx context.Context, acc *TOILAccrual) error

	// ListTOILAccruals returns a user's accrual history, newest first.
	ListTOILAccruals(ctx context.Context, tenantID, userID string, limit, offset int) ([]TOILAccrual, error)

	// ListExpiredTOILAccruals returns unexpired accruals whose expiry
	// date is on or before asOf, across all tenants.
	ListExpiredTOILAccruals(ctx context.Context, asOf calendar.Date) ([]TOILAccrual, error)

	// MarkTOILExpired flags the given accruals as expired.
	MarkTOILExpired(ctx context.Context, ids []string) error
}

// Store is the full persistence surface the service needs.
type Store interface {
	BalanceStore
	TOILStore
}
