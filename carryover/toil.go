/*
toil.go - TOIL expiry sweep

PURPOSE:
  TOIL accruals stop being claimable six months after the week they
  were earned in. This sweep marks overdue accruals expired and
  deducts the expired hours from each user's TOIL balance, floored at
  zero. Runs on the same failure-isolation contract as the annual
  carryover: one user's bad record never stops the sweep.
*/
package carryover

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/praxishub/leave-engine/calendar"
)

// TOILExpiryResult reports one user's expired hours.
type TOILExpiryResult struct {
	TenantID     string          `json:"tenantId"`
	UserID       string          `json:"userId"`
	HoursExpired decimal.Decimal `json:"hoursExpired"`
}

// TOILExpirySummary aggregates one sweep.
type TOILExpirySummary struct {
	AsOf           string             `json:"asOf"`
	AccrualsMarked int                `json:"accrualsMarked"`
	UsersAffected  int                `json:"usersAffected"`
	UsersFailed    int                `json:"usersFailed"`
	Results        []TOILExpiryResult `json:"results,omitempty"`
	Failures       []Failure          `json:"failures,omitempty"`
}

// ExpireTOIL marks accruals whose expiry date is on or before asOf
// and deducts the hours from each affected user's balance for asOf's
// year. It returns an error only when the overdue accruals cannot be
// listed at all.
func (e *Engine) ExpireTOIL(ctx context.Context, asOf calendar.Date) (*TOILExpirySummary, error) {
	overdue, err := e.store.ListExpiredTOILAccruals(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("list overdue toil: %w", err)
	}

	summary := &TOILExpirySummary{AsOf: asOf.ISO()}
	if len(overdue) == 0 {
		return summary, nil
	}

	// Total the hours per user before touching balances, so one
	// balance update covers all of a user's overdue accruals.
	type userKey struct{ tenantID, userID string }
	perUser := make(map[userKey]decimal.Decimal)
	ids := make([]string, 0, len(overdue))
	for _, acc := range overdue {
		k := userKey{acc.TenantID, acc.UserID}
		perUser[k] = perUser[k].Add(acc.Hours)
		ids = append(ids, acc.ID)
	}

	if err := e.store.MarkTOILExpired(ctx, ids); err != nil {
		return nil, fmt.Errorf("mark toil expired: %w", err)
	}
	summary.AccrualsMarked = len(ids)

	year := asOf.Year()
	for k, hours := range perUser {
		if err := e.deductTOIL(ctx, k.tenantID, k.userID, year, hours); err != nil {
			summary.UsersFailed++
			summary.Failures = append(summary.Failures, Failure{
				TenantID: k.tenantID,
				UserID:   k.userID,
				Error:    err.Error(),
			})
			e.log.Warn("toil deduction failed for user",
				zap.String("tenant", k.tenantID),
				zap.String("user", k.userID),
				zap.Error(err),
			)
			continue
		}
		summary.UsersAffected++
		summary.Results = append(summary.Results, TOILExpiryResult{
			TenantID:     k.tenantID,
			UserID:       k.userID,
			HoursExpired: hours,
		})
	}

	sort.Slice(summary.Failures, func(i, j int) bool {
		a, b := summary.Failures[i], summary.Failures[j]
		if a.TenantID != b.TenantID {
			return a.TenantID < b.TenantID
		}
		return a.UserID < b.UserID
	})
	sort.Slice(summary.Results, func(i, j int) bool {
		a, b := summary.Results[i], summary.Results[j]
		if a.TenantID != b.TenantID {
			return a.TenantID < b.TenantID
		}
		return a.UserID < b.UserID
	})

	e.log.Info("toil expiry sweep finished",
		zap.String("asOf", summary.AsOf),
		zap.Int("accrualsMarked", summary.AccrualsMarked),
		zap.Int("usersAffected", summary.UsersAffected),
		zap.Int("usersFailed", summary.UsersFailed),
	)
	return summary, nil
}

func (e *Engine) deductTOIL(ctx context.Context, tenantID, userID string, year int, hours decimal.Decimal) error {
	rec, err := e.store.ReadBalance(ctx, tenantID, userID, year)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	remaining := rec.TOILHours.Sub(hours)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	rec.TOILHours = remaining

	if err := e.store.UpsertBalance(ctx, rec); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}
