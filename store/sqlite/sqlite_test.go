package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxishub/leave-engine/calendar"
	"github.com/praxishub/leave-engine/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// =============================================================================
// BALANCES
// =============================================================================

func TestBalance_UpsertAndRead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// GIVEN a balance written with fractional amounts
	rec := &store.BalanceRecord{
		TenantID:    "acme",
		UserID:      "u1",
		Year:        2025,
		Entitlement: decimal.NewFromInt(25),
		Used:        decimal.NewFromFloat(12.5),
		CarriedOver: decimal.NewFromFloat(3.5),
		TOILHours:   decimal.NewFromFloat(7.5),
		SickUsed:    decimal.NewFromInt(2),
	}
	require.NoError(t, st.UpsertBalance(ctx, rec))
	assert.NotEmpty(t, rec.ID, "upsert should assign an id")

	// WHEN it is read back
	got, err := st.ReadBalance(ctx, "acme", "u1", 2025)
	require.NoError(t, err)

	// THEN every decimal survives exactly
	assert.Equal(t, rec.ID, got.ID)
	assert.True(t, got.Used.Equal(decimal.NewFromFloat(12.5)), "used = %s", got.Used)
	assert.True(t, got.CarriedOver.Equal(decimal.NewFromFloat(3.5)))
	assert.True(t, got.TOILHours.Equal(decimal.NewFromFloat(7.5)))
	assert.True(t, got.SickUsed.Equal(decimal.NewFromInt(2)))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestBalance_UpsertUpdatesExistingRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := &store.BalanceRecord{
		TenantID:    "acme",
		UserID:      "u1",
		Year:        2025,
		Entitlement: decimal.NewFromInt(25),
	}
	require.NoError(t, st.UpsertBalance(ctx, rec))
	firstID := rec.ID

	// WHEN the same (tenant, user, year) is written again
	rec2 := &store.BalanceRecord{
		TenantID:    "acme",
		UserID:      "u1",
		Year:        2025,
		Entitlement: decimal.NewFromInt(25),
		Used:        decimal.NewFromInt(10),
	}
	require.NoError(t, st.UpsertBalance(ctx, rec2))

	// THEN there is still one row, keyed by the original id
	got, err := st.ReadBalance(ctx, "acme", "u1", 2025)
	require.NoError(t, err)
	assert.Equal(t, firstID, got.ID)
	assert.True(t, got.Used.Equal(decimal.NewFromInt(10)))
}

func TestBalance_NotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.ReadBalance(context.Background(), "acme", "ghost", 2025)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	var nf *store.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "ghost", nf.UserID)
	assert.Equal(t, 2025, nf.Year)
}

func TestBalance_YearsAreIndependent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, year := range []int{2024, 2025} {
		require.NoError(t, st.UpsertBalance(ctx, &store.BalanceRecord{
			TenantID:    "acme",
			UserID:      "u1",
			Year:        year,
			Entitlement: decimal.NewFromInt(int64(year - 2000)),
		}))
	}

	got24, err := st.ReadBalance(ctx, "acme", "u1", 2024)
	require.NoError(t, err)
	got25, err := st.ReadBalance(ctx, "acme", "u1", 2025)
	require.NoError(t, err)
	assert.True(t, got24.Entitlement.Equal(decimal.NewFromInt(24)))
	assert.True(t, got25.Entitlement.Equal(decimal.NewFromInt(25)))
	assert.NotEqual(t, got24.ID, got25.ID)
}

// =============================================================================
// TENANT REGISTRY
// =============================================================================

func TestTenantDefaults(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertTenant(ctx, store.TenantDefaults{
		TenantID:          "acme",
		AnnualEntitlement: decimal.NewFromInt(28),
	}))

	d, err := st.TenantDefaults(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, d.AnnualEntitlement.Equal(decimal.NewFromInt(28)))

	_, err = st.TenantDefaults(ctx, "unknown")
	assert.ErrorIs(t, err, store.ErrTenantNotFound)
}

func TestListTenantUserPairs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.RegisterUser(ctx, "beta", "u2"))
	require.NoError(t, st.RegisterUser(ctx, "acme", "u1"))
	require.NoError(t, st.RegisterUser(ctx, "acme", "u2"))
	// Registering the same pair twice is a no-op.
	require.NoError(t, st.RegisterUser(ctx, "acme", "u1"))

	pairs, err := st.ListTenantUserPairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.TenantUser{
		{TenantID: "acme", UserID: "u1"},
		{TenantID: "acme", UserID: "u2"},
		{TenantID: "beta", UserID: "u2"},
	}, pairs)
}

// =============================================================================
// CARRYOVER MARKERS
// =============================================================================

func TestCarryoverMarkers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	applied, err := st.CarryoverApplied(ctx, "acme", "u1", 2025)
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, st.MarkCarryoverApplied(ctx, "acme", "u1", 2025))
	// Marking twice must not fail: the batch job may retry after a crash.
	require.NoError(t, st.MarkCarryoverApplied(ctx, "acme", "u1", 2025))

	applied, err = st.CarryoverApplied(ctx, "acme", "u1", 2025)
	require.NoError(t, err)
	assert.True(t, applied)

	// The marker is scoped to the source year.
	applied, err = st.CarryoverApplied(ctx, "acme", "u1", 2026)
	require.NoError(t, err)
	assert.False(t, applied)
}

// =============================================================================
// TOIL ACCRUALS
// =============================================================================

func TestTOIL_AppendAndList(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	week1 := calendar.MustDate("2025-03-14")
	week2 := calendar.MustDate("2025-03-21")

	acc1 := &store.TOILAccrual{
		TenantID:   "acme",
		UserID:     "u1",
		WeekEnding: week1,
		Hours:      decimal.NewFromFloat(2.5),
		AccruedAt:  time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC),
		ExpiresOn:  calendar.MustDate("2025-09-14"),
	}
	require.NoError(t, st.AppendTOILAccrual(ctx, acc1))
	require.NoError(t, st.AppendTOILAccrual(ctx, &store.TOILAccrual{
		TenantID:   "acme",
		UserID:     "u1",
		WeekEnding: week2,
		Hours:      decimal.NewFromInt(4),
		AccruedAt:  time.Date(2025, 3, 21, 18, 0, 0, 0, time.UTC),
		ExpiresOn:  calendar.MustDate("2025-09-21"),
	}))

	// Most recent first.
	accs, err := st.ListTOILAccruals(ctx, "acme", "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, accs, 2)
	assert.True(t, accs[0].WeekEnding.Equal(week2))
	assert.True(t, accs[1].WeekEnding.Equal(week1))
	assert.True(t, accs[1].Hours.Equal(decimal.NewFromFloat(2.5)))
	assert.False(t, accs[0].Expired)

	// Pagination.
	page, err := st.ListTOILAccruals(ctx, "acme", "u1", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.True(t, page[0].WeekEnding.Equal(week1))
}

func TestTOIL_ExpirySweepQueries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	overdue := &store.TOILAccrual{
		TenantID:   "acme",
		UserID:     "u1",
		WeekEnding: calendar.MustDate("2025-01-10"),
		Hours:      decimal.NewFromInt(3),
		ExpiresOn:  calendar.MustDate("2025-07-10"),
	}
	current := &store.TOILAccrual{
		TenantID:   "acme",
		UserID:     "u1",
		WeekEnding: calendar.MustDate("2025-06-13"),
		Hours:      decimal.NewFromInt(5),
		ExpiresOn:  calendar.MustDate("2025-12-13"),
	}
	require.NoError(t, st.AppendTOILAccrual(ctx, overdue))
	require.NoError(t, st.AppendTOILAccrual(ctx, current))

	// GIVEN a cutoff between the two expiry dates
	asOf := calendar.MustDate("2025-08-01")

	expired, err := st.ListExpiredTOILAccruals(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, overdue.ID, expired[0].ID)

	// WHEN the sweep marks it
	require.NoError(t, st.MarkTOILExpired(ctx, []string{overdue.ID}))

	// THEN it no longer shows up as expirable
	expired, err = st.ListExpiredTOILAccruals(ctx, asOf)
	require.NoError(t, err)
	assert.Empty(t, expired)

	// but it is still listed in the user's history, flagged expired
	accs, err := st.ListTOILAccruals(ctx, "acme", "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, accs, 2)
	for _, acc := range accs {
		if acc.ID == overdue.ID {
			assert.True(t, acc.Expired)
		} else {
			assert.False(t, acc.Expired)
		}
	}
}

func TestTOIL_MarkExpiredEmptyList(t *testing.T) {
	st := newTestStore(t)
	assert.NoError(t, st.MarkTOILExpired(context.Background(), nil))
}
