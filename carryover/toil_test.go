package carryover_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxishub/leave-engine/calendar"
	"github.com/praxishub/leave-engine/carryover"
	"github.com/praxishub/leave-engine/store"
	"github.com/praxishub/leave-engine/store/memory"
)

func seedAccrual(t *testing.T, st *memory.Store, userID, weekEnding string, hours float64) {
	t.Helper()
	we := calendar.MustDate(weekEnding)
	err := st.AppendTOILAccrual(context.Background(), &store.TOILAccrual{
		TenantID:   "acme",
		UserID:     userID,
		WeekEnding: we,
		Hours:      days(hours),
		ExpiresOn:  we.AddMonths(6),
	})
	require.NoError(t, err)
}

func TestExpireTOIL_DeductsExpiredHours(t *testing.T) {
	// GIVEN: 10 TOIL hours on the balance, 6 of them from an accrual
	//        that expired in September
	// THEN: the accrual is marked and the balance drops to 4

	st := newStore()
	st.SeedUser("acme", "u1")
	st.SeedBalance(store.BalanceRecord{
		TenantID: "acme", UserID: "u1", Year: 2025,
		Entitlement: days(25), TOILHours: days(10),
	})
	seedAccrual(t, st, "u1", "2025-03-14", 6) // expires 2025-09-14
	seedAccrual(t, st, "u1", "2025-08-01", 4) // expires 2026-02-01

	eng := carryover.NewEngine(st, carryover.Options{})
	summary, err := eng.ExpireTOIL(context.Background(), calendar.MustDate("2025-10-01"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.AccrualsMarked)
	assert.Equal(t, 1, summary.UsersAffected)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].HoursExpired.Equal(days(6)))

	rec, err := st.ReadBalance(context.Background(), "acme", "u1", 2025)
	require.NoError(t, err)
	assert.True(t, rec.TOILHours.Equal(days(4)), "toil = %s", rec.TOILHours)

	// Marked accruals do not expire twice.
	again, err := eng.ExpireTOIL(context.Background(), calendar.MustDate("2025-11-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, again.AccrualsMarked)
}

func TestExpireTOIL_FloorsAtZero(t *testing.T) {
	// Balance already spent below the expiring hours: deduction
	// floors at zero rather than going negative.

	st := newStore()
	st.SeedUser("acme", "u1")
	st.SeedBalance(store.BalanceRecord{
		TenantID: "acme", UserID: "u1", Year: 2025,
		Entitlement: days(25), TOILHours: days(2),
	})
	seedAccrual(t, st, "u1", "2025-01-10", 7.5)

	eng := carryover.NewEngine(st, carryover.Options{})
	_, err := eng.ExpireTOIL(context.Background(), calendar.MustDate("2025-08-01"))
	require.NoError(t, err)

	rec, err := st.ReadBalance(context.Background(), "acme", "u1", 2025)
	require.NoError(t, err)
	assert.True(t, rec.TOILHours.IsZero())
}

func TestExpireTOIL_GroupsPerUser(t *testing.T) {
	// Multiple overdue accruals for one user produce a single
	// deduction covering their total.

	st := newStore()
	st.SeedUser("acme", "u1")
	st.SeedBalance(store.BalanceRecord{
		TenantID: "acme", UserID: "u1", Year: 2025,
		Entitlement: days(25), TOILHours: days(12),
	})
	seedAccrual(t, st, "u1", "2025-01-10", 3)
	seedAccrual(t, st, "u1", "2025-02-14", 4.5)

	eng := carryover.NewEngine(st, carryover.Options{})
	summary, err := eng.ExpireTOIL(context.Background(), calendar.MustDate("2025-09-01"))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.AccrualsMarked)
	assert.Equal(t, 1, summary.UsersAffected)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].HoursExpired.Equal(days(7.5)))

	rec, err := st.ReadBalance(context.Background(), "acme", "u1", 2025)
	require.NoError(t, err)
	assert.True(t, rec.TOILHours.Equal(days(4.5)))
}

func TestExpireTOIL_MissingBalanceIsPerUserFailure(t *testing.T) {
	st := newStore()
	st.SeedUser("acme", "u1")
	st.SeedUser("acme", "u2")
	st.SeedBalance(store.BalanceRecord{
		TenantID: "acme", UserID: "u2", Year: 2025,
		Entitlement: days(25), TOILHours: days(5),
	})
	seedAccrual(t, st, "u1", "2025-01-10", 3) // u1 has no balance record
	seedAccrual(t, st, "u2", "2025-01-10", 2)

	eng := carryover.NewEngine(st, carryover.Options{})
	summary, err := eng.ExpireTOIL(context.Background(), calendar.MustDate("2025-09-01"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.UsersAffected)
	assert.Equal(t, 1, summary.UsersFailed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "u1", summary.Failures[0].UserID)

	rec, err := st.ReadBalance(context.Background(), "acme", "u2", 2025)
	require.NoError(t, err)
	assert.True(t, rec.TOILHours.Equal(days(3)))
}

func TestExpireTOIL_NothingOverdue(t *testing.T) {
	st := newStore()
	st.SeedUser("acme", "u1")
	seedAccrual(t, st, "u1", "2025-08-01", 4)

	eng := carryover.NewEngine(st, carryover.Options{})
	summary, err := eng.ExpireTOIL(context.Background(), calendar.MustDate("2025-09-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.AccrualsMarked)
	assert.Equal(t, 0, summary.UsersAffected)
}
