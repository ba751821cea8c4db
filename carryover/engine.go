/*
Package carryover runs the year-boundary batch jobs: annual leave
carryover and the TOIL expiry sweep.

PURPOSE:
  Once a year, unused leave from year N becomes the opening carried-in
  balance of year N+1, capped by organizational policy (default 5
  days). The run covers every (tenant, user) pair the platform knows
  about.

FAILURE ISOLATION:
  One user's failure - missing source record, missing tenant
  entitlement configuration, a store write error - never aborts the
  run. The error is attributed to that user in the RunSummary and
  processing continues. Only a failure to enumerate the pairs at all
  aborts.

RE-RUN SAFETY:
  The engine persists a per (tenant, user, fromYear) applied marker.
  A re-run finds the marker and skips the user: re-applying after the
  destination year has been touched would overwrite carried-in days,
  so idempotency is enforced here rather than assumed of callers.

CONCURRENCY:
  Per-user units are independent read-modify-write cycles on one
  user's record; no cross-user invariant exists. The engine fans out
  over a bounded errgroup and collects results under a mutex. Worker
  errors are converted to summary failures, so the group itself never
  cancels siblings.

USAGE:
  eng := carryover.NewEngine(st, carryover.Options{Logger: logger})
  summary, err := eng.Run(ctx, 2025)
  if err != nil { ... }           // enumeration failed, nothing ran
  if summary.UsersFailed > 0 { os.Exit(1) }  // scheduler alerts

SEE ALSO:
  - balance/balance.go: The shared remaining arithmetic
  - store/store.go: Marker and upsert contract
*/
package carryover

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/praxishub/leave-engine/balance"
	"github.com/praxishub/leave-engine/store"
)

// DefaultCap is the organizational default for days carried into the
// next year.
var DefaultCap = decimal.NewFromInt(5)

// DefaultWorkers bounds the carryover fan-out.
const DefaultWorkers = 4

// =============================================================================
// ENGINE
// =============================================================================

// Options configure an Engine. Zero values fall back to defaults.
type Options struct {
	// Cap is the maximum days carried into the next year. Nil falls
	// back to DefaultCap; an explicit zero is a valid no-carryover
	// policy, which is why this is a pointer and not a bare decimal.
	Cap *decimal.Decimal

	// Workers bounds concurrent per-user units.
	Workers int

	Logger *zap.Logger
}

// Engine applies annual carryover across all tenants.
type Engine struct {
	store   store.Store
	cap     decimal.Decimal
	workers int
	log     *zap.Logger
}

// NewEngine builds an engine over the given store.
func NewEngine(st store.Store, opts Options) *Engine {
	cap := DefaultCap
	if opts.Cap != nil {
		cap = *opts.Cap
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: st, cap: cap, workers: workers, log: log}
}

// =============================================================================
// RESULTS
// =============================================================================

// Result is the audit record for one applied carryover.
type Result struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
	FromYear int    `json:"fromYear"`

	// Unused is the source year's remaining days; Amount is the capped
	// portion of it that was carried; ToBalance is the destination
	// year's remaining after the carry landed.
	Unused    decimal.Decimal `json:"unused"`
	Amount    decimal.Decimal `json:"amount"`
	ToBalance decimal.Decimal `json:"toBalance"`
}

// Failure attributes one user's error.
type Failure struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
	Error    string `json:"error"`
}

// RunSummary aggregates one global carryover run.
type RunSummary struct {
	FromYear         int       `json:"fromYear"`
	TenantsProcessed int       `json:"tenantsProcessed"`
	UsersProcessed   int       `json:"usersProcessed"`
	UsersSucceeded   int       `json:"usersSucceeded"`
	UsersFailed      int       `json:"usersFailed"`
	UsersSkipped     int       `json:"usersSkipped"`
	Failures         []Failure `json:"failures,omitempty"`
	Results          []Result  `json:"results,omitempty"`
}

// =============================================================================
// GLOBAL RUN
// =============================================================================

// Run applies carryover out of fromYear for every known (tenant,
// user) pair. It returns an error only when the pairs cannot be
// enumerated; per-user errors land in the summary.
func (e *Engine) Run(ctx context.Context, fromYear int) (*RunSummary, error) {
	pairs, err := e.store.ListTenantUserPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate tenant users: %w", err)
	}

	summary := &RunSummary{FromYear: fromYear}
	tenants := make(map[string]struct{})
	for _, p := range pairs {
		tenants[p.TenantID] = struct{}{}
	}
	summary.TenantsProcessed = len(tenants)
	summary.UsersProcessed = len(pairs)

	e.log.Info("carryover run starting",
		zap.Int("fromYear", fromYear),
		zap.Int("tenants", summary.TenantsProcessed),
		zap.Int("users", summary.UsersProcessed),
		zap.String("cap", e.cap.String()),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			res, err := e.applyOne(gctx, pair.TenantID, pair.UserID, fromYear)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, errAlreadyApplied):
				summary.UsersSkipped++
			case err != nil:
				summary.UsersFailed++
				summary.Failures = append(summary.Failures, Failure{
					TenantID: pair.TenantID,
					UserID:   pair.UserID,
					Error:    err.Error(),
				})
				e.log.Warn("carryover failed for user",
					zap.String("tenant", pair.TenantID),
					zap.String("user", pair.UserID),
					zap.Error(err),
				)
			default:
				summary.UsersSucceeded++
				summary.Results = append(summary.Results, *res)
			}
			// Per-user errors are absorbed into the summary; a
			// non-nil return here would cancel sibling units.
			return nil
		})
	}
	g.Wait()

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

	e.log.Info("carryover run finished",
		zap.Int("fromYear", fromYear),
		zap.Int("succeeded", summary.UsersSucceeded),
		zap.Int("failed", summary.UsersFailed),
		zap.Int("skipped", summary.UsersSkipped),
	)
	return summary, nil
}

// errAlreadyApplied marks a skipped unit internally; it never leaves
// the package.
var errAlreadyApplied = errors.New("carryover already applied")

// ApplyUser applies carryover out of fromYear for a single user (the
// admin "run carryover for this user" path). Unlike Run, errors are
// returned directly.
func (e *Engine) ApplyUser(ctx context.Context, tenantID, userID string, fromYear int) (*Result, error) {
	res, err := e.applyOne(ctx, tenantID, userID, fromYear)
	if errors.Is(err, errAlreadyApplied) {
		return nil, ErrAlreadyApplied
	}
	return res, err
}

// ErrAlreadyApplied is returned by ApplyUser when the re-run guard
// finds an existing marker.
var ErrAlreadyApplied = errors.New("carryover already applied for this user and year")

// applyOne is one read-modify-write unit: year N in, year N+1 out.
func (e *Engine) applyOne(ctx context.Context, tenantID, userID string, fromYear int) (*Result, error) {
	applied, err := e.store.CarryoverApplied(ctx, tenantID, userID, fromYear)
	if err != nil {
		return nil, fmt.Errorf("check carryover marker: %w", err)
	}
	if applied {
		return nil, errAlreadyApplied
	}

	source, err := e.store.ReadBalance(ctx, tenantID, userID, fromYear)
	if err != nil {
		return nil, fmt.Errorf("read source balance: %w", err)
	}

	unused := balance.Remaining(source.Entitlement, source.CarriedOver, source.Used)
	amount := unused
	if amount.GreaterThan(e.cap) {
		amount = e.cap
	}

	dest, err := e.store.ReadBalance(ctx, tenantID, userID, fromYear+1)
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		defaults, derr := e.store.TenantDefaults(ctx, tenantID)
		if derr != nil {
			return nil, fmt.Errorf("resolve tenant defaults: %w", derr)
		}
		dest = &store.BalanceRecord{
			TenantID:    tenantID,
			UserID:      userID,
			Year:        fromYear + 1,
			Entitlement: defaults.AnnualEntitlement,
			Used:        decimal.Zero,
			CarriedOver: decimal.Zero,
			TOILHours:   decimal.Zero,
			SickUsed:    decimal.Zero,
		}
	case err != nil:
		return nil, fmt.Errorf("read destination balance: %w", err)
	}

	dest.CarriedOver = amount
	if err := e.store.UpsertBalance(ctx, dest); err != nil {
		return nil, fmt.Errorf("write destination balance: %w", err)
	}
	if err := e.store.MarkCarryoverApplied(ctx, tenantID, userID, fromYear); err != nil {
		return nil, fmt.Errorf("mark carryover applied: %w", err)
	}

	return &Result{
		TenantID:  tenantID,
		UserID:    userID,
		FromYear:  fromYear,
		Unused:    unused,
		Amount:    amount,
		ToBalance: balance.Remaining(dest.Entitlement, dest.CarriedOver, dest.Used),
	}, nil
}
