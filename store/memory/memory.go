// Package memory provides an in-memory Store for tests and local use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/praxishub/leave-engine/calendar"
	"github.com/praxishub/leave-engine/store"
)

// =============================================================================
// MEMORY STORE - Mutex-guarded maps
// =============================================================================

type balanceKey struct {
	TenantID string
	UserID   string
	Year     int
}

type markerKey struct {
	TenantID string
	UserID   string
	FromYear int
}

// Store implements store.Store with in-process maps. Failure hooks
// let tests inject per-call errors to exercise isolation paths.
type Store struct {
	mu       sync.RWMutex
	balances map[balanceKey]store.BalanceRecord
	markers  map[markerKey]bool
	defaults map[string]store.TenantDefaults
	accruals []store.TOILAccrual
	pairs    []store.TenantUser

	// Failure hooks. When set, the matching operation consults the
	// hook before touching state.
	ReadErr   func(tenantID, userID string, year int) error
	UpsertErr func(rec *store.BalanceRecord) error
}

func New() *Store {
	return &Store{
		balances: make(map[balanceKey]store.BalanceRecord),
		markers:  make(map[markerKey]bool),
		defaults: make(map[string]store.TenantDefaults),
	}
}

// =============================================================================
// SEEDING - Test fixture helpers
// =============================================================================

// SeedTenant registers a tenant's defaults.
func (s *Store) SeedTenant(d store.TenantDefaults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[d.TenantID] = d
}

// SeedUser registers a (tenant, user) pair for enumeration.
func (s *Store) SeedUser(tenantID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = append(s.pairs, store.TenantUser{TenantID: tenantID, UserID: userID})
}

// SeedBalance stores a record directly, bypassing hooks.
func (s *Store) SeedBalance(rec store.BalanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.balances[balanceKey{rec.TenantID, rec.UserID, rec.Year}] = rec
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func (s *Store) ReadBalance(_ context.Context, tenantID, userID string, year int) (*store.BalanceRecord, error) {
	if s.ReadErr != nil {
		if err := s.ReadErr(tenantID, userID, year); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.balances[balanceKey{tenantID, userID, year}]
	if !ok {
		return nil, &store.NotFoundError{TenantID: tenantID, UserID: userID, Year: year}
	}
	out := rec
	return &out, nil
}

func (s *Store) UpsertBalance(_ context.Context, rec *store.BalanceRecord) error {
	if s.UpsertErr != nil {
		if err := s.UpsertErr(rec); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := balanceKey{rec.TenantID, rec.UserID, rec.Year}
	now := time.Now().UTC()
	stored := *rec
	if existing, ok := s.balances[k]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.balances[k] = stored
	*rec = stored
	return nil
}

func (s *Store) ListTenantUserPairs(_ context.Context) ([]store.TenantUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.TenantUser, len(s.pairs))
	copy(out, s.pairs)
	return out, nil
}

func (s *Store) TenantDefaults(_ context.Context, tenantID string) (*store.TenantDefaults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.defaults[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, store.ErrTenantNotFound)
	}
	out := d
	return &out, nil
}

func (s *Store) CarryoverApplied(_ context.Context, tenantID, userID string, fromYear int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markers[markerKey{tenantID, userID, fromYear}], nil
}

func (s *Store) MarkCarryoverApplied(_ context.Context, tenantID, userID string, fromYear int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[markerKey{tenantID, userID, fromYear}] = true
	return nil
}

// =============================================================================
// TOIL STORE
// =============================================================================

func (s *Store) AppendTOILAccrual(_ context.Context, acc *store.TOILAccrual) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.AccruedAt.IsZero() {
		acc.AccruedAt = time.Now().UTC()
	}
	s.accruals = append(s.accruals, *acc)
	return nil
}

func (s *Store) ListTOILAccruals(_ context.Context, tenantID, userID string, limit, offset int) ([]store.TOILAccrual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.TOILAccrual
	for _, acc := range s.accruals {
		if acc.TenantID == tenantID && acc.UserID == userID {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccruedAt.After(out[j].AccruedAt) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListExpiredTOILAccruals(_ context.Context, asOf calendar.Date) ([]store.TOILAccrual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.TOILAccrual
	for _, acc := range s.accruals {
		if !acc.Expired && !acc.ExpiresOn.After(asOf) {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (s *Store) MarkTOILExpired(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	for i := range s.accruals {
		if _, ok := idSet[s.accruals[i].ID]; ok {
			s.accruals[i].Expired = true
		}
	}
	return nil
}
