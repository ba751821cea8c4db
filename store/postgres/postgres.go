/*
Package postgres provides the PostgreSQL-backed store.Store used in
production.

Schema matches store/sqlite in Postgres dialect: NUMERIC columns for
day/hour amounts (pgx scans them into decimal strings losslessly),
ON CONFLICT upserts, and the same carryover-marker re-run guard.

Connections come from a pgxpool with conservative limits; per-user
carryover units each perform one read and one write, so pool
contention stays low even with parallel workers.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/praxishub/leave-engine/calendar"
	"github.com/praxishub/leave-engine/store"
)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against the given DSN and ensures the schema.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS leave_balances (
		id UUID PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		year INT NOT NULL,
		entitlement NUMERIC(8,3) NOT NULL,
		used NUMERIC(8,3) NOT NULL,
		carried_over NUMERIC(8,3) NOT NULL,
		toil_hours NUMERIC(8,3) NOT NULL,
		sick_used NUMERIC(8,3) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(tenant_id, user_id, year)
	);

	CREATE INDEX IF NOT EXISTS idx_balances_tenant_year
		ON leave_balances(tenant_id, year);

	CREATE TABLE IF NOT EXISTS carryover_markers (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		from_year INT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (tenant_id, user_id, from_year)
	);

	CREATE TABLE IF NOT EXISTS toil_accruals (
		id UUID PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		week_ending DATE NOT NULL,
		hours NUMERIC(8,3) NOT NULL,
		accrued_at TIMESTAMPTZ NOT NULL,
		expires_on DATE NOT NULL,
		expired BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_toil_user
		ON toil_accruals(tenant_id, user_id, accrued_at);
	CREATE INDEX IF NOT EXISTS idx_toil_expiry
		ON toil_accruals(expired, expires_on);

	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		annual_entitlement NUMERIC(8,3) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tenant_users (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (tenant_id, user_id)
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func (s *Store) ReadBalance(ctx context.Context, tenantID, userID string, year int) (*store.BalanceRecord, error) {
	var rec store.BalanceRecord
	var ent, used, carried, toil, sick string

	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, year,
		       entitlement::text, used::text, carried_over::text,
		       toil_hours::text, sick_used::text,
		       created_at, updated_at
		FROM leave_balances
		WHERE tenant_id = $1 AND user_id = $2 AND year = $3`,
		tenantID, userID, year).Scan(
		&rec.ID, &rec.TenantID, &rec.UserID, &rec.Year,
		&ent, &used, &carried, &toil, &sick,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &store.NotFoundError{TenantID: tenantID, UserID: userID, Year: year}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	if err := parseAmounts(map[*decimal.Decimal]string{
		&rec.Entitlement: ent,
		&rec.Used:        used,
		&rec.CarriedOver: carried,
		&rec.TOILHours:   toil,
		&rec.SickUsed:    sick,
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) UpsertBalance(ctx context.Context, rec *store.BalanceRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO leave_balances
			(id, tenant_id, user_id, year, entitlement, used, carried_over,
			 toil_hours, sick_used, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (tenant_id, user_id, year) DO UPDATE SET
			entitlement = EXCLUDED.entitlement,
			used = EXCLUDED.used,
			carried_over = EXCLUDED.carried_over,
			toil_hours = EXCLUDED.toil_hours,
			sick_used = EXCLUDED.sick_used,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.TenantID, rec.UserID, rec.Year,
		rec.Entitlement.String(), rec.Used.String(), rec.CarriedOver.String(),
		rec.TOILHours.String(), rec.SickUsed.String(),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

func (s *Store) ListTenantUserPairs(ctx context.Context) ([]store.TenantUser, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, user_id FROM tenant_users ORDER BY tenant_id, user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant users: %w", err)
	}
	defer rows.Close()

	var pairs []store.TenantUser
	for rows.Next() {
		var tu store.TenantUser
		if err := rows.Scan(&tu.TenantID, &tu.UserID); err != nil {
			return nil, err
		}
		pairs = append(pairs, tu)
	}
	return pairs, rows.Err()
}

func (s *Store) TenantDefaults(ctx context.Context, tenantID string) (*store.TenantDefaults, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT annual_entitlement::text FROM tenants WHERE id = $1`, tenantID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, store.ErrTenantNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant defaults: %w", err)
	}
	ent, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: bad entitlement %q: %w", tenantID, raw, err)
	}
	return &store.TenantDefaults{TenantID: tenantID, AnnualEntitlement: ent}, nil
}

func (s *Store) CarryoverApplied(ctx context.Context, tenantID, userID string, fromYear int) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM carryover_markers
		WHERE tenant_id = $1 AND user_id = $2 AND from_year = $3`,
		tenantID, userID, fromYear).Scan(&count)
	return count > 0, err
}

func (s *Store) MarkCarryoverApplied(ctx context.Context, tenantID, userID string, fromYear int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO carryover_markers (tenant_id, user_id, from_year, applied_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (tenant_id, user_id, from_year) DO NOTHING`,
		tenantID, userID, fromYear, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark carryover applied: %w", err)
	}
	return nil
}

// =============================================================================
// TOIL STORE
// =============================================================================

func (s *Store) AppendTOILAccrual(ctx context.Context, acc *store.TOILAccrual) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.AccruedAt.IsZero() {
		acc.AccruedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO toil_accruals
			(id, tenant_id, user_id, week_ending, hours, accrued_at, expires_on, expired)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		acc.ID, acc.TenantID, acc.UserID, acc.WeekEnding.ISO(), acc.Hours.String(),
		acc.AccruedAt, acc.ExpiresOn.ISO(), acc.Expired)
	if err != nil {
		return fmt.Errorf("failed to append toil accrual: %w", err)
	}
	return nil
}

func (s *Store) ListTOILAccruals(ctx context.Context, tenantID, userID string, limit, offset int) ([]store.TOILAccrual, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, week_ending::text, hours::text,
		       accrued_at, expires_on::text, expired
		FROM toil_accruals
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY accrued_at DESC
		LIMIT $3 OFFSET $4`,
		tenantID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list toil accruals: %w", err)
	}
	defer rows.Close()
	return scanAccruals(rows)
}

func (s *Store) ListExpiredTOILAccruals(ctx context.Context, asOf calendar.Date) ([]store.TOILAccrual, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, week_ending::text, hours::text,
		       accrued_at, expires_on::text, expired
		FROM toil_accruals
		WHERE NOT expired AND expires_on <= $1
		ORDER BY tenant_id, user_id, expires_on`,
		asOf.ISO())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired toil: %w", err)
	}
	defer rows.Close()
	return scanAccruals(rows)
}

func (s *Store) MarkTOILExpired(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE toil_accruals SET expired = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to mark toil expired: %w", err)
	}
	return nil
}

// =============================================================================
// PLATFORM SEEDING - Tenant/user registry
// =============================================================================

// UpsertTenant registers a tenant and its defaults.
func (s *Store) UpsertTenant(ctx context.Context, d store.TenantDefaults) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (id, annual_entitlement) VALUES ($1,$2)
		ON CONFLICT (id) DO UPDATE SET annual_entitlement = EXCLUDED.annual_entitlement`,
		d.TenantID, d.AnnualEntitlement.String())
	return err
}

// RegisterUser adds a (tenant, user) pair to the enumeration set.
func (s *Store) RegisterUser(ctx context.Context, tenantID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenant_users (tenant_id, user_id) VALUES ($1,$2)
		ON CONFLICT (tenant_id, user_id) DO NOTHING`,
		tenantID, userID)
	return err
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func scanAccruals(rows pgx.Rows) ([]store.TOILAccrual, error) {
	var out []store.TOILAccrual
	for rows.Next() {
		var acc store.TOILAccrual
		var weekEnding, hours, expiresOn string
		if err := rows.Scan(&acc.ID, &acc.TenantID, &acc.UserID,
			&weekEnding, &hours, &acc.AccruedAt, &expiresOn, &acc.Expired); err != nil {
			return nil, err
		}
		var err error
		if acc.WeekEnding, err = calendar.ParseDate(weekEnding); err != nil {
			return nil, err
		}
		if acc.ExpiresOn, err = calendar.ParseDate(expiresOn); err != nil {
			return nil, err
		}
		if acc.Hours, err = decimal.NewFromString(hours); err != nil {
			return nil, fmt.Errorf("bad hours %q: %w", hours, err)
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func parseAmounts(fields map[*decimal.Decimal]string) error {
	for dst, raw := range fields {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("bad amount %q: %w", raw, err)
		}
		*dst = d
	}
	return nil
}
