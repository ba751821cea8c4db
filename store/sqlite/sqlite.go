/*
Package sqlite provides a SQLite-backed implementation of store.Store.

PURPOSE:
  The embedded deployment: local development, demos, and single-box
  installs. Production runs the same schema on PostgreSQL via
  store/postgres - only SQL dialect details differ.

KEY TABLES:
  leave_balances:    One row per (tenant, user, year)
  carryover_markers: Re-run guard for the annual carryover job
  toil_accruals:     TOIL earned per week, with expiry
  tenants:           Per-tenant defaults (annual entitlement)
  tenant_users:      Enumeration source for the global carryover run

DECIMAL STORAGE:
  Day and hour amounts are stored as TEXT holding the decimal's exact
  string form. SQLite REAL columns would reintroduce the float noise
  decimal.Decimal exists to avoid.

WAL MODE:
  Opened with WAL so the HTTP read path is not blocked by the batch
  job's writes.

USAGE:
  st, err := sqlite.New("./data/leave.db")
  if err != nil { ... }
  defer st.Close()

SEE ALSO:
  - store/store.go: Interface definitions and error contract
  - store/postgres: Production implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/praxishub/leave-engine/calendar"
	"github.com/praxishub/leave-engine/store"
)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// table-lock errors from concurrent carryover workers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS leave_balances (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		entitlement TEXT NOT NULL,
		used TEXT NOT NULL,
		carried_over TEXT NOT NULL,
		toil_hours TEXT NOT NULL,
		sick_used TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(tenant_id, user_id, year)
	);

	CREATE INDEX IF NOT EXISTS idx_balances_tenant_year
		ON leave_balances(tenant_id, year);

	-- Re-run guard: one row means carryover out of from_year has been
	-- applied for this user and must not be applied again.
	CREATE TABLE IF NOT EXISTS carryover_markers (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		from_year INTEGER NOT NULL,
		applied_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, user_id, from_year)
	);

	CREATE TABLE IF NOT EXISTS toil_accruals (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		week_ending TEXT NOT NULL,
		hours TEXT NOT NULL,
		accrued_at TEXT NOT NULL,
		expires_on TEXT NOT NULL,
		expired INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_toil_user
		ON toil_accruals(tenant_id, user_id, accrued_at);
	CREATE INDEX IF NOT EXISTS idx_toil_expiry
		ON toil_accruals(expired, expires_on);

	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		annual_entitlement TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tenant_users (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (tenant_id, user_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func (s *Store) ReadBalance(ctx context.Context, tenantID, userID string, year int) (*store.BalanceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, year, entitlement, used, carried_over,
		       toil_hours, sick_used, created_at, updated_at
		FROM leave_balances
		WHERE tenant_id = ? AND user_id = ? AND year = ?`,
		tenantID, userID, year)

	rec, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.NotFoundError{TenantID: tenantID, UserID: userID, Year: year}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	return rec, nil
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_balances
			(id, tenant_id, user_id, year, entitlement, used, carried_over,
			 toil_hours, sick_used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id, year) DO UPDATE SET
			entitlement = excluded.entitlement,
			used = excluded.used,
			carried_over = excluded.carried_over,
			toil_hours = excluded.toil_hours,
			sick_used = excluded.sick_used,
			updated_at = excluded.updated_at`,
		rec.ID, rec.TenantID, rec.UserID, rec.Year,
		rec.Entitlement.String(), rec.Used.String(), rec.CarriedOver.String(),
		rec.TOILHours.String(), rec.SickUsed.String(),
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

func (s *Store) ListTenantUserPairs(ctx context.Context) ([]store.TenantUser, error) {
	rows, err := s.db.QueryContext(ctx, `
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
	err := s.db.QueryRowContext(ctx,
		`SELECT annual_entitlement FROM tenants WHERE id = ?`, tenantID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
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
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM carryover_markers
		WHERE tenant_id = ? AND user_id = ? AND from_year = ?`,
		tenantID, userID, fromYear).Scan(&count)
	return count > 0, err
}

func (s *Store) MarkCarryoverApplied(ctx context.Context, tenantID, userID string, fromYear int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO carryover_markers (tenant_id, user_id, from_year, applied_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id, from_year) DO NOTHING`,
		tenantID, userID, fromYear, time.Now().UTC().Format(time.RFC3339))
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO toil_accruals
			(id, tenant_id, user_id, week_ending, hours, accrued_at, expires_on, expired)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.TenantID, acc.UserID, acc.WeekEnding.ISO(), acc.Hours.String(),
		acc.AccruedAt.Format(time.RFC3339), acc.ExpiresOn.ISO(), boolToInt(acc.Expired))
	if err != nil {
		return fmt.Errorf("failed to append toil accrual: %w", err)
	}
	return nil
}

func (s *Store) ListTOILAccruals(ctx context.Context, tenantID, userID string, limit, offset int) ([]store.TOILAccrual, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, week_ending, hours, accrued_at, expires_on, expired
		FROM toil_accruals
		WHERE tenant_id = ? AND user_id = ?
		ORDER BY accrued_at DESC
		LIMIT ? OFFSET ?`,
		tenantID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list toil accruals: %w", err)
	}
	defer rows.Close()
	return scanAccruals(rows)
}

func (s *Store) ListExpiredTOILAccruals(ctx context.Context, asOf calendar.Date) ([]store.TOILAccrual, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, week_ending, hours, accrued_at, expires_on, expired
		FROM toil_accruals
		WHERE expired = 0 AND expires_on <= ?
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE toil_accruals SET expired = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to mark toil expired: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// PLATFORM SEEDING - Tenant/user registry
// =============================================================================

// UpsertTenant registers a tenant and its defaults.
func (s *Store) UpsertTenant(ctx context.Context, d store.TenantDefaults) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, annual_entitlement) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET annual_entitlement = excluded.annual_entitlement`,
		d.TenantID, d.AnnualEntitlement.String())
	return err
}

// RegisterUser adds a (tenant, user) pair to the enumeration set.
func (s *Store) RegisterUser(ctx context.Context, tenantID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_users (tenant_id, user_id) VALUES (?, ?)
		ON CONFLICT(tenant_id, user_id) DO NOTHING`,
		tenantID, userID)
	return err
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (*store.BalanceRecord, error) {
	var rec store.BalanceRecord
	var ent, used, carried, toil, sick, createdAt, updatedAt string

	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.UserID, &rec.Year,
		&ent, &used, &carried, &toil, &sick, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if rec.Entitlement, err = decimal.NewFromString(ent); err != nil {
		return nil, fmt.Errorf("bad entitlement %q: %w", ent, err)
	}
	if rec.Used, err = decimal.NewFromString(used); err != nil {
		return nil, fmt.Errorf("bad used %q: %w", used, err)
	}
	if rec.CarriedOver, err = decimal.NewFromString(carried); err != nil {
		return nil, fmt.Errorf("bad carried_over %q: %w", carried, err)
	}
	if rec.TOILHours, err = decimal.NewFromString(toil); err != nil {
		return nil, fmt.Errorf("bad toil_hours %q: %w", toil, err)
	}
	if rec.SickUsed, err = decimal.NewFromString(sick); err != nil {
		return nil, fmt.Errorf("bad sick_used %q: %w", sick, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

func scanAccruals(rows *sql.Rows) ([]store.TOILAccrual, error) {
	var out []store.TOILAccrual
	for rows.Next() {
		var acc store.TOILAccrual
		var weekEnding, hours, accruedAt, expiresOn string
		var expired int
		if err := rows.Scan(&acc.ID, &acc.TenantID, &acc.UserID,
			&weekEnding, &hours, &accruedAt, &expiresOn, &expired); err != nil {
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
		acc.AccruedAt, _ = time.Parse(time.RFC3339, accruedAt)
		acc.Expired = expired != 0
		out = append(out, acc)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
