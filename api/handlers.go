/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes balances, the working-day calendar, TOIL, and the batch
  jobs over REST. Handles HTTP request/response and JSON
  serialization, and delegates to the domain packages.

ENDPOINTS:
  Balances:
    GET  /api/tenants/{tenantID}/users/{userID}/balance?year=
    POST /api/tenants/{tenantID}/users/{userID}/carryover

  TOIL:
    POST /api/tenants/{tenantID}/users/{userID}/toil/accruals
    GET  /api/tenants/{tenantID}/users/{userID}/toil/balance
    GET  /api/tenants/{tenantID}/users/{userID}/toil/accruals

  Calendar / leave validation:
    GET  /api/calendar/working-days?start=&end=
    POST /api/leave/validate

  Admin (batch jobs):
    POST /api/admin/carryover/run
    POST /api/admin/toil/expire

ERROR HANDLING:
  Errors return a JSON body with appropriate status:
  - 400: malformed input, invalid date range
  - 404: balance record / tenant not found
  - 409: carryover already applied
  - 422: no holiday table for the requested year (strict mode)
  - 500: store failures

SECURITY NOTE:
  Authentication and tenant scoping live in the platform gateway in
  front of this service; endpoints here trust their path parameters.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/praxishub/leave-engine/balance"
	"github.com/praxishub/leave-engine/calendar"
	"github.com/praxishub/leave-engine/carryover"
	"github.com/praxishub/leave-engine/store"
)

// ManualCarryoverMax bounds the admin override. Wider than the
// automatic cap on purpose: the override exists for edge cases the
// policy cap cannot express.
var ManualCarryoverMax = decimal.NewFromInt(25)

// Handler holds the HTTP surface's dependencies.
type Handler struct {
	Store    store.Store
	Calendar *calendar.Calendar
	Engine   *carryover.Engine

	// DefaultEntitlement shapes the zero-usage balance returned when
	// no record exists yet for a user-year.
	DefaultEntitlement decimal.Decimal

	Log *zap.Logger
}

// NewHandler wires a handler.
func NewHandler(st store.Store, cal *calendar.Calendar, eng *carryover.Engine, defaultEntitlement decimal.Decimal, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:              st,
		Calendar:           cal,
		Engine:             eng,
		DefaultEntitlement: defaultEntitlement,
		Log:                log,
	}
}

// =============================================================================
// BALANCES
// =============================================================================

// GetBalance returns the derived balance for a user-year. A missing
// record yields a zero-usage balance at the default entitlement,
// mirroring lazy record creation elsewhere in the platform.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	userID := chi.URLParam(r, "userID")
	year, err := yearParam(r, time.Now().Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := h.Store.ReadBalance(r.Context(), tenantID, userID, year)
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		rec = &store.BalanceRecord{
			TenantID:    tenantID,
			UserID:      userID,
			Year:        year,
			Entitlement: h.DefaultEntitlement,
		}
	case err != nil:
		h.serverError(w, "read balance", err)
		return
	}

	computed := balance.Compute(balance.Fields{
		Entitlement: rec.Entitlement,
		Used:        rec.Used,
		CarriedOver: rec.CarriedOver,
		TOILHours:   rec.TOILHours,
		SickUsed:    rec.SickUsed,
	})
	writeJSON(w, http.StatusOK, balanceDTO(rec, computed))
}

// SetCarryover is the admin override for carried-in days.
func (h *Handler) SetCarryover(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	userID := chi.URLParam(r, "userID")

	var req SetCarryoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	carried, err := parseAmount(req.CarriedOver, "carriedOver")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if carried.IsNegative() || carried.GreaterThan(ManualCarryoverMax) {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("carriedOver must be between 0 and %s days", ManualCarryoverMax))
		return
	}
	if req.Year < 2000 || req.Year > 2200 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("year %d out of range", req.Year))
		return
	}

	rec, err := h.Store.ReadBalance(r.Context(), tenantID, userID, req.Year)
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		defaults, derr := h.Store.TenantDefaults(r.Context(), tenantID)
		if derr != nil && !errors.Is(derr, store.ErrTenantNotFound) {
			h.serverError(w, "resolve tenant defaults", derr)
			return
		}
		entitlement := h.DefaultEntitlement
		if defaults != nil {
			entitlement = defaults.AnnualEntitlement
		}
		rec = &store.BalanceRecord{
			TenantID:    tenantID,
			UserID:      userID,
			Year:        req.Year,
			Entitlement: entitlement,
		}
	case err != nil:
		h.serverError(w, "read balance", err)
		return
	}

	rec.CarriedOver = carried
	if err := h.Store.UpsertBalance(r.Context(), rec); err != nil {
		h.serverError(w, "write balance", err)
		return
	}

	computed := balance.Compute(balance.Fields{
		Entitlement: rec.Entitlement,
		Used:        rec.Used,
		CarriedOver: rec.CarriedOver,
		TOILHours:   rec.TOILHours,
		SickUsed:    rec.SickUsed,
	})
	writeJSON(w, http.StatusOK, balanceDTO(rec, computed))
}

// =============================================================================
// CALENDAR / LEAVE VALIDATION
// =============================================================================

// WorkingDays answers the raw count for a date range.
func (h *Handler) WorkingDays(w http.ResponseWriter, r *http.Request) {
	start, err := calendar.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid start: %w", err))
		return
	}
	end, err := calendar.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid end: %w", err))
		return
	}

	n, err := h.Calendar.CountWorkingDays(start, end)
	if err != nil {
		h.calendarError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WorkingDaysDTO{Start: start.ISO(), End: end.ISO(), WorkingDays: n})
}

// ValidateLeave is the leave-request collaborator's guard: it rejects
// past start dates, inverted ranges, and spans with no working day,
// and prices valid spans in working days.
func (h *Handler) ValidateLeave(w http.ResponseWriter, r *http.Request) {
	var req ValidateLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	start, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid startDate: %w", err))
		return
	}
	end, err := calendar.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid endDate: %w", err))
		return
	}

	if start.Before(calendar.Today()) {
		writeJSON(w, http.StatusOK, ValidateLeaveResponse{
			Valid: false, Reason: "cannot request leave for past dates",
		})
		return
	}
	if end.Before(start) {
		writeJSON(w, http.StatusOK, ValidateLeaveResponse{
			Valid: false, Reason: "end date must be on or after start date",
		})
		return
	}

	n, err := h.Calendar.CountWorkingDays(start, end)
	if err != nil {
		h.calendarError(w, err)
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusOK, ValidateLeaveResponse{
			Valid:  false,
			Reason: "leave request must include at least one working day (weekends and holidays are excluded)",
		})
		return
	}
	writeJSON(w, http.StatusOK, ValidateLeaveResponse{Valid: true, WorkingDays: n})
}

// =============================================================================
// TOIL
// =============================================================================

// AccrueTOIL records a week's overtime as TOIL and credits the
// user's balance.
func (h *Handler) AccrueTOIL(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	userID := chi.URLParam(r, "userID")

	var req AccrueTOILRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	weekEnding, err := calendar.ParseDate(req.WeekEnding)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid weekEnding: %w", err))
		return
	}
	logged, err := parseAmount(req.LoggedHours, "loggedHours")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	contracted, err := parseAmount(req.ContractedHours, "contractedHours")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if logged.IsNegative() || contracted.IsNegative() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("hours must not be negative"))
		return
	}

	hours := balance.AccrueTOIL(logged, contracted)
	if hours.IsZero() {
		writeJSON(w, http.StatusOK, AccrueTOILResponse{
			Accrued: false, HoursAccrued: "0",
		})
		return
	}

	acc := &store.TOILAccrual{
		TenantID:   tenantID,
		UserID:     userID,
		WeekEnding: weekEnding,
		Hours:      hours,
		ExpiresOn:  balance.TOILExpiry(weekEnding),
	}
	if err := h.Store.AppendTOILAccrual(r.Context(), acc); err != nil {
		h.serverError(w, "append toil accrual", err)
		return
	}

	year := weekEnding.Year()
	rec, err := h.Store.ReadBalance(r.Context(), tenantID, userID, year)
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		rec = &store.BalanceRecord{
			TenantID:    tenantID,
			UserID:      userID,
			Year:        year,
			Entitlement: h.DefaultEntitlement,
		}
	case err != nil:
		h.serverError(w, "read balance", err)
		return
	}
	rec.TOILHours = rec.TOILHours.Add(hours)
	if err := h.Store.UpsertBalance(r.Context(), rec); err != nil {
		h.serverError(w, "write balance", err)
		return
	}

	writeJSON(w, http.StatusCreated, AccrueTOILResponse{
		Accrued:      true,
		HoursAccrued: hours.String(),
		ExpiresOn:    acc.ExpiresOn.ISO(),
		AccrualID:    acc.ID,
	})
}

// GetTOILBalance returns the user's TOIL position for a year.
func (h *Handler) GetTOILBalance(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	userID := chi.URLParam(r, "userID")
	year, err := yearParam(r, time.Now().Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	hours := decimal.Zero
	rec, err := h.Store.ReadBalance(r.Context(), tenantID, userID, year)
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		// No record yet: zero balance.
	case err != nil:
		h.serverError(w, "read balance", err)
		return
	default:
		hours = rec.TOILHours
	}

	writeJSON(w, http.StatusOK, TOILBalanceDTO{
		UserID:        userID,
		Year:          year,
		BalanceHours:  hours.String(),
		BalanceInDays: balance.HoursToDays(hours).StringFixed(1),
	})
}

// ListTOILAccruals returns a user's accrual history, newest first.
func (h *Handler) ListTOILAccruals(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	userID := chi.URLParam(r, "userID")

	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)

	accruals, err := h.Store.ListTOILAccruals(r.Context(), tenantID, userID, limit, offset)
	if err != nil {
		h.serverError(w, "list toil accruals", err)
		return
	}

	out := make([]TOILAccrualDTO, 0, len(accruals))
	for _, acc := range accruals {
		out = append(out, TOILAccrualDTO{
			ID:         acc.ID,
			WeekEnding: acc.WeekEnding.ISO(),
			Hours:      acc.Hours.String(),
			ExpiresOn:  acc.ExpiresOn.ISO(),
			Expired:    acc.Expired,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// ADMIN - Batch jobs
// =============================================================================

// RunCarryover triggers the global annual carryover run.
func (h *Handler) RunCarryover(w http.ResponseWriter, r *http.Request) {
	var req RunCarryoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.FromYear < 2000 || req.FromYear > 2200 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("fromYear %d out of range", req.FromYear))
		return
	}

	summary, err := h.Engine.Run(r.Context(), req.FromYear)
	if err != nil {
		h.serverError(w, "carryover run", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// RunUserCarryover applies carryover for a single user.
func (h *Handler) RunUserCarryover(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	userID := chi.URLParam(r, "userID")

	var req RunCarryoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	res, err := h.Engine.ApplyUser(r.Context(), tenantID, userID, req.FromYear)
	switch {
	case errors.Is(err, carryover.ErrAlreadyApplied):
		writeError(w, http.StatusConflict, err)
		return
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		h.serverError(w, "apply carryover", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExpireTOIL triggers the TOIL expiry sweep.
func (h *Handler) ExpireTOIL(w http.ResponseWriter, r *http.Request) {
	var req ExpireTOILRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	asOf := calendar.Today()
	if req.AsOf != "" {
		var err error
		if asOf, err = calendar.ParseDate(req.AsOf); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid asOf: %w", err))
			return
		}
	}

	summary, err := h.Engine.ExpireTOIL(r.Context(), asOf)
	if err != nil {
		h.serverError(w, "toil expiry sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorDTO{Error: err.Error()})
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	h.Log.Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, err)
}

// calendarError maps calendar failures: inverted ranges are caller
// errors, missing holiday tables are a deployment problem (422 keeps
// them distinct from plain bad input).
func (h *Handler) calendarError(w http.ResponseWriter, err error) {
	switch {
	case calendar.IsClientError(err):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, calendar.ErrMissingHolidaySet):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func yearParam(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return fallback, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid year %q", raw)
	}
	return year, nil
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func errBadAmount(field, value string) error {
	return fmt.Errorf("invalid %s: %q is not a decimal amount", field, value)
}
