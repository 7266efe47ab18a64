package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/internal/project"
	"github.com/wonny/loflimit/pkg/logger"
)

// LimitsHandler serves the canonical timeline and its projections
type LimitsHandler struct {
	projector *project.Service
	intervals contracts.IntervalRepository
	audit     contracts.AuditLogRepository
	logger    *logger.Logger
}

// NewLimitsHandler creates a new limits handler
func NewLimitsHandler(
	projector *project.Service,
	intervals contracts.IntervalRepository,
	audit contracts.AuditLogRepository,
	log *logger.Logger,
) *LimitsHandler {
	return &LimitsHandler{
		projector: projector,
		intervals: intervals,
		audit:     audit,
		logger:    log,
	}
}

// ListFunds returns every ticker with a canonical timeline
// GET /api/funds
func (h *LimitsHandler) ListFunds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tickers, err := h.intervals.ListTickers(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list funds")
		respondError(w, http.StatusInternalServerError, "Failed to list funds")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(tickers),
		"funds": tickers,
	})
}

// GetIntervals returns the canonical restriction intervals for a fund
// GET /api/funds/{ticker}/intervals
func (h *LimitsHandler) GetIntervals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := mux.Vars(r)["ticker"]

	intervals, err := h.projector.Intervals(ctx, ticker)
	if err != nil {
		h.logger.WithTicker(ticker).WithError(err).Error("Failed to get intervals")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve intervals")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":    ticker,
		"count":     len(intervals),
		"intervals": intervals,
	})
}

// GetDailyLimits projects the timeline onto a date range
// GET /api/funds/{ticker}/limits?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *LimitsHandler) GetDailyLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := mux.Vars(r)["ticker"]

	from, to, err := parseDateRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	limits, err := h.projector.Project(ctx, ticker, from, to)
	if err != nil {
		h.logger.WithTicker(ticker).WithError(err).Error("Failed to project limits")
		respondError(w, http.StatusInternalServerError, "Failed to project limits")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
		"limits": limits,
	})
}

// GetAuditLog returns the newest audit entries for a fund
// GET /api/funds/{ticker}/audit?limit=N
func (h *LimitsHandler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := mux.Vars(r)["ticker"]

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}

	entries, err := h.audit.GetAuditLog(ctx, ticker, limit)
	if err != nil {
		h.logger.WithTicker(ticker).WithError(err).Error("Failed to get audit log")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve audit log")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":  ticker,
		"count":   len(entries),
		"entries": entries,
	})
}

// parseDateRange reads from/to query parameters, defaulting to the
// next 30 days.
func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error

	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, fmt.Errorf("invalid 'from' date format (expected YYYY-MM-DD)")
		}
	} else {
		from = time.Now().UTC()
	}

	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, fmt.Errorf("invalid 'to' date format (expected YYYY-MM-DD)")
		}
	} else {
		to = from.AddDate(0, 0, 30)
	}

	return from, to, nil
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
