package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/internal/project"
	"github.com/wonny/loflimit/internal/timeline"
	"github.com/wonny/loflimit/pkg/logger"
)

// PipelineHandler triggers timeline rebuilds over the API
type PipelineHandler struct {
	runner    *timeline.BatchRunner
	parses    contracts.ParseRepository
	projector *project.Service
	stream    *Stream
	logger    *logger.Logger
}

// NewPipelineHandler creates a new pipeline handler. stream may be nil
// when no progress streaming is wanted.
func NewPipelineHandler(
	runner *timeline.BatchRunner,
	parses contracts.ParseRepository,
	projector *project.Service,
	stream *Stream,
	log *logger.Logger,
) *PipelineHandler {
	return &PipelineHandler{
		runner:    runner,
		parses:    parses,
		projector: projector,
		stream:    stream,
		logger:    log,
	}
}

// RebuildRequest represents a timeline rebuild request
type RebuildRequest struct {
	Tickers []string `json:"tickers"` // empty = every fund with parses
	AsOf    string   `json:"as_of"`   // optional cutoff (YYYY-MM-DD)
}

// RebuildResponse represents a timeline rebuild response
type RebuildResponse struct {
	Status  string                 `json:"status"`
	Summary *timeline.BatchSummary `json:"summary"`
}

// Rebuild replays stored assertions into the canonical timeline
// POST /api/pipeline/rebuild
func (h *PipelineHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RebuildRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", req.AsOf)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'as_of' date format (expected YYYY-MM-DD)")
			return
		}
		asOf = parsed
	}

	tickers := req.Tickers
	if len(tickers) == 0 {
		var err error
		tickers, err = h.parses.ListTickers(ctx)
		if err != nil {
			h.logger.WithError(err).Error("Failed to list funds for rebuild")
			respondError(w, http.StatusInternalServerError, "Failed to list funds")
			return
		}
	}
	if len(tickers) == 0 {
		respondError(w, http.StatusNotFound, "No funds with stored assertions")
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"funds": len(tickers),
		"as_of": asOf.Format("2006-01-02"),
	}).Info("Rebuild triggered")

	summary := h.runner.Run(ctx, tickers, asOf, h.onProgress(ctx))

	status := http.StatusOK
	if len(summary.Failures) == len(tickers) {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, RebuildResponse{
		Status:  "completed",
		Summary: summary,
	})
}

// onProgress publishes each finished fund to websocket subscribers and
// drops stale cached projections for funds whose timeline changed.
func (h *PipelineHandler) onProgress(ctx context.Context) func(*timeline.FundResult) {
	return func(result *timeline.FundResult) {
		if result.Changed() {
			h.projector.Invalidate(ctx, result.Ticker)
		}
		if h.stream != nil {
			h.stream.Publish(newProgressEvent(result))
		}
	}
}
