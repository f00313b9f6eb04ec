package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/auth"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/services"
)

// RecentRunsResponse wraps a window of the events log, newest first.
type RecentRunsResponse struct {
	Runs []models.EventLogEntry `json:"runs"`
}

// ExecutionResponse carries every run of one execution.
type ExecutionResponse struct {
	ExecutionID string                 `json:"execution_id"`
	Runs        []models.EventLogEntry `json:"runs"`
}

// ProgressResponse carries in-memory execution progress. Active is false
// when no execution has been tracked since startup.
type ProgressResponse struct {
	Active    bool                      `json:"active"`
	Execution *models.ExecutionProgress `json:"execution,omitempty"`
}

// RunsHandler serves run history, statistics and live progress.
type RunsHandler struct {
	runs   services.RunsService
	logger *zap.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runs services.RunsService, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{runs: runs, logger: logger}
}

// RegisterRoutes registers the runs handler's routes on the given mux.
func (h *RunsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/runs", authMiddleware.RequireAuth(h.Recent))
	mux.HandleFunc("GET /api/runs/statistics", authMiddleware.RequireAuth(h.Statistics))
	mux.HandleFunc("GET /api/monitoring", authMiddleware.RequireAuth(h.Monitoring))
	mux.HandleFunc("GET /api/executions/{id}", authMiddleware.RequireAuth(h.Execution))
	mux.HandleFunc("GET /api/progress", authMiddleware.RequireAuth(h.LiveProgress))
	mux.HandleFunc("GET /api/progress/{id}", authMiddleware.RequireAuth(h.ExecutionProgress))
}

// parseLimit reads the optional limit query parameter. Zero means "use the
// default window"; the service clamps oversized values.
func parseLimit(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "Limit must be an integer"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return limit, true
}

// Recent handles GET /api/runs
// Returns the latest events-log entries, newest first.
func (h *RunsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, h.logger)
	if !ok {
		return
	}

	runs, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list recent runs", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list recent runs"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, RecentRunsResponse{Runs: runs}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Statistics handles GET /api/runs/statistics
// Returns aggregate counts and per-type average durations.
func (h *RunsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.runs.Statistics(r.Context())
	if err != nil {
		h.logger.Error("Failed to aggregate run statistics", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to aggregate run statistics"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, stats); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Monitoring handles GET /api/monitoring
// Returns statistics, recent runs and live progress in one round trip.
func (h *RunsHandler) Monitoring(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, h.logger)
	if !ok {
		return
	}

	snapshot, err := h.runs.Monitoring(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to build monitoring snapshot", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to build monitoring snapshot"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, snapshot); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Execution handles GET /api/executions/{id}
// Returns every run of one execution from the events log.
func (h *RunsHandler) Execution(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("id")

	runs, err := h.runs.Execution(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "execution_not_found", "No such execution"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrInvalidInput) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_execution_id", "Execution ID is required"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to load execution",
			zap.String("execution_id", executionID),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to load execution"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ExecutionResponse{ExecutionID: executionID, Runs: runs}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// LiveProgress handles GET /api/progress
// Returns the most recently started execution's in-memory progress. The
// dashboard polls this while a launch is underway.
func (h *RunsHandler) LiveProgress(w http.ResponseWriter, r *http.Request) {
	response := ProgressResponse{}
	if progress, ok := h.runs.LiveProgress(); ok {
		response.Active = true
		response.Execution = &progress
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ExecutionProgress handles GET /api/progress/{id}
// Returns one execution's in-memory progress. Finished executions age out of
// the tracker; the events log stays authoritative.
func (h *RunsHandler) ExecutionProgress(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("id")

	progress, ok := h.runs.ExecutionProgress(executionID)
	if !ok {
		if err := ErrorResponse(w, http.StatusNotFound, "progress_not_found", "No tracked progress for this execution"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ProgressResponse{Active: true, Execution: &progress}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
