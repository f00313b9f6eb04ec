package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/auth"
	"github.com/veildata/veil-engine/pkg/config"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/services"
	"github.com/veildata/veil-engine/pkg/sql"
)

// StartDiscoveryRequest for POST body. Tables are names within one schema of
// the configured warehouse.
type StartDiscoveryRequest struct {
	Schema     string   `json:"schema"`
	Tables     []string `json:"tables"`
	SampleSize int      `json:"sample_size,omitempty"`
}

// StartExecutionResponse acknowledges a launched execution. Progress is
// polled under /api/progress/{id}.
type StartExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
}

// DiscoveryHandler launches discovery executions.
type DiscoveryHandler struct {
	discovery services.DiscoveryService
	cfg       *config.Config
	logger    *zap.Logger
}

// NewDiscoveryHandler creates a new discovery handler.
func NewDiscoveryHandler(discovery services.DiscoveryService, cfg *config.Config, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discovery: discovery,
		cfg:       cfg,
		logger:    logger,
	}
}

// RegisterRoutes registers the discovery handler's routes on the given mux.
func (h *DiscoveryHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/discovery", authMiddleware.RequireAuth(h.Start))
}

// Start handles POST /api/discovery
// Launches one discovery execution over the selected tables and returns its
// execution ID without waiting for the work.
func (h *DiscoveryHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartDiscoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if len(req.Tables) == 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_tables", "At least one table is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := sql.ValidateIdentifier("schema", req.Schema); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "unsafe_identifier", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	tables := make([]models.TableRef, len(req.Tables))
	for i, table := range req.Tables {
		if err := sql.ValidateIdentifier("table", table); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "unsafe_identifier", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		tables[i] = models.TableRef{
			Database: h.cfg.Warehouse.Database,
			Schema:   req.Schema,
			Table:    table,
		}
	}

	executionID, err := h.discovery.StartDiscovery(r.Context(), tables, req.SampleSize)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to start discovery",
			zap.String("schema", req.Schema),
			zap.Int("tables", len(req.Tables)),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "start_failed", "Failed to start discovery"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.logger.Info("Discovery execution started",
		zap.String("execution_id", executionID),
		zap.String("schema", req.Schema),
		zap.Int("tables", len(req.Tables)),
		zap.String("user", auth.UserFromContext(r.Context())))

	if err := WriteJSON(w, http.StatusAccepted, StartExecutionResponse{ExecutionID: executionID}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
