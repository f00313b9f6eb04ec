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

// StartMaskingRequest for POST body. Masked tables keep their name: a deliver
// run writes them into dest_schema, an in-place run rewrites them where they
// are.
type StartMaskingRequest struct {
	Schema     string   `json:"schema"`
	Tables     []string `json:"tables"`
	DestSchema string   `json:"dest_schema,omitempty"`
	InPlace    bool     `json:"in_place,omitempty"`
	Overwrite  bool     `json:"overwrite,omitempty"`
}

// MaskingHandler launches masking executions.
type MaskingHandler struct {
	masking services.MaskingService
	cfg     *config.Config
	logger  *zap.Logger
}

// NewMaskingHandler creates a new masking handler.
func NewMaskingHandler(masking services.MaskingService, cfg *config.Config, logger *zap.Logger) *MaskingHandler {
	return &MaskingHandler{
		masking: masking,
		cfg:     cfg,
		logger:  logger,
	}
}

// RegisterRoutes registers the masking handler's routes on the given mux.
func (h *MaskingHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/masking", authMiddleware.RequireAuth(h.Start))
}

// Start handles POST /api/masking
// Launches one masking execution and returns its execution ID without
// waiting for the work.
func (h *MaskingHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartMaskingRequest
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
	if !req.InPlace && req.DestSchema == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_dest_schema", "A destination schema is required unless masking in place"); err != nil {
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
	if !req.InPlace {
		if err := sql.ValidateIdentifier("destination schema", req.DestSchema); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "unsafe_identifier", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	pairs := make([]services.MaskingTablePair, len(req.Tables))
	for i, table := range req.Tables {
		if err := sql.ValidateIdentifier("table", table); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "unsafe_identifier", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		source := models.TableRef{
			Database: h.cfg.Warehouse.Database,
			Schema:   req.Schema,
			Table:    table,
		}
		dest := source
		if !req.InPlace {
			dest.Schema = req.DestSchema
		}
		pairs[i] = services.MaskingTablePair{Source: source, Dest: dest}
	}

	executionID, err := h.masking.StartMasking(r.Context(), services.MaskingRequest{
		Tables:    pairs,
		Overwrite: req.Overwrite,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrUnsupported) {
			if err := ErrorResponse(w, http.StatusBadRequest, "unsupported", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to start masking",
			zap.String("schema", req.Schema),
			zap.Int("tables", len(req.Tables)),
			zap.Bool("in_place", req.InPlace),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "start_failed", "Failed to start masking"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.logger.Info("Masking execution started",
		zap.String("execution_id", executionID),
		zap.String("schema", req.Schema),
		zap.Int("tables", len(req.Tables)),
		zap.Bool("in_place", req.InPlace),
		zap.String("user", auth.UserFromContext(r.Context())))

	if err := WriteJSON(w, http.StatusAccepted, StartExecutionResponse{ExecutionID: executionID}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
