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
)

// RulesetResponse wraps discovered columns of a schema or table.
type RulesetResponse struct {
	Schema  string                    `json:"schema"`
	Table   string                    `json:"table,omitempty"`
	Columns []models.DiscoveredColumn `json:"columns"`
}

// KnownTablesResponse lists the tables discovery has recorded under a schema.
type KnownTablesResponse struct {
	Schema string   `json:"schema"`
	Tables []string `json:"tables"`
}

// AlgorithmsResponse wraps the masking algorithm catalog.
type AlgorithmsResponse struct {
	Algorithms []models.Algorithm `json:"algorithms"`
}

// AssignAlgorithmRequest for PUT body. An empty algorithm clears the
// assignment.
type AssignAlgorithmRequest struct {
	Algorithm string `json:"algorithm"`
}

// RulesetHandler serves the discovered ruleset and algorithm assignments.
type RulesetHandler struct {
	ruleset services.RulesetService
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRulesetHandler creates a new ruleset handler.
func NewRulesetHandler(ruleset services.RulesetService, cfg *config.Config, logger *zap.Logger) *RulesetHandler {
	return &RulesetHandler{
		ruleset: ruleset,
		cfg:     cfg,
		logger:  logger,
	}
}

// RegisterRoutes registers the ruleset handler's routes on the given mux.
func (h *RulesetHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/ruleset/{schema}", authMiddleware.RequireAuth(h.SchemaRuleset))
	mux.HandleFunc("GET /api/ruleset/{schema}/tables", authMiddleware.RequireAuth(h.KnownTables))
	mux.HandleFunc("GET /api/ruleset/{schema}/tables/{table}", authMiddleware.RequireAuth(h.TableRuleset))
	mux.HandleFunc("PUT /api/ruleset/{schema}/tables/{table}/columns/{column}/algorithm",
		authMiddleware.RequireAuth(h.AssignAlgorithm))
	mux.HandleFunc("GET /api/algorithms", authMiddleware.RequireAuth(h.Algorithms))
}

// SchemaRuleset handles GET /api/ruleset/{schema}
// Returns every discovered column under a schema. An empty list means
// discovery has not run there.
func (h *RulesetHandler) SchemaRuleset(w http.ResponseWriter, r *http.Request) {
	schema := r.PathValue("schema")

	columns, err := h.ruleset.SchemaRuleset(r.Context(), h.cfg.Warehouse.Database, schema)
	if err != nil {
		h.logger.Error("Failed to load schema ruleset",
			zap.String("schema", schema),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to load ruleset"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, RulesetResponse{Schema: schema, Columns: columns}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// KnownTables handles GET /api/ruleset/{schema}/tables
// Lists the tables discovery has recorded under a schema.
func (h *RulesetHandler) KnownTables(w http.ResponseWriter, r *http.Request) {
	schema := r.PathValue("schema")

	tables, err := h.ruleset.KnownTables(r.Context(), h.cfg.Warehouse.Database, schema)
	if err != nil {
		h.logger.Error("Failed to list known tables",
			zap.String("schema", schema),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list tables"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, KnownTablesResponse{Schema: schema, Tables: tables}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// TableRuleset handles GET /api/ruleset/{schema}/tables/{table}
// Returns one table's discovered columns in ordinal order.
func (h *RulesetHandler) TableRuleset(w http.ResponseWriter, r *http.Request) {
	schema := r.PathValue("schema")
	table := r.PathValue("table")

	columns, err := h.ruleset.TableRuleset(r.Context(), models.TableRef{
		Database: h.cfg.Warehouse.Database,
		Schema:   schema,
		Table:    table,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "table_not_found", "Discovery has not seen this table"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to load table ruleset",
			zap.String("schema", schema),
			zap.String("table", table),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to load ruleset"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, RulesetResponse{Schema: schema, Table: table, Columns: columns}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AssignAlgorithm handles PUT /api/ruleset/{schema}/tables/{table}/columns/{column}/algorithm
// Sets or clears a column's masking algorithm.
func (h *RulesetHandler) AssignAlgorithm(w http.ResponseWriter, r *http.Request) {
	schema := r.PathValue("schema")
	table := r.PathValue("table")
	column := r.PathValue("column")

	var req AssignAlgorithmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	ref := models.TableRef{
		Database: h.cfg.Warehouse.Database,
		Schema:   schema,
		Table:    table,
	}
	if err := h.ruleset.AssignAlgorithm(r.Context(), ref, column, req.Algorithm); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "column_not_found", "Discovery has not seen this column"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrInvalidInput) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_algorithm", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to assign algorithm",
			zap.String("schema", schema),
			zap.String("table", table),
			zap.String("column", column),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to assign algorithm"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Algorithms handles GET /api/algorithms
// Returns the masking algorithm catalog, active and inactive.
func (h *RulesetHandler) Algorithms(w http.ResponseWriter, r *http.Request) {
	algorithms, err := h.ruleset.Algorithms(r.Context())
	if err != nil {
		h.logger.Error("Failed to list algorithms", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list algorithms"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, AlgorithmsResponse{Algorithms: algorithms}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
