package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/auth"
	"github.com/veildata/veil-engine/pkg/services"
)

// SchemasResponse wraps the warehouse schema list.
type SchemasResponse struct {
	Schemas []string `json:"schemas"`
}

// TablesResponse wraps one schema's tables.
type TablesResponse struct {
	Schema string                `json:"schema"`
	Tables []warehouse.TableInfo `json:"tables"`
}

// ColumnsResponse wraps one table's columns.
type ColumnsResponse struct {
	Schema  string                 `json:"schema"`
	Table   string                 `json:"table"`
	Columns []warehouse.ColumnInfo `json:"columns"`
}

// TestConnectionResponse reports a connectivity check. Failures are part of
// the result, not an HTTP error.
type TestConnectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WarehouseHandler serves warehouse browsing for the discovery and masking
// pages.
type WarehouseHandler struct {
	warehouse services.WarehouseService
	logger    *zap.Logger
}

// NewWarehouseHandler creates a new warehouse handler.
func NewWarehouseHandler(warehouseService services.WarehouseService, logger *zap.Logger) *WarehouseHandler {
	return &WarehouseHandler{warehouse: warehouseService, logger: logger}
}

// RegisterRoutes registers the warehouse handler's routes on the given mux.
func (h *WarehouseHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/warehouse/schemas", authMiddleware.RequireAuth(h.Schemas))
	mux.HandleFunc("GET /api/warehouse/schemas/{schema}/tables", authMiddleware.RequireAuth(h.Tables))
	mux.HandleFunc("GET /api/warehouse/schemas/{schema}/tables/{table}/columns", authMiddleware.RequireAuth(h.Columns))
	mux.HandleFunc("POST /api/warehouse/test", authMiddleware.RequireAuth(h.TestConnection))
}

// Schemas handles GET /api/warehouse/schemas
// Lists the warehouse's user schemas.
func (h *WarehouseHandler) Schemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.warehouse.Schemas(r.Context())
	if err != nil {
		h.logger.Error("Failed to list schemas", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadGateway, "warehouse_unreachable", "Failed to list schemas"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, SchemasResponse{Schemas: schemas}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Tables handles GET /api/warehouse/schemas/{schema}/tables
// Lists one schema's base tables with row counts.
func (h *WarehouseHandler) Tables(w http.ResponseWriter, r *http.Request) {
	schema := r.PathValue("schema")

	tables, err := h.warehouse.Tables(r.Context(), schema)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			if err := ErrorResponse(w, http.StatusBadRequest, "unsafe_identifier", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to list tables",
			zap.String("schema", schema),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadGateway, "warehouse_unreachable", "Failed to list tables"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, TablesResponse{Schema: schema, Tables: tables}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Columns handles GET /api/warehouse/schemas/{schema}/tables/{table}/columns
// Describes one table's columns in ordinal order.
func (h *WarehouseHandler) Columns(w http.ResponseWriter, r *http.Request) {
	schema := r.PathValue("schema")
	table := r.PathValue("table")

	columns, err := h.warehouse.Columns(r.Context(), schema, table)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			if err := ErrorResponse(w, http.StatusBadRequest, "unsafe_identifier", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "table_not_found", "No such table"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to describe table",
			zap.String("schema", schema),
			zap.String("table", table),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadGateway, "warehouse_unreachable", "Failed to describe table"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ColumnsResponse{Schema: schema, Table: table, Columns: columns}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// TestConnection handles POST /api/warehouse/test
// Checks that the configured warehouse answers.
func (h *WarehouseHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.warehouse.TestConnection(r.Context()); err != nil {
		h.logger.Info("Warehouse connection test failed", zap.Error(err))
		if err := WriteJSON(w, http.StatusOK, TestConnectionResponse{Success: false, Error: err.Error()}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, TestConnectionResponse{Success: true, Message: "Connection successful"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
