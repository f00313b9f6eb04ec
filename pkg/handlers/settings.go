package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/auth"
	"github.com/veildata/veil-engine/pkg/compliance"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/services"
)

// SettingsResponse wraps the stored settings. Secret values arrive masked.
type SettingsResponse struct {
	Settings []models.Setting `json:"settings"`
}

// SetSettingRequest for PUT body.
type SetSettingRequest struct {
	Value string `json:"value"`
}

// SettingsHandler serves compliance API settings and their connectivity
// check.
type SettingsHandler struct {
	settings  services.SettingsService
	transport compliance.Transport
	logger    *zap.Logger
}

// NewSettingsHandler creates a new settings handler. The transport is the
// same one run executions use, so the connectivity check proves the path
// that matters.
func NewSettingsHandler(settings services.SettingsService, transport compliance.Transport, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings:  settings,
		transport: transport,
		logger:    logger,
	}
}

// RegisterRoutes registers the settings handler's routes on the given mux.
func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/settings", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("PUT /api/settings/{key}", authMiddleware.RequireAuth(h.Set))
	mux.HandleFunc("POST /api/settings/test", authMiddleware.RequireAuth(h.TestCredentials))
}

// List handles GET /api/settings
// Returns every stored setting with secret values masked.
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list settings", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list settings"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, SettingsResponse{Settings: settings}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Set handles PUT /api/settings/{key}
// Stores one setting; secret values are encrypted at rest.
func (h *SettingsHandler) Set(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req SetSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.settings.Set(r.Context(), key, req.Value); err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			if err := ErrorResponse(w, http.StatusBadRequest, "unknown_setting", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to store setting",
			zap.String("key", key),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to store setting"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TestCredentials handles POST /api/settings/test
// Resolves the stored compliance credentials and exchanges them for a token.
// Provider rejections are part of the result; missing configuration and an
// unreadable secret are request errors.
func (h *SettingsHandler) TestCredentials(w http.ResponseWriter, r *http.Request) {
	baseURL, creds, err := h.settings.ComplianceCredentials(r.Context())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusBadRequest, "not_configured", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrCredentialsKey) {
			if err := ErrorResponse(w, http.StatusConflict, "credentials_key_mismatch", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to resolve compliance credentials", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to resolve credentials"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	client := compliance.NewClient(baseURL, creds, h.transport, h.logger)
	if err := client.VerifyCredentials(r.Context()); err != nil {
		h.logger.Info("Compliance credential check failed", zap.Error(err))
		if err := WriteJSON(w, http.StatusOK, TestConnectionResponse{Success: false, Error: err.Error()}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, TestConnectionResponse{Success: true, Message: "Token acquired"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
