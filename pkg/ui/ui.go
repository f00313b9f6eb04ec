// Package ui serves the server-rendered dashboard: discovery and masking
// launch forms, run monitoring, and settings. Pages are gomponents trees
// rendered straight to the response; the only client-side behavior is the
// datastar quick filter on long tables and a meta refresh while an
// execution is in flight.
package ui

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	gomponents "maragu.dev/gomponents"

	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/audit"
	"github.com/veildata/veil-engine/pkg/compliance"
	"github.com/veildata/veil-engine/pkg/config"
	"github.com/veildata/veil-engine/pkg/services"
	assets "github.com/veildata/veil-engine/ui"
)

// Handler renders the dashboard pages over the same services the JSON API
// uses.
type Handler struct {
	discovery services.DiscoveryService
	masking   services.MaskingService
	runs      services.RunsService
	warehouse services.WarehouseService
	ruleset   services.RulesetService
	settings  services.SettingsService
	transport compliance.Transport
	sessions  *sessionStore
	auditor   *audit.SecurityAuditor
	cfg       *config.Config
	logger    *zap.Logger
}

// NewHandler creates the dashboard handler. The transport is the one run
// executions use, so the settings page's connectivity check proves the path
// that matters.
func NewHandler(
	discovery services.DiscoveryService,
	masking services.MaskingService,
	runs services.RunsService,
	warehouseSvc services.WarehouseService,
	ruleset services.RulesetService,
	settings services.SettingsService,
	transport compliance.Transport,
	cfg *config.Config,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		discovery: discovery,
		masking:   masking,
		runs:      runs,
		warehouse: warehouseSvc,
		ruleset:   ruleset,
		settings:  settings,
		transport: transport,
		sessions:  newSessionStore(cfg.SessionKey, cfg.Env != "local"),
		auditor:   audit.NewSecurityAuditor(logger),
		cfg:       cfg,
		logger:    logger.Named("ui"),
	}
}

// RegisterRoutes registers all dashboard routes. The dashboard is a browser
// surface; bearer-token auth stays on the JSON API, and the forms are
// protected by a CSRF token instead.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	page := func(pattern string, fn http.HandlerFunc) {
		mux.Handle("GET "+pattern, h.ensureCSRFToken(fn))
	}
	form := func(pattern string, fn http.HandlerFunc) {
		mux.Handle("POST "+pattern, h.requireCSRF(fn))
	}

	page("/ui", h.Overview)
	page("/ui/discovery", h.DiscoveryPage)
	form("/ui/discovery", h.LaunchDiscovery)
	page("/ui/masking", h.MaskingPage)
	form("/ui/masking", h.LaunchMasking)
	page("/ui/monitoring", h.MonitoringPage)
	page("/ui/settings", h.SettingsPage)
	form("/ui/settings", h.SaveSetting)
	form("/ui/settings/test", h.TestCredentials)

	if staticFS, err := fs.Sub(assets.StaticFS(), "static"); err == nil {
		mux.Handle("GET /ui/static/", http.StripPrefix("/ui/static/", http.FileServer(http.FS(staticFS))))
	}
}

func (h *Handler) render(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := node.Render(w); err != nil {
		h.logger.Error("Failed to render page", zap.Error(err))
	}
}

// renderServiceError maps sentinel errors onto an error page the same way
// the JSON handlers map them onto statuses.
func (h *Handler) renderServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	title := "Unexpected Error"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
		title = "Not Found"
	case errors.Is(err, apperrors.ErrInvalidInput):
		status = http.StatusBadRequest
		title = "Invalid Request"
	case errors.Is(err, apperrors.ErrAccess):
		status = http.StatusBadGateway
		title = "Warehouse Unreachable"
	}

	h.logger.Warn("Dashboard page failed", zap.Error(err))
	h.render(w, status, errorPage(title, err.Error()))
}

// flushSession writes pending session changes. Must run before the first
// body byte; cookies ride on headers.
func (h *Handler) flushSession(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	if err := session.Save(r, w); err != nil {
		h.logger.Warn("Failed to save dashboard session", zap.Error(err))
	}
}
