package ui

import (
	"net/http"

	"go.uber.org/zap"
	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/veildata/veil-engine/pkg/compliance"
	"github.com/veildata/veil-engine/pkg/models"
)

// settingField describes one settings-page form. The page shows every key,
// stored or not.
type settingField struct {
	Key   string
	Label string
	Hint  string
}

var settingFields = []settingField{
	{Key: models.SettingComplianceBaseURL, Label: "API base URL", Hint: "https://host of the compliance service"},
	{Key: models.SettingComplianceTenantID, Label: "Tenant ID", Hint: "Identity provider tenant for the token exchange"},
	{Key: models.SettingComplianceClientID, Label: "Client ID", Hint: "Service principal the engine authenticates as"},
	{Key: models.SettingComplianceClientSecret, Label: "Client secret", Hint: "Stored encrypted; shown masked"},
	{Key: models.SettingComplianceScope, Label: "Scope", Hint: "OAuth scope requested with the token"},
}

// SettingsPage renders the compliance credential forms and the
// connectivity check.
func (h *Handler) SettingsPage(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.open(r)
	flashes := takeFlashes(session)
	if len(flashes) > 0 {
		h.flushSession(w, r, session)
	}

	settings, err := h.settings.List(r.Context())
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	stored := make(map[string]models.Setting, len(settings))
	for _, s := range settings {
		stored[s.Key] = s
	}

	h.render(w, http.StatusOK, settingsPage(stored, csrfField(r), flashes))
}

// SaveSetting stores one submitted setting and redirects back.
func (h *Handler) SaveSetting(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.open(r)

	if err := r.ParseForm(); err != nil {
		h.redirectWithError(w, r, session, "/ui/settings", "The form could not be read.")
		return
	}

	key := formString(r.PostForm, "key")
	value := formString(r.PostForm, "value")
	if value == "" && models.IsSecretSetting(key) {
		// The secret input renders empty even when a value is stored;
		// an empty submit means keep it, not clear it.
		addFlash(session, "success", key+" left unchanged.")
		h.flushSession(w, r, session)
		http.Redirect(w, r, "/ui/settings", http.StatusSeeOther)
		return
	}
	if err := h.settings.Set(r.Context(), key, value); err != nil {
		h.redirectWithError(w, r, session, "/ui/settings", "The setting was not saved: "+err.Error())
		return
	}

	addFlash(session, "success", "Saved "+key+".")
	h.flushSession(w, r, session)
	http.Redirect(w, r, "/ui/settings", http.StatusSeeOther)
}

// TestCredentials exchanges the stored credentials for a token and reports
// the outcome as a flash. No API endpoint is called.
func (h *Handler) TestCredentials(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.open(r)

	baseURL, creds, err := h.settings.ComplianceCredentials(r.Context())
	if err != nil {
		h.redirectWithError(w, r, session, "/ui/settings", "Credentials are not usable: "+err.Error())
		return
	}

	client := compliance.NewClient(baseURL, creds, h.transport, h.logger)
	if err := client.VerifyCredentials(r.Context()); err != nil {
		h.logger.Info("Dashboard credential check failed", zap.Error(err))
		h.redirectWithError(w, r, session, "/ui/settings", "The identity provider rejected the credentials: "+err.Error())
		return
	}

	addFlash(session, "success", "Token acquired; the credentials work.")
	h.flushSession(w, r, session)
	http.Redirect(w, r, "/ui/settings", http.StatusSeeOther)
}

func settingsPage(stored map[string]models.Setting, csrf gomponents.Node, flashes []flash) gomponents.Node {
	cards := make([]gomponents.Node, 0, len(settingFields)+2)
	cards = append(cards, html.Div(
		html.Class("card"),
		html.P(html.Class("muted"), gomponents.Text(
			"Values set through the environment override stored ones. Secrets are encrypted at rest.")),
	))

	for _, field := range settingFields {
		cards = append(cards, settingCard(field, stored[field.Key], csrf))
	}

	cards = append(cards, html.Div(
		html.Class("card"),
		html.H2(gomponents.Text("Connectivity")),
		html.P(html.Class("muted"), gomponents.Text("Exchanges the credentials for a token without calling any API endpoint.")),
		html.Form(
			html.Method("post"),
			html.Action("/ui/settings/test"),
			csrf,
			html.Button(html.Type("submit"), html.Class("secondary"), gomponents.Text("Test credentials")),
		),
	))

	return appPage("Settings", "settings", flashes, cards...)
}

func settingCard(field settingField, current models.Setting, csrf gomponents.Node) gomponents.Node {
	inputType := "text"
	value := current.Value
	placeholder := field.Hint
	if models.IsSecretSetting(field.Key) {
		inputType = "password"
		value = ""
		if current.Value != "" {
			placeholder = "unchanged; enter a new value to rotate"
		}
	}

	return html.Div(
		html.Class("card"),
		html.H2(gomponents.Text(field.Label)),
		html.Form(
			html.Method("post"),
			html.Action("/ui/settings"),
			csrf,
			html.Input(html.Type("hidden"), html.Name("key"), html.Value(field.Key)),
			html.Label(gomponents.Text(field.Key)),
			html.Input(
				html.Type(inputType),
				html.Name("value"),
				html.Value(value),
				html.Placeholder(placeholder),
			),
			html.Button(html.Type("submit"), gomponents.Text("Save")),
		),
	)
}
