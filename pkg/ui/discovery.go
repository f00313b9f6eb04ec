package ui

import (
	"net/http"
	"strconv"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	gomponents "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	html "maragu.dev/gomponents/html"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/audit"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/sql"
)

// DiscoveryPage renders the launch form: pick a schema, pick tables, set the
// sample size. Tables already carrying discovery metadata are marked.
func (h *Handler) DiscoveryPage(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.open(r)
	flashes := takeFlashes(session)
	if len(flashes) > 0 {
		h.flushSession(w, r, session)
	}

	schema := formString(r.URL.Query(), "schema")
	if schema == "" {
		schema = selectedSchema(session)
	}

	schemas, err := h.warehouse.Schemas(r.Context())
	if err != nil {
		h.renderServiceError(w, err)
		return
	}

	var tables []warehouse.TableInfo
	profiled := map[string]bool{}
	if schema != "" {
		tables, err = h.warehouse.Tables(r.Context(), schema)
		if err != nil {
			h.renderServiceError(w, err)
			return
		}
		// Marking already-profiled tables is a hint, not a requirement; a
		// metadata store hiccup should not block the launch form.
		if known, err := h.ruleset.KnownTables(r.Context(), h.cfg.Warehouse.Database, schema); err == nil {
			for _, t := range known {
				profiled[t] = true
			}
		}
	}

	h.render(w, http.StatusOK, discoveryPage(schemas, schema, tables, profiled, h.cfg.Masking.SampleSize, csrfField(r), flashes))
}

// LaunchDiscovery starts a discovery execution from the form and redirects
// to monitoring. Validation problems come back as flash messages on the
// form page.
func (h *Handler) LaunchDiscovery(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.open(r)

	if err := r.ParseForm(); err != nil {
		h.redirectWithError(w, r, session, "/ui/discovery", "The form could not be read.")
		return
	}

	schema := formString(r.PostForm, "schema")
	tables := formStrings(r.PostForm, "tables")
	sampleSize, err := formInt(r.PostForm, "sample_size")
	if err != nil {
		h.redirectWithError(w, r, session, "/ui/discovery", "Sample size must be a whole number.")
		return
	}
	if len(tables) == 0 {
		h.redirectWithError(w, r, session, "/ui/discovery?schema="+schema, "Select at least one table.")
		return
	}
	if err := sql.ValidateIdentifier("schema", schema); err != nil {
		h.rejectIdentifier(w, r, session, "/ui/discovery", "schema", schema, err)
		return
	}
	refs := make([]models.TableRef, len(tables))
	for i, table := range tables {
		if err := sql.ValidateIdentifier("table", table); err != nil {
			h.rejectIdentifier(w, r, session, "/ui/discovery?schema="+schema, "table", table, err)
			return
		}
		refs[i] = models.TableRef{
			Database: h.cfg.Warehouse.Database,
			Schema:   schema,
			Table:    table,
		}
	}

	executionID, err := h.discovery.StartDiscovery(r.Context(), refs, sampleSize)
	if err != nil {
		h.logger.Error("Failed to start discovery from dashboard", zap.Error(err))
		h.redirectWithError(w, r, session, "/ui/discovery?schema="+schema, "Discovery could not be started: "+err.Error())
		return
	}

	rememberSchema(session, schema)
	addFlash(session, "success", "Discovery started for "+countLabel(len(refs), "table")+".")
	h.flushSession(w, r, session)
	http.Redirect(w, r, "/ui/monitoring?execution="+executionID, http.StatusSeeOther)
}

func discoveryPage(schemas []string, schema string, tables []warehouse.TableInfo, profiled map[string]bool, defaultSampleSize int, csrf gomponents.Node, flashes []flash) gomponents.Node {
	body := []gomponents.Node{
		schemaPicker("/ui/discovery", schemas, schema),
	}

	if schema != "" {
		rows := make([]gomponents.Node, 0, len(tables))
		for _, t := range tables {
			profiledLabel := "-"
			if profiled[t.TableName] {
				profiledLabel = "yes"
			}
			rows = append(rows, html.Tr(
				data.Show(containsExpr(t.TableName)),
				html.Td(html.Label(
					html.Class("check"),
					html.Input(html.Type("checkbox"), html.Name("tables"), html.Value(t.TableName)),
					gomponents.Text(t.TableName),
				)),
				html.Td(gomponents.Text(strconv.FormatInt(t.RowCount, 10))),
				html.Td(gomponents.Text(profiledLabel)),
			))
		}

		body = append(body, html.Form(
			html.Method("post"),
			html.Action("/ui/discovery"),
			data.Signals(map[string]any{"q": ""}),
			csrf,
			html.Input(html.Type("hidden"), html.Name("schema"), html.Value(schema)),
			quickFilter("Filter by table name"),
			html.Div(
				html.Class("card table-wrap"),
				html.H2(gomponents.Text(countLabel(len(tables), "table")+" in "+schema)),
				html.Table(
					html.THead(html.Tr(
						html.Th(gomponents.Text("Table")),
						html.Th(gomponents.Text("Rows")),
						html.Th(gomponents.Text("Profiled")),
					)),
					html.TBody(gomponents.Group(rows)),
				),
			),
			html.Div(
				html.Class("card"),
				html.Label(gomponents.Text("Sample size (rows per table)")),
				html.Input(html.Type("number"), html.Name("sample_size"), html.Value(strconv.Itoa(defaultSampleSize)), html.Min("1")),
				html.Button(html.Type("submit"), gomponents.Text("Start discovery")),
			),
		))
	} else {
		body = append(body, html.Div(
			html.Class("card"),
			html.P(html.Class("muted"), gomponents.Text("Pick a schema to list its tables.")),
		))
	}

	return appPage("Discovery", "discovery", flashes, body...)
}

// schemaPicker is the shared schema selection form; it submits as GET so
// the page reloads with the chosen schema.
func schemaPicker(action string, schemas []string, selected string) gomponents.Node {
	options := make([]gomponents.Node, 0, len(schemas))
	for _, s := range schemas {
		attrs := []gomponents.Node{html.Value(s), gomponents.Text(s)}
		if s == selected {
			attrs = append(attrs, html.Selected())
		}
		options = append(options, html.Option(attrs...))
	}

	return html.Div(
		html.Class("card"),
		html.Form(
			html.Method("get"),
			html.Action(action),
			html.Label(gomponents.Text("Warehouse schema")),
			html.Select(html.Name("schema"), gomponents.Group(options)),
			html.Button(html.Type("submit"), html.Class("secondary"), gomponents.Text("Load tables")),
		),
	)
}

// redirectWithError flashes a message and sends the browser back to the
// form page.
func (h *Handler) redirectWithError(w http.ResponseWriter, r *http.Request, session *sessions.Session, location, message string) {
	addFlash(session, "error", message)
	h.flushSession(w, r, session)
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// rejectIdentifier records a failed identifier check for the security log
// and bounces the browser back with the validation message.
func (h *Handler) rejectIdentifier(w http.ResponseWriter, r *http.Request, session *sessions.Session, location, kind, value string, err error) {
	h.auditor.LogIdentifierRejected(audit.IdentifierRejectedDetails{
		Kind:   kind,
		Value:  value,
		Reason: err.Error(),
	}, r.RemoteAddr)
	h.redirectWithError(w, r, session, location, err.Error())
}
