package ui

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
	gomponents "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	html "maragu.dev/gomponents/html"

	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/services"
	"github.com/veildata/veil-engine/pkg/sql"
)

// Masking modes as submitted by the form.
const (
	maskModeDeliver = "deliver"
	maskModeInPlace = "in_place"
)

// maskingTableRow is what the masking page shows per profiled table.
type maskingTableRow struct {
	Table   string
	Columns int
	Masked  int
}

// MaskingPage renders the launch form over tables discovery has profiled:
// only those carry the algorithm assignments masking applies.
func (h *Handler) MaskingPage(w http.ResponseWriter, r *http.Request) {
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

	var rows []maskingTableRow
	if schema != "" {
		columns, err := h.ruleset.SchemaRuleset(r.Context(), h.cfg.Warehouse.Database, schema)
		if err != nil {
			h.renderServiceError(w, err)
			return
		}
		rows = maskingRows(columns)
	}

	h.render(w, http.StatusOK, maskingPage(schemas, schema, rows, csrfField(r), flashes))
}

// LaunchMasking starts a masking execution from the form and redirects to
// monitoring.
func (h *Handler) LaunchMasking(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.open(r)

	if err := r.ParseForm(); err != nil {
		h.redirectWithError(w, r, session, "/ui/masking", "The form could not be read.")
		return
	}

	schema := formString(r.PostForm, "schema")
	tables := formStrings(r.PostForm, "tables")
	mode := formString(r.PostForm, "mode")
	destSchema := formString(r.PostForm, "dest_schema")
	overwrite := formBool(r.PostForm, "overwrite")
	backTo := "/ui/masking?schema=" + schema

	if len(tables) == 0 {
		h.redirectWithError(w, r, session, backTo, "Select at least one table.")
		return
	}
	inPlace := mode == maskModeInPlace
	if !inPlace && destSchema == "" {
		h.redirectWithError(w, r, session, backTo, "A destination schema is required unless masking in place.")
		return
	}
	if err := sql.ValidateIdentifier("schema", schema); err != nil {
		h.rejectIdentifier(w, r, session, "/ui/masking", "schema", schema, err)
		return
	}
	if !inPlace {
		if err := sql.ValidateIdentifier("destination schema", destSchema); err != nil {
			h.rejectIdentifier(w, r, session, backTo, "destination schema", destSchema, err)
			return
		}
	}

	pairs := make([]services.MaskingTablePair, len(tables))
	for i, table := range tables {
		if err := sql.ValidateIdentifier("table", table); err != nil {
			h.rejectIdentifier(w, r, session, backTo, "table", table, err)
			return
		}
		source := models.TableRef{
			Database: h.cfg.Warehouse.Database,
			Schema:   schema,
			Table:    table,
		}
		dest := source
		if !inPlace {
			dest.Schema = destSchema
		}
		pairs[i] = services.MaskingTablePair{Source: source, Dest: dest}
	}

	executionID, err := h.masking.StartMasking(r.Context(), services.MaskingRequest{
		Tables:    pairs,
		Overwrite: overwrite,
	})
	if err != nil {
		h.logger.Error("Failed to start masking from dashboard", zap.Error(err))
		h.redirectWithError(w, r, session, backTo, "Masking could not be started: "+err.Error())
		return
	}

	rememberSchema(session, schema)
	addFlash(session, "success", "Masking started for "+countLabel(len(pairs), "table")+".")
	h.flushSession(w, r, session)
	http.Redirect(w, r, "/ui/monitoring?execution="+executionID, http.StatusSeeOther)
}

// maskingRows folds the schema's ruleset into per-table column counts.
func maskingRows(columns []models.DiscoveredColumn) []maskingTableRow {
	byTable := map[string]*maskingTableRow{}
	order := []string{}
	for i := range columns {
		col := &columns[i]
		row, ok := byTable[col.TableName]
		if !ok {
			row = &maskingTableRow{Table: col.TableName}
			byTable[col.TableName] = row
			order = append(order, col.TableName)
		}
		row.Columns++
		if col.EffectiveAlgorithm() != "" {
			row.Masked++
		}
	}

	rows := make([]maskingTableRow, 0, len(order))
	for _, name := range order {
		rows = append(rows, *byTable[name])
	}
	return rows
}

func maskingPage(schemas []string, schema string, rows []maskingTableRow, csrf gomponents.Node, flashes []flash) gomponents.Node {
	body := []gomponents.Node{
		schemaPicker("/ui/masking", schemas, schema),
	}

	switch {
	case schema == "":
		body = append(body, html.Div(
			html.Class("card"),
			html.P(html.Class("muted"), gomponents.Text("Pick a schema to list its profiled tables.")),
		))
	case len(rows) == 0:
		body = append(body, html.Div(
			html.Class("card"),
			html.P(html.Class("muted"), gomponents.Text("No discovery metadata for this schema yet. Run discovery first.")),
			html.A(html.Href("/ui/discovery?schema="+schema), gomponents.Text("Go to discovery")),
		))
	default:
		tableRows := make([]gomponents.Node, 0, len(rows))
		for _, row := range rows {
			tableRows = append(tableRows, html.Tr(
				data.Show(containsExpr(row.Table)),
				html.Td(html.Label(
					html.Class("check"),
					html.Input(html.Type("checkbox"), html.Name("tables"), html.Value(row.Table)),
					gomponents.Text(row.Table),
				)),
				html.Td(gomponents.Text(strconv.Itoa(row.Columns))),
				html.Td(gomponents.Text(strconv.Itoa(row.Masked))),
			))
		}

		body = append(body, html.Form(
			html.Method("post"),
			html.Action("/ui/masking"),
			data.Signals(map[string]any{"q": ""}),
			csrf,
			html.Input(html.Type("hidden"), html.Name("schema"), html.Value(schema)),
			quickFilter("Filter by table name"),
			html.Div(
				html.Class("card table-wrap"),
				html.H2(gomponents.Text(countLabel(len(rows), "profiled table")+" in "+schema)),
				html.Table(
					html.THead(html.Tr(
						html.Th(gomponents.Text("Table")),
						html.Th(gomponents.Text("Columns")),
						html.Th(gomponents.Text("With algorithm")),
					)),
					html.TBody(gomponents.Group(tableRows)),
				),
				html.P(html.Class("muted"), gomponents.Text("Tables without any algorithm are copied unmasked when delivering to another schema.")),
			),
			html.Div(
				html.Class("card"),
				html.Label(gomponents.Text("Mode")),
				html.Label(
					html.Class("check"),
					html.Input(html.Type("radio"), html.Name("mode"), html.Value(maskModeDeliver), html.Checked()),
					gomponents.Text("Deliver masked copies to a destination schema"),
				),
				html.Label(
					html.Class("check"),
					html.Input(html.Type("radio"), html.Name("mode"), html.Value(maskModeInPlace)),
					gomponents.Text("Mask in place, replacing source rows"),
				),
				html.Label(gomponents.Text("Destination schema")),
				html.Input(html.Type("text"), html.Name("dest_schema"), html.Placeholder("masked")),
				html.Label(
					html.Class("check"),
					html.Input(html.Type("checkbox"), html.Name("overwrite")),
					gomponents.Text("Empty existing destination tables before writing"),
				),
				html.Button(html.Type("submit"), gomponents.Text("Start masking")),
			),
		))
	}

	return appPage("Masking", "masking", flashes, body...)
}
