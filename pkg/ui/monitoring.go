package ui

import (
	"net/http"
	"strconv"

	gomponents "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	html "maragu.dev/gomponents/html"

	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/services"
)

// monitoringRefreshSeconds is how often pages following an unfinished
// execution reload.
const monitoringRefreshSeconds = 3

// MonitoringPage renders aggregate statistics and recent runs, or a single
// execution when ?execution= is set. Pages showing an execution still in
// flight reload themselves until it finishes.
func (h *Handler) MonitoringPage(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.open(r)
	flashes := takeFlashes(session)
	if len(flashes) > 0 {
		h.flushSession(w, r, session)
	}

	if executionID := formString(r.URL.Query(), "execution"); executionID != "" {
		h.executionView(w, r, executionID, flashes)
		return
	}

	snapshot, err := h.runs.Monitoring(r.Context(), services.DefaultRecentRuns)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}

	body := []gomponents.Node{statisticsGrid(snapshot.Statistics)}
	if node := averageDurations(snapshot.Statistics); node != nil {
		body = append(body, node)
	}
	if snapshot.Live != nil {
		body = append(body, executionProgressCard(*snapshot.Live))
	}
	body = append(body, recentRunsTable(snapshot.Recent))

	var page gomponents.Node
	if snapshot.Live != nil && !snapshot.Live.Finished() {
		page = autoRefreshPage("Monitoring", "monitoring", monitoringRefreshSeconds, flashes, body...)
	} else {
		page = appPage("Monitoring", "monitoring", flashes, body...)
	}
	h.render(w, http.StatusOK, page)
}

func (h *Handler) executionView(w http.ResponseWriter, r *http.Request, executionID string, flashes []flash) {
	entries, err := h.runs.Execution(r.Context(), executionID)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}

	body := []gomponents.Node{}
	progress, tracked := h.runs.ExecutionProgress(executionID)
	if tracked {
		body = append(body, executionProgressCard(progress))
	}
	body = append(body, runsTable("Runs", entries))
	body = append(body, html.P(html.A(html.Href("/ui/monitoring"), gomponents.Text("Back to monitoring"))))

	title := "Execution " + executionID
	var page gomponents.Node
	if tracked && !progress.Finished() {
		page = autoRefreshPage(title, "monitoring", monitoringRefreshSeconds, flashes, body...)
	} else {
		page = appPage(title, "monitoring", flashes, body...)
	}
	h.render(w, http.StatusOK, page)
}

// averageDurations lists per-type average run durations, nil when the log
// is empty.
func averageDurations(stats *models.RunStatistics) gomponents.Node {
	items := make([]gomponents.Node, 0, len(stats.AverageDurationByType))
	for _, runType := range models.ValidRunTypes {
		avg, ok := stats.AverageDurationByType[runType]
		if !ok {
			continue
		}
		items = append(items, html.Li(gomponents.Text(string(runType)+": "+formatDuration(avg)+" average")))
	}
	if len(items) == 0 {
		return nil
	}
	return html.Div(
		html.Class("card"),
		html.H2(gomponents.Text("Run durations")),
		html.Ul(gomponents.Group(items)),
	)
}

// executionProgressCard renders live per-run progress from the tracker.
func executionProgressCard(progress models.ExecutionProgress) gomponents.Node {
	rows := make([]gomponents.Node, 0, len(progress.Runs))
	for _, run := range progress.Runs {
		batches := "-"
		if run.BatchesTotal > 0 {
			batches = strconv.Itoa(run.BatchesDone) + " / " + strconv.Itoa(run.BatchesTotal)
		}
		rows = append(rows, html.Tr(
			html.Td(gomponents.Text(run.Table.String())),
			html.Td(statusBadge(run.Status)),
			html.Td(gomponents.Text(batches)),
			html.Td(gomponents.Text(strconv.FormatInt(run.RowsProcessed, 10))),
			html.Td(gomponents.Text(formatDuration(run.ReadDuration))),
			html.Td(gomponents.Text(formatDuration(run.MaskDuration))),
			html.Td(gomponents.Text(formatDuration(run.LoadDuration))),
			html.Td(html.Class("wrap"), gomponents.Text(orDashString(run.Message))),
		))
	}

	settled := progress.TablesDone + progress.TablesFailed
	return html.Div(
		html.Class("card table-wrap"),
		html.H2(gomponents.Text(string(progress.RunType)+" "+progress.ExecutionID)),
		html.P(html.Class("muted"), gomponents.Text(
			strconv.Itoa(progress.TablesDone)+" of "+countLabel(progress.TablesTotal, "table")+" done, "+
				strconv.Itoa(progress.TablesFailed)+" failed")),
		progressBar(settled, progress.TablesTotal),
		html.Table(
			html.THead(html.Tr(
				html.Th(gomponents.Text("Table")),
				html.Th(gomponents.Text("Status")),
				html.Th(gomponents.Text("Batches")),
				html.Th(gomponents.Text("Rows")),
				html.Th(gomponents.Text("Read")),
				html.Th(gomponents.Text("Mask")),
				html.Th(gomponents.Text("Load")),
				html.Th(gomponents.Text("Message")),
			)),
			html.TBody(gomponents.Group(rows)),
		),
	)
}

// recentRunsTable wraps runsTable in the quick-filter signal scope.
func recentRunsTable(entries []models.EventLogEntry) gomponents.Node {
	return html.Div(
		data.Signals(map[string]any{"q": ""}),
		quickFilter("Filter by table, status or type"),
		runsTable("Recent runs", entries),
	)
}

func runsTable(title string, entries []models.EventLogEntry) gomponents.Node {
	rows := make([]gomponents.Node, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		dest := "-"
		if e.DestTable != "" && e.RunType == models.RunTypeMaskDeliver {
			dest = e.DestSchema + "." + e.DestTable
		}
		rows = append(rows, html.Tr(
			data.Show(containsExpr(e.SourceTable+" "+string(e.RunStatus)+" "+string(e.RunType))),
			html.Td(html.A(
				html.Href("/ui/monitoring?execution="+e.ExecutionID),
				gomponents.Text(e.RunID),
			)),
			html.Td(gomponents.Text(string(e.RunType))),
			html.Td(statusBadge(e.RunStatus)),
			html.Td(gomponents.Text(e.SourceSchema+"."+e.SourceTable)),
			html.Td(gomponents.Text(dest)),
			html.Td(gomponents.Text(formatTime(e.ExecutionStartTime))),
			html.Td(gomponents.Text(formatDuration(e.Duration()))),
			html.Td(html.Class("wrap"), gomponents.Text(orDash(e.ErrorMessage))),
		))
	}

	return html.Div(
		html.Class("card table-wrap"),
		html.H2(gomponents.Text(title)),
		html.Table(
			html.THead(html.Tr(
				html.Th(gomponents.Text("Run")),
				html.Th(gomponents.Text("Type")),
				html.Th(gomponents.Text("Status")),
				html.Th(gomponents.Text("Source")),
				html.Th(gomponents.Text("Destination")),
				html.Th(gomponents.Text("Started")),
				html.Th(gomponents.Text("Duration")),
				html.Th(gomponents.Text("Error")),
			)),
			html.TBody(gomponents.Group(rows)),
		),
	)
}

func orDashString(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
