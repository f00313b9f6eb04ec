package ui

import (
	"fmt"
	"net/http"
	"strconv"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/veildata/veil-engine/pkg/models"
)

// Overview renders the landing page: aggregate run counts, the execution in
// flight if there is one, and jump-off cards for the working surfaces.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.open(r)
	flashes := takeFlashes(session)
	if len(flashes) > 0 {
		h.flushSession(w, r, session)
	}

	stats, err := h.runs.Statistics(r.Context())
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	live, hasLive := h.runs.LiveProgress()

	body := []gomponents.Node{
		statisticsGrid(stats),
	}
	if hasLive && !live.Finished() {
		body = append(body, liveBanner(live))
	}
	body = append(body, html.Div(
		html.Class("grid"),
		surfaceCard("Discovery", "Sample warehouse tables and profile their columns for sensitive data.", "/ui/discovery", "Open discovery"),
		surfaceCard("Masking", "Mask profiled tables in place or deliver masked copies to another schema.", "/ui/masking", "Open masking"),
		surfaceCard("Monitoring", "Follow executions run by run, with timings and failure messages.", "/ui/monitoring", "Open monitoring"),
		surfaceCard("Settings", "Configure compliance API credentials and verify connectivity.", "/ui/settings", "Open settings"),
	))

	h.render(w, http.StatusOK, appPage("Overview", "home", flashes, body...))
}

func statisticsGrid(stats *models.RunStatistics) gomponents.Node {
	return html.Div(
		html.Class("grid"),
		statCard("Total runs", stats.TotalRuns),
		statCard("Completed", stats.CompletedRuns),
		statCard("Failed", stats.FailedRuns),
		statCard("Active", stats.ActiveRuns),
	)
}

func statCard(label string, value int) gomponents.Node {
	return html.Div(
		html.Class("card"),
		html.P(html.Class("stat"), gomponents.Text(strconv.Itoa(value))),
		html.P(html.Class("muted"), gomponents.Text(label)),
	)
}

func surfaceCard(title, description, href, linkLabel string) gomponents.Node {
	return html.Div(
		html.Class("card"),
		html.H2(gomponents.Text(title)),
		html.P(gomponents.Text(description)),
		html.A(html.Href(href), gomponents.Text(linkLabel)),
	)
}

func liveBanner(live models.ExecutionProgress) gomponents.Node {
	label := fmt.Sprintf("%s execution in flight: %d of %s finished",
		live.RunType, live.TablesDone+live.TablesFailed, countLabel(live.TablesTotal, "table"))
	return html.Div(
		html.Class("card"),
		html.H2(gomponents.Text("In flight")),
		html.P(gomponents.Text(label)),
		progressBar(live.TablesDone+live.TablesFailed, live.TablesTotal),
		html.A(html.Href("/ui/monitoring?execution="+live.ExecutionID), gomponents.Text("Follow this execution")),
	)
}
