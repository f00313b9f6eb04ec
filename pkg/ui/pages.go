package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	gomponents "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	html "maragu.dev/gomponents/html"

	"github.com/veildata/veil-engine/pkg/models"
)

type navItem struct {
	Label string
	Href  string
	Key   string
}

var navItems = []navItem{
	{Label: "Overview", Href: "/ui", Key: "home"},
	{Label: "Discovery", Href: "/ui/discovery", Key: "discovery"},
	{Label: "Masking", Href: "/ui/masking", Key: "masking"},
	{Label: "Monitoring", Href: "/ui/monitoring", Key: "monitoring"},
	{Label: "Settings", Href: "/ui/settings", Key: "settings"},
}

func appPage(title, active string, flashes []flash, body ...gomponents.Node) gomponents.Node {
	return pageShell(title, active, nil, flashes, body...)
}

// autoRefreshPage is appPage plus a meta refresh, for pages that follow an
// execution still in flight.
func autoRefreshPage(title, active string, seconds int, flashes []flash, body ...gomponents.Node) gomponents.Node {
	refresh := html.Meta(
		gomponents.Attr("http-equiv", "refresh"),
		html.Content(strconv.Itoa(seconds)),
	)
	return pageShell(title, active, refresh, flashes, body...)
}

func pageShell(title, active string, extraHead gomponents.Node, flashes []flash, body ...gomponents.Node) gomponents.Node {
	nav := make([]gomponents.Node, 0, len(navItems))
	for _, item := range navItems {
		className := ""
		if item.Key == active {
			className = "active"
		}
		nav = append(nav, html.A(html.Href(item.Href), html.Class(className), gomponents.Text(item.Label)))
	}

	return html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
			html.TitleEl(gomponents.Text(title+" | Veil Engine")),
			html.Link(html.Rel("stylesheet"), html.Href("/ui/static/app.css")),
			html.Script(
				html.Type("module"),
				html.Src("https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"),
			),
			extraHead,
		),
		html.Body(
			html.Main(
				html.Class("layout"),
				html.Div(
					html.Class("topbar"),
					html.Div(
						html.Strong(gomponents.Text("Veil Engine")),
						html.P(html.Class("muted"), gomponents.Text("Data discovery and masking")),
					),
				),
				html.Nav(html.Class("nav"), gomponents.Group(nav)),
				html.H1(html.Class("page-title"), gomponents.Text(title)),
				flashBanners(flashes),
				gomponents.Group(body),
			),
		),
	)
}

func errorPage(title, message string) gomponents.Node {
	return html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
			html.TitleEl(gomponents.Text(title+" | Veil Engine")),
			html.Link(html.Rel("stylesheet"), html.Href("/ui/static/app.css")),
		),
		html.Body(
			html.Main(
				html.Class("layout"),
				html.H1(html.Class("page-title"), gomponents.Text(title)),
				html.P(gomponents.Text(message)),
				html.P(html.A(html.Href("/ui"), gomponents.Text("Back to overview"))),
			),
		),
	)
}

func flashBanners(flashes []flash) gomponents.Node {
	if len(flashes) == 0 {
		return nil
	}
	nodes := make([]gomponents.Node, 0, len(flashes))
	for _, f := range flashes {
		nodes = append(nodes, html.Div(html.Class("flash "+f.Kind), gomponents.Text(f.Text)))
	}
	return gomponents.Group(nodes)
}

// quickFilter is the signal-backed filter input; rows opt in with
// data.Show(containsExpr(...)).
func quickFilter(placeholder string) gomponents.Node {
	return html.Div(
		html.Class("card"),
		html.Label(gomponents.Text("Quick filter")),
		html.Input(html.Type("text"), html.Placeholder(placeholder), data.Bind("q")),
	)
}

func containsExpr(value string) string {
	lower := strings.ToLower(value)
	return "$q === '' || " + strconv.Quote(lower) + ".includes($q.toLowerCase())"
}

func statusBadge(status models.RunStatus) gomponents.Node {
	class := "status status-" + strings.ToLower(string(status))
	return html.Span(html.Class(class), gomponents.Text(string(status)))
}

func progressBar(done, total int) gomponents.Node {
	pct := 0
	if total > 0 {
		pct = done * 100 / total
	}
	return html.Div(
		html.Class("progress-bar"),
		html.Span(html.Style(fmt.Sprintf("width: %d%%", pct))),
	)
}

// countLabel renders "1 table" or "3 tables".
func countLabel(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(noun))
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format(time.RFC3339)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Format(time.RFC3339)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func orDash(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "-"
	}
	return *v
}
