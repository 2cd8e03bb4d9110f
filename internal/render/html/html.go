package html

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"

	"github.com/mickamy/plancost/internal/analyzer"
	"github.com/mickamy/plancost/internal/insight"
)

// Options configures the HTML renderer.
type Options struct {
	Title         string
	IncludeStyles bool
}

var reportTpl = template.Must(template.New("report").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(reportTemplate))

// Render writes an HTML report with the plan summary and the annotated cost tree.
func Render(w io.Writer, analysis *analyzer.PlanAnalysis, opts Options) error {
	if analysis == nil || analysis.Root == nil {
		return fmt.Errorf("html render: empty analysis")
	}
	if opts.Title == "" {
		opts.Title = "plancost report"
	}
	if err := reportTpl.Execute(w, buildTemplateData(analysis, opts)); err != nil {
		return fmt.Errorf("html render: execute template: %w", err)
	}
	return nil
}

type templateData struct {
	Title         string
	IncludeStyles bool
	Summary       summaryView
	Root          *nodeView
	HotNodes      []listView
	Divergent     []listView
	Insights      []insightView
}

type summaryView struct {
	TotalCost    string
	ManualTotal  string
	PlanningTime string
	NodeCount    int
	Matched      int
	Mismatched   int
	NoFormula    int
	Unavailable  int
	BufferSize   string
}

type listView struct {
	Label  string
	Anchor string
	Value  string
	Extra  string
}

type insightView struct {
	Icon     string
	Severity string
	Text     string
	Anchor   string
}

type nodeView struct {
	Label       string
	Anchor      string
	Status      string
	Reported    string
	Manual      string
	Share       string
	BarWidth    float64
	Heat        float64
	Description string
	Rationale   string
	Warnings    []string
	Children    []*nodeView
	Matches     bool
}

func buildTemplateData(analysis *analyzer.PlanAnalysis, opts Options) templateData {
	messages := insight.BuildMessages(analysis)
	insights := make([]insightView, 0, len(messages))
	for _, msg := range messages {
		insights = append(insights, insightView{
			Icon:     severityIcon(msg.Severity),
			Severity: string(msg.Severity),
			Text:     msg.Text,
			Anchor:   msg.Anchor,
		})
	}

	hot := make([]listView, 0, len(analysis.HotNodes))
	for _, node := range analysis.HotNodes {
		hot = append(hot, listView{
			Label:  insight.NodeLabel(node),
			Anchor: insight.AnchorID(node),
			Value:  "self " + insight.FormatCost(node.SelfCost),
			Extra:  fmt.Sprintf("%.1f%%", node.PercentSelf*100),
		})
	}

	divergent := make([]listView, 0, len(analysis.DivergentNodes))
	for _, node := range analysis.DivergentNodes {
		divergent = append(divergent, listView{
			Label:  insight.NodeLabel(node),
			Anchor: insight.AnchorID(node),
			Value:  fmt.Sprintf("%s vs %s", insight.FormatCost(node.ManualCost), insight.FormatCost(node.ReportedCost)),
			Extra:  formatRatio(node),
		})
	}

	buffers := ""
	if analysis.BufferSize > 0 {
		buffers = insight.HumanizeBlocks(analysis.BufferSize)
	}

	return templateData{
		Title:         opts.Title,
		IncludeStyles: opts.IncludeStyles,
		Summary: summaryView{
			TotalCost:    insight.FormatCost(analysis.TotalCost),
			ManualTotal:  insight.FormatCost(analysis.ManualTotal),
			PlanningTime: fmt.Sprintf("%.3f ms", analysis.PlanningTimeMs),
			NodeCount:    analysis.NodeCount,
			Matched:      analysis.Matched,
			Mismatched:   analysis.Mismatched,
			NoFormula:    analysis.NoFormula,
			Unavailable:  analysis.Unavailable,
			BufferSize:   buffers,
		},
		Root:      buildNodeView(analysis.Root),
		HotNodes:  hot,
		Divergent: divergent,
		Insights:  insights,
	}
}

func buildNodeView(node *analyzer.NodeReport) *nodeView {
	view := &nodeView{
		Label:       insight.NodeLabel(node),
		Anchor:      insight.AnchorID(node),
		Status:      node.Status.String(),
		Reported:    insight.FormatCost(node.ReportedCost),
		Share:       fmt.Sprintf("%.1f%%", node.PercentSelf*100),
		BarWidth:    math.Min(100, math.Max(0, node.PercentSelf*100)),
		Heat:        clamp(node.PercentSelf*2.5, 0, 1),
		Description: node.Description,
		Rationale:   insight.NormalizeWhitespace(node.Rationale),
		Warnings:    append([]string(nil), node.Warnings...),
		Matches:     node.Matches,
	}
	switch node.Status {
	case analyzer.StatusEstimated:
		view.Manual = insight.FormatCost(node.ManualCost) + " " + formatRatio(node)
	case analyzer.StatusNoFormula:
		view.Manual = "no formula"
	default:
		view.Manual = "unknown"
	}
	for _, child := range node.Children {
		view.Children = append(view.Children, buildNodeView(child))
	}
	return view
}

func formatRatio(node *analyzer.NodeReport) string {
	ratio := analyzer.Ratio(node.Report)
	if math.IsInf(ratio, 1) {
		return "(∞)"
	}
	return fmt.Sprintf("(x%.2f)", ratio)
}

func clamp(value, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, value))
}

func severityIcon(sev insight.Severity) string {
	switch sev {
	case insight.SeverityCritical:
		return "🔥"
	case insight.SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
	{{- if .IncludeStyles }}
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif; margin: 0; background: #f5f6f8; color: #1d232e; }
		main { max-width: 1000px; margin: 0 auto; padding: 28px 24px 48px; }
		header.page { background: #1f2b3d; color: #f5f6f8; padding: 28px 24px; }
		header.page h1 { margin: 0 0 8px; font-size: 26px; }
		header.page p { margin: 4px 0; opacity: 0.8; }
		section { margin-top: 28px; }
		.tiles { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 12px; }
		.tile { background: #fff; border-radius: 10px; padding: 14px; box-shadow: 0 4px 14px rgba(13,28,39,0.10); }
		.tile strong { display: block; font-size: 12px; text-transform: uppercase; color: #5b7083; margin-bottom: 6px; }
		.tile span { font-size: 18px; font-weight: 600; }
		.signals { display: grid; grid-template-columns: 1fr 1fr; gap: 12px; }
		.signal { background: #fff; border-radius: 10px; padding: 14px; box-shadow: 0 4px 12px rgba(13,28,39,0.10); }
		.signal h3 { margin: 0 0 8px; font-size: 15px; }
		.signal li { display: grid; grid-template-columns: 1fr auto auto; gap: 10px; font-size: 13px; padding: 6px 0; }
		.insights li { background: #fff; border-radius: 10px; padding: 12px 14px; margin-bottom: 8px; list-style: none; font-size: 14px; }
		.insights li.severity-critical { border-left: 4px solid #e5484d; }
		.insights li.severity-warning { border-left: 4px solid #f5a524; }
		.insights li.severity-info { border-left: 4px solid #c4ccd6; }
		.tree, .tree ul { list-style: none; margin: 0; padding: 0; }
		.tree ul { margin-left: 22px; border-left: 1px dashed rgba(31,43,61,0.2); padding-left: 18px; }
		.node { background: #fff; border-radius: 10px; margin-bottom: 10px; padding: 14px 16px; box-shadow: 0 6px 16px rgba(16,37,58,0.10); border-left: 6px solid rgba(229,72,77,var(--heat)); }
		.node.match { border-left-color: #30a46c; }
		.node-head { display: flex; justify-content: space-between; gap: 12px; align-items: baseline; }
		.node-label { font-weight: 600; }
		.node-costs { font-size: 13px; color: #5b7083; }
		.node-bar { margin-top: 8px; background: rgba(31,43,61,0.08); border-radius: 999px; height: 6px; overflow: hidden; }
		.node-bar span { display: block; height: 100%; background: #e5484d; width: calc(var(--width) * 1%); }
		.node pre { margin: 8px 0 0; font-size: 12px; white-space: pre-wrap; color: #364a63; }
		.node .rationale { margin-top: 6px; font-size: 13px; color: #1f6feb; }
		.node .warning { margin-top: 6px; font-size: 13px; color: #b25600; font-weight: 600; }
	</style>
	{{- end }}
</head>
<body>
	<header class="page">
		<h1>{{.Title}}</h1>
		<p>Total cost {{.Summary.TotalCost}} · Manual {{.Summary.ManualTotal}} · Planning {{.Summary.PlanningTime}}</p>
		<p>Nodes {{.Summary.NodeCount}}{{if .Summary.BufferSize}} · shared_buffers {{.Summary.BufferSize}}{{end}}</p>
	</header>
	<main>
		<section>
			<h2>Summary</h2>
			<div class="tiles">
				<div class="tile"><strong>Matched</strong><span>{{.Summary.Matched}}</span></div>
				<div class="tile"><strong>Mismatched</strong><span>{{.Summary.Mismatched}}</span></div>
				<div class="tile"><strong>No formula</strong><span>{{.Summary.NoFormula}}</span></div>
				<div class="tile"><strong>Statistics unavailable</strong><span>{{.Summary.Unavailable}}</span></div>
			</div>
		</section>

		{{- if .Insights }}
		<section>
			<h2>Insights</h2>
			<ul class="insights">
				{{- range .Insights }}
				<li class="severity-{{.Severity}}">{{.Icon}}
					{{- if .Anchor }} <a href="#{{.Anchor}}">{{.Text}}</a>{{ else }} {{.Text}}{{ end -}}
				</li>
				{{- end }}
			</ul>
		</section>
		{{- end }}

		<section>
			<h2>Signals</h2>
			<div class="signals">
				<div class="signal">
					<h3>Hot nodes</h3>
					<ul>
						{{- range .HotNodes }}
						<li><a href="#{{.Anchor}}">{{.Label}}</a><span>{{.Value}}</span><span>{{.Extra}}</span></li>
						{{- else }}
						<li><span>No node above the self cost threshold</span></li>
						{{- end }}
					</ul>
				</div>
				<div class="signal">
					<h3>Cost divergence</h3>
					<ul>
						{{- range .Divergent }}
						<li><a href="#{{.Anchor}}">{{.Label}}</a><span>{{.Value}}</span><span>{{.Extra}}</span></li>
						{{- else }}
						<li><span>Every estimated node matches PostgreSQL</span></li>
						{{- end }}
					</ul>
				</div>
			</div>
		</section>

		<section>
			<h2>Plan Tree</h2>
			<ul class="tree">
				{{ template "node" .Root }}
			</ul>
		</section>
	</main>

	{{ define "node" }}
	<li>
		<div class="node{{if .Matches}} match{{end}} status-{{.Status}}" id="{{.Anchor}}" style="--heat: {{printf "%.3f" .Heat}};">
			<div class="node-head">
				<span class="node-label">{{.Label}}</span>
				<span class="node-costs">reported {{.Reported}} · manual {{.Manual}} · self {{.Share}}</span>
			</div>
			<div class="node-bar"><span style="--width: {{printf "%.2f" .BarWidth}};"></span></div>
			{{- if .Description }}<pre>{{.Description}}</pre>{{- end }}
			{{- if .Rationale }}<div class="rationale">{{.Rationale}}</div>{{- end }}
			{{- if .Warnings }}<div class="warning">{{ join .Warnings "; " }}</div>{{- end }}
		</div>
		{{- if .Children }}
		<ul>
			{{- range .Children }}
				{{ template "node" . }}
			{{- end }}
		</ul>
		{{- end }}
	</li>
	{{ end }}
</body>
</html>
`
