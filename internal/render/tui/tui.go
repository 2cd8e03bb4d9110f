package tui

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/fatih/color"

	"github.com/mickamy/plancost/internal/analyzer"
	"github.com/mickamy/plancost/internal/explore"
	"github.com/mickamy/plancost/internal/insight"
	"github.com/mickamy/plancost/internal/rank"
)

// Options controls how the TUI renderer behaves.
type Options struct {
	EnableColor bool
	MaxDepth    int
	// ShowDetails prints the cost description and rationale under each node.
	ShowDetails bool
	BarWidth    int
}

type palette struct {
	red, yellow, cyan, green, faint *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
		cyan:   color.New(color.FgCyan),
		green:  color.New(color.FgGreen),
		faint:  color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.red, p.yellow, p.cyan, p.green, p.faint} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Render prints an ASCII tree comparing manual and reported costs node by node.
func Render(w io.Writer, analysis *analyzer.PlanAnalysis, opts Options) error {
	if w == nil {
		return errors.New("tui: writer is nil")
	}
	if analysis == nil || analysis.Root == nil {
		return errors.New("tui: empty analysis")
	}
	if opts.BarWidth <= 0 {
		opts.BarWidth = 20
	}
	p := newPalette(opts.EnableColor)

	_, _ = fmt.Fprintf(w, "Total cost %s (manual %s, planning %.3f ms)\n",
		insight.FormatCost(analysis.TotalCost), insight.FormatCost(analysis.ManualTotal), analysis.PlanningTimeMs)
	if analysis.BufferSize > 0 {
		_, _ = fmt.Fprintf(w, "shared_buffers %s\n", insight.HumanizeBlocks(analysis.BufferSize))
	}
	_, _ = fmt.Fprintf(w, "Nodes %d | matched %d | mismatched %d | no formula %d | statistics unavailable %d\n\n",
		analysis.NodeCount, analysis.Matched, analysis.Mismatched, analysis.NoFormula, analysis.Unavailable)

	renderInsights(w, analysis, p)

	_, _ = fmt.Fprintf(w, "%s\n", renderLine(analysis.Root, opts, p))
	renderDetails(w, analysis.Root, "    ", opts, p)
	printChildren(w, analysis.Root, "", opts, p)
	return nil
}

func printChildren(w io.Writer, parent *analyzer.NodeReport, prefix string, opts Options, p palette) {
	for i, child := range parent.Children {
		renderBranch(w, child, prefix, i == len(parent.Children)-1, opts, p)
	}
}

func renderBranch(w io.Writer, node *analyzer.NodeReport, prefix string, isLast bool, opts Options, p palette) {
	connector := "|-- "
	childPrefix := prefix + "|   "
	if isLast {
		connector = "`-- "
		childPrefix = prefix + "    "
	}

	_, _ = fmt.Fprintf(w, "%s%s%s\n", prefix, connector, renderLine(node, opts, p))
	renderDetails(w, node, childPrefix, opts, p)

	if opts.MaxDepth > 0 && node.Depth >= opts.MaxDepth {
		if len(node.Children) > 0 {
			_, _ = fmt.Fprintf(w, "%s`-- ... (%d more nodes)\n", childPrefix, countDescendants(node))
		}
		return
	}
	printChildren(w, node, childPrefix, opts, p)
}

func renderLine(node *analyzer.NodeReport, opts Options, p palette) string {
	bar := drawBar(node.PercentSelf, opts.BarWidth)
	if c := heatColor(node.PercentSelf, p); c != nil {
		bar = c.Sprint(bar)
	}

	parts := []string{
		insight.NodeLabel(node),
		"reported " + insight.FormatCost(node.ReportedCost),
		manualText(node, p),
		fmt.Sprintf("self %5.1f%%", node.PercentSelf*100),
		bar,
	}
	line := strings.Join(parts, " | ")
	if len(node.Warnings) > 0 {
		line += " " + p.yellow.Sprint("["+strings.Join(node.Warnings, "; ")+"]")
	}
	return line
}

func manualText(node *analyzer.NodeReport, p palette) string {
	switch node.Status {
	case analyzer.StatusStatisticsUnavailable:
		return p.red.Sprint("manual ?")
	case analyzer.StatusNoFormula:
		return p.faint.Sprint("manual n/a")
	}
	text := "manual " + insight.FormatCost(node.ManualCost)
	if node.Matches {
		return p.green.Sprint(text + " =")
	}
	ratio := analyzer.Ratio(node.Report)
	if math.IsInf(ratio, 1) {
		return p.red.Sprint(text + " (∞)")
	}
	return p.yellow.Sprint(fmt.Sprintf("%s (x%.2f)", text, ratio))
}

func renderDetails(w io.Writer, node *analyzer.NodeReport, prefix string, opts Options, p palette) {
	if !opts.ShowDetails {
		return
	}
	for _, line := range strings.Split(node.Description, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s  %s\n", prefix, p.faint.Sprint(line))
	}
	if node.Rationale != "" {
		_, _ = fmt.Fprintf(w, "%s  %s\n", prefix, p.cyan.Sprint(insight.NormalizeWhitespace(node.Rationale)))
	}
}

func renderInsights(w io.Writer, analysis *analyzer.PlanAnalysis, p palette) {
	messages := insight.BuildMessages(analysis)
	if len(messages) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "Insights:")
	for _, msg := range messages {
		_, _ = fmt.Fprintf(w, "  - %s %s\n", severityIcon(msg.Severity), msg.Text)
	}
	_, _ = fmt.Fprintln(w)
}

// RenderExploration lists the samples of an exploration cheapest first, each with its bin.
func RenderExploration(w io.Writer, run *explore.Exploration, ranking rank.Ranking, opts Options) error {
	if w == nil {
		return errors.New("tui: writer is nil")
	}
	if run == nil || len(run.Samples) == 0 {
		return errors.New("tui: empty exploration")
	}
	if opts.BarWidth <= 0 {
		opts.BarWidth = ranking.NumBins
	}
	p := newPalette(opts.EnableColor)

	byID := make(map[string]explore.Sample, len(run.Samples))
	width := 0
	for _, s := range run.Samples {
		byID[s.ID] = s
		width = max(width, len(s.ID))
	}

	_, _ = fmt.Fprintf(w, "Exploration %s", run.RunID)
	if run.Database != "" {
		_, _ = fmt.Fprintf(w, " on %s", run.Database)
	}
	_, _ = fmt.Fprintf(w, "\n%d plans from %d configurations (%d dropped), costs %s to %s in %d bins\n\n",
		len(run.Samples), run.Attempted, len(run.Dropped),
		insight.FormatCost(ranking.Min), insight.FormatCost(ranking.Max), ranking.NumBins)

	for _, id := range ranking.Order {
		s, ok := byID[id]
		if !ok {
			continue
		}
		bin := ranking.Bins[id]
		ratio := 0.0
		if ranking.NumBins > 1 {
			ratio = float64(bin) / float64(ranking.NumBins-1)
		}
		bar := drawBar(ratio, opts.BarWidth)
		if c := heatColor(ratio, p); c != nil {
			bar = c.Sprint(bar)
		}
		label := fmt.Sprintf("%-*s", width, s.ID)
		if s.Baseline {
			label = p.cyan.Sprint(label)
		}
		root := ""
		if s.Plan != nil && s.Plan.Plan != nil {
			root = s.Plan.Plan.Label()
		}
		_, _ = fmt.Fprintf(w, "%s  bin %2d %s  cost %s | %s | %s\n",
			label, bin, bar, insight.FormatCost(s.TotalCost), s.Configuration, root)
	}

	if len(run.Dropped) > 0 {
		_, _ = fmt.Fprintln(w, "\nDropped:")
		for _, d := range run.Dropped {
			reason := "duplicate of " + d.DuplicateOf
			if d.Err != nil {
				reason = p.yellow.Sprint(d.Err.Error())
			}
			_, _ = fmt.Fprintf(w, "  - %s: %s\n", d.Configuration, reason)
		}
	}
	return nil
}

func drawBar(ratio float64, width int) string {
	if width <= 0 {
		return ""
	}
	clamped := math.Min(math.Max(ratio, 0), 1)
	fill := int(math.Round(clamped * float64(width)))
	if clamped > 0 && fill == 0 {
		fill = 1
	}
	return strings.Repeat("#", fill) + strings.Repeat("-", width-fill)
}

func heatColor(ratio float64, p palette) *color.Color {
	switch {
	case ratio >= 0.40:
		return p.red
	case ratio >= 0.20:
		return p.yellow
	case ratio >= 0.10:
		return p.cyan
	default:
		return nil
	}
}

func countDescendants(node *analyzer.NodeReport) int {
	total := 0
	var walk func(*analyzer.NodeReport)
	walk = func(n *analyzer.NodeReport) {
		for _, child := range n.Children {
			total++
			walk(child)
		}
	}
	walk(node)
	return total
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
