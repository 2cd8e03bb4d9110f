package diff

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mickamy/plancost/internal/analyzer"
	"github.com/mickamy/plancost/internal/config"
	"github.com/mickamy/plancost/internal/insight"
)

// Options configures the diff sensitivity.
type Options struct {
	BaseLabel        string
	TargetLabel      string
	MinCostDelta     float64
	MinPercentChange float64
	MaxItems         int
}

// Report summarises the cost delta between two plan analyses.
type Report struct {
	Summary      SummaryDiff      `json:"summary"`
	Regressions  []Entry          `json:"regressions"`
	Improvements []Entry          `json:"improvements"`
	Insights     []insightMessage `json:"insights"`
	Options      Options          `json:"-"`
}

// SummaryDiff covers plan-level differences.
type SummaryDiff struct {
	BaseLabel         string  `json:"base_label"`
	TargetLabel       string  `json:"target_label"`
	BaseTotalCost     float64 `json:"base_total_cost"`
	TargetTotalCost   float64 `json:"target_total_cost"`
	DeltaTotalCost    float64 `json:"delta_total_cost"`
	PercentTotalCost  float64 `json:"percent_total_cost"`
	BaseManualTotal   float64 `json:"base_manual_total"`
	TargetManualTotal float64 `json:"target_manual_total"`
	BasePlanningMs    float64 `json:"base_planning_ms"`
	TargetPlanningMs  float64 `json:"target_planning_ms"`
	BaseNodes         int     `json:"base_nodes"`
	TargetNodes       int     `json:"target_nodes"`
}

// Entry captures the delta for the nodes sharing one signature.
type Entry struct {
	Signature      string  `json:"signature"`
	BaseSelfCost   float64 `json:"base_self_cost"`
	TargetSelfCost float64 `json:"target_self_cost"`
	DeltaSelfCost  float64 `json:"delta_self_cost"`
	PercentChange  float64 `json:"percent_change"`
	BaseManual     float64 `json:"base_manual_cost"`
	TargetManual   float64 `json:"target_manual_cost"`
	BaseCount      int     `json:"base_count"`
	TargetCount    int     `json:"target_count"`
}

type insightMessage struct {
	Severity string `json:"severity"`
	Icon     string `json:"icon"`
	Message  string `json:"message"`
}

// Compare builds a diff report for two plan analyses.
func Compare(base, target *analyzer.PlanAnalysis, opts Options) (*Report, error) {
	if base == nil || base.Root == nil {
		return nil, fmt.Errorf("diff: base analysis missing")
	}
	if target == nil || target.Root == nil {
		return nil, fmt.Errorf("diff: target analysis missing")
	}

	opts = applyDefaults(opts)

	baseAgg := aggregate(base.Root)
	targetAgg := aggregate(target.Root)

	var regressions, improvements []Entry
	for _, sig := range unionKeys(baseAgg, targetAgg) {
		entry := buildEntry(sig, baseAgg[sig], targetAgg[sig])
		if passesRegression(entry, opts) {
			regressions = append(regressions, entry)
		} else if passesImprovement(entry, opts) {
			improvements = append(improvements, entry)
		}
	}

	sort.SliceStable(regressions, func(i, j int) bool {
		return regressions[i].DeltaSelfCost > regressions[j].DeltaSelfCost
	})
	sort.SliceStable(improvements, func(i, j int) bool {
		return improvements[i].DeltaSelfCost < improvements[j].DeltaSelfCost
	})
	if len(regressions) > opts.MaxItems {
		regressions = regressions[:opts.MaxItems]
	}
	if len(improvements) > opts.MaxItems {
		improvements = improvements[:opts.MaxItems]
	}

	report := &Report{
		Summary: SummaryDiff{
			BaseLabel:         opts.BaseLabel,
			TargetLabel:       opts.TargetLabel,
			BaseTotalCost:     base.TotalCost,
			TargetTotalCost:   target.TotalCost,
			DeltaTotalCost:    target.TotalCost - base.TotalCost,
			PercentTotalCost:  percentChange(base.TotalCost, target.TotalCost),
			BaseManualTotal:   base.ManualTotal,
			TargetManualTotal: target.ManualTotal,
			BasePlanningMs:    base.PlanningTimeMs,
			TargetPlanningMs:  target.PlanningTimeMs,
			BaseNodes:         base.NodeCount,
			TargetNodes:       target.NodeCount,
		},
		Regressions:  regressions,
		Improvements: improvements,
		Options:      opts,
	}
	report.Insights = synthesizeInsights(report)
	return report, nil
}

// Markdown renders the report as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# plancost diff\n\n")
	_, _ = fmt.Fprintf(&b, "Comparing **%s** → **%s**\n\n", r.Summary.BaseLabel, r.Summary.TargetLabel)
	b.WriteString("## Summary\n")
	_, _ = fmt.Fprintf(&b, "- Total cost: %s → %s (%+.2f, %+.1f%%)\n",
		insight.FormatCost(r.Summary.BaseTotalCost), insight.FormatCost(r.Summary.TargetTotalCost),
		r.Summary.DeltaTotalCost, r.Summary.PercentTotalCost)
	_, _ = fmt.Fprintf(&b, "- Manual cost: %s → %s\n",
		insight.FormatCost(r.Summary.BaseManualTotal), insight.FormatCost(r.Summary.TargetManualTotal))
	_, _ = fmt.Fprintf(&b, "- Nodes: %d → %d\n\n", r.Summary.BaseNodes, r.Summary.TargetNodes)

	b.WriteString("### Insights\n")
	if len(r.Insights) == 0 {
		b.WriteString("- No notable plan changes detected\n")
	} else {
		for _, msg := range r.Insights {
			_, _ = fmt.Fprintf(&b, "- %s %s\n", msg.Icon, msg.Message)
		}
	}

	b.WriteString("\n### Regressions\n")
	writeTable(&b, r.Regressions)
	b.WriteString("\n### Improvements\n")
	writeTable(&b, r.Improvements)
	return b.String()
}

func writeTable(b *strings.Builder, entries []Entry) {
	if len(entries) == 0 {
		b.WriteString("- None above threshold\n")
		return
	}
	b.WriteString("| Operator | Base self cost | Target self cost | Δ self cost | Δ % | Manual (base → target) |\n")
	b.WriteString("|---|---:|---:|---:|---:|---|\n")
	for _, entry := range entries {
		_, _ = fmt.Fprintf(b, "| %s | %.2f | %.2f | %+.2f | %+.1f%% | %s → %s |\n",
			entry.Signature,
			entry.BaseSelfCost,
			entry.TargetSelfCost,
			entry.DeltaSelfCost,
			entry.PercentChange,
			insight.FormatCost(entry.BaseManual),
			insight.FormatCost(entry.TargetManual))
	}
}

// JSON marshals the diff report into an indented JSON document.
func (r *Report) JSON() ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("nil report")
	}
	type alias Report
	return json.MarshalIndent((*alias)(r), "", "  ")
}

func synthesizeInsights(r *Report) []insightMessage {
	const maxItems = 3
	cfg := config.Active().Diff

	var out []insightMessage
	for i, entry := range r.Regressions {
		if i >= maxItems {
			break
		}
		text := fmt.Sprintf("%s self cost +%.2f (%+.1f%%)", entry.Signature, entry.DeltaSelfCost, entry.PercentChange)
		level, icon := "info", "ℹ️"
		switch {
		case entry.PercentChange >= cfg.CriticalPercent:
			level, icon = "critical", "🔥"
		case entry.PercentChange >= cfg.WarningPercent:
			level, icon = "warning", "⚠️"
		}
		out = append(out, insightMessage{Severity: level, Icon: icon, Message: text})
	}
	for i, entry := range r.Improvements {
		if i >= maxItems {
			break
		}
		text := fmt.Sprintf("%s self cost %.2f (%.1f%%)", entry.Signature, entry.DeltaSelfCost, entry.PercentChange)
		out = append(out, insightMessage{Severity: "improvement", Icon: "✅", Message: text})
	}
	if r.Summary.DeltaTotalCost != 0 && r.Summary.BaseNodes != r.Summary.TargetNodes {
		out = append(out, insightMessage{
			Severity: "info",
			Icon:     "ℹ️",
			Message:  fmt.Sprintf("plan shape changed: %d → %d nodes", r.Summary.BaseNodes, r.Summary.TargetNodes),
		})
	}
	return out
}

type aggregated struct {
	SelfCost   float64
	ManualCost float64
	Count      int
}

func aggregate(root *analyzer.NodeReport) map[string]aggregated {
	result := map[string]aggregated{}
	var walk func(*analyzer.NodeReport)
	walk = func(n *analyzer.NodeReport) {
		sig := signature(n)
		entry := result[sig]
		entry.SelfCost += n.SelfCost
		entry.ManualCost += n.ManualCost
		entry.Count++
		result[sig] = entry
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)
	return result
}

func signature(node *analyzer.NodeReport) string {
	parts := []string{node.Node.NodeType}
	if node.Node.RelationName != "" {
		parts = append(parts, node.Node.RelationName)
	}
	if node.Node.IndexName != "" {
		parts = append(parts, node.Node.IndexName)
	}
	if node.Node.JoinType != "" {
		parts = append(parts, node.Node.JoinType)
	}
	return strings.Join(parts, " · ")
}

func unionKeys(base, target map[string]aggregated) []string {
	seen := map[string]struct{}{}
	for k := range base {
		seen[k] = struct{}{}
	}
	for k := range target {
		seen[k] = struct{}{}
	}
	all := make([]string, 0, len(seen))
	for k := range seen {
		all = append(all, k)
	}
	sort.Strings(all)
	return all
}

func buildEntry(sig string, base, target aggregated) Entry {
	return Entry{
		Signature:      sig,
		BaseSelfCost:   base.SelfCost,
		TargetSelfCost: target.SelfCost,
		DeltaSelfCost:  target.SelfCost - base.SelfCost,
		PercentChange:  percentChange(base.SelfCost, target.SelfCost),
		BaseManual:     base.ManualCost,
		TargetManual:   target.ManualCost,
		BaseCount:      base.Count,
		TargetCount:    target.Count,
	}
}

func passesRegression(entry Entry, opts Options) bool {
	return entry.DeltaSelfCost >= opts.MinCostDelta && entry.PercentChange >= opts.MinPercentChange
}

func passesImprovement(entry Entry, opts Options) bool {
	return entry.DeltaSelfCost <= -opts.MinCostDelta && entry.PercentChange <= -opts.MinPercentChange
}

func percentChange(base, target float64) float64 {
	const eps = 1e-9
	if math.Abs(base) <= eps {
		if math.Abs(target) <= eps {
			return 0
		}
		if target > 0 {
			return 100
		}
		return -100
	}
	return (target - base) / base * 100
}

func applyDefaults(opts Options) Options {
	cfg := config.Active().Diff
	if opts.MinCostDelta <= 0 {
		opts.MinCostDelta = cfg.MinCostDelta
	}
	if opts.MinPercentChange <= 0 {
		opts.MinPercentChange = cfg.MinPercentChange
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = cfg.MaxItems
	}
	if opts.BaseLabel == "" {
		opts.BaseLabel = "base"
	}
	if opts.TargetLabel == "" {
		opts.TargetLabel = "target"
	}
	return opts
}
