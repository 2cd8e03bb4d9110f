package analyzer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/mickamy/plancost/internal/model"
	"github.com/mickamy/plancost/internal/stats"
)

// PlanAnalysis is the discrepancy report of a whole plan.
type PlanAnalysis struct {
	Root           *NodeReport
	PlanningTimeMs float64
	// TotalCost is the root's reported total cost.
	TotalCost float64
	// ManualTotal sums the manual costs of estimated nodes.
	ManualTotal float64
	// BufferSize is M(), zero when the provider could not answer.
	BufferSize     int64
	NodeCount      int
	Matched        int
	Mismatched     int
	NoFormula      int
	Unavailable    int
	HotNodes       []*NodeReport
	DivergentNodes []*NodeReport
}

// NodeReport places a node's Report in the plan tree.
type NodeReport struct {
	Report
	Depth  int
	Parent *NodeReport
	// SelfCost is the reported total cost minus the reported total cost of the children.
	SelfCost     float64
	PercentSelf  float64
	PercentTotal float64
	Warnings     []string
	Children     []*NodeReport
}

const (
	hotNodeLimit       = 5
	hotNodeCutoff      = 0.10
	divergentNodeLimit = 5
)

// Analyze explains every node of the plan. A node whose statistics cannot be resolved is
// reported as such without affecting its siblings.
func Analyze(ctx context.Context, explain *model.Explain, provider stats.Provider) (*PlanAnalysis, error) {
	if explain == nil || explain.Plan == nil {
		return nil, fmt.Errorf("analyze: missing plan")
	}
	if provider == nil {
		return nil, fmt.Errorf("analyze: missing statistics provider")
	}

	root := buildReports(ctx, explain.Plan, nil, 0, provider)
	annotateRatios(root, root.ReportedCost)

	all := flatten(root)
	analysis := &PlanAnalysis{
		Root:           root,
		PlanningTimeMs: explain.PlanningTime,
		TotalCost:      root.ReportedCost,
		NodeCount:      len(all),
	}
	if m, err := provider.BufferSize(ctx); err == nil {
		analysis.BufferSize = m
	}

	for _, n := range all {
		n.Warnings = deriveWarnings(n)
		switch n.Status {
		case StatusStatisticsUnavailable:
			analysis.Unavailable++
			continue
		case StatusNoFormula:
			analysis.NoFormula++
			continue
		case StatusEstimated:
			analysis.ManualTotal += n.ManualCost
		}
		if n.Matches {
			analysis.Matched++
		} else {
			analysis.Mismatched++
		}
	}

	analysis.HotNodes = selectHotNodes(all)
	analysis.DivergentNodes = selectDivergentNodes(all)
	return analysis, nil
}

func buildReports(ctx context.Context, node *model.PlanNode, parent *NodeReport, depth int, provider stats.Provider) *NodeReport {
	report := &NodeReport{
		Report: ExplainNode(ctx, node, provider),
		Depth:  depth,
		Parent: parent,
	}

	var childCost float64
	for _, childNode := range node.Children {
		child := buildReports(ctx, childNode, report, depth+1, provider)
		report.Children = append(report.Children, child)
		childCost += child.ReportedCost
	}

	report.SelfCost = math.Max(report.ReportedCost-childCost, 0)
	return report
}

func annotateRatios(node *NodeReport, total float64) {
	if total > 0 {
		node.PercentSelf = node.SelfCost / total
		node.PercentTotal = node.ReportedCost / total
	}
	for _, child := range node.Children {
		annotateRatios(child, total)
	}
}

func flatten(root *NodeReport) []*NodeReport {
	var out []*NodeReport
	var walk func(*NodeReport)
	walk = func(n *NodeReport) {
		out = append(out, n)
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)
	return out
}

func selectHotNodes(nodes []*NodeReport) []*NodeReport {
	candidates := make([]*NodeReport, 0, len(nodes))
	for _, n := range nodes {
		if n.PercentSelf > 0 {
			candidates = append(candidates, n)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PercentSelf > candidates[j].PercentSelf
	})

	limit := min(hotNodeLimit, len(candidates))
	var out []*NodeReport
	for _, candidate := range candidates[:limit] {
		if candidate.PercentSelf < hotNodeCutoff {
			break
		}
		out = append(out, candidate)
	}
	if len(out) == 0 {
		out = candidates[:limit]
	}
	return out
}

// selectDivergentNodes lists estimated nodes that do not match, largest absolute delta first.
func selectDivergentNodes(nodes []*NodeReport) []*NodeReport {
	var out []*NodeReport
	for _, n := range nodes {
		if n.Status == StatusEstimated && !n.Matches {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Delta()) > math.Abs(out[j].Delta())
	})
	return out[:min(divergentNodeLimit, len(out))]
}

// Ratio is reported over manual cost, +Inf when the manual cost is zero and the reported is not.
func Ratio(r Report) float64 {
	const epsilon = 1e-9
	if r.ManualCost <= epsilon {
		if r.ReportedCost <= epsilon {
			return 1
		}
		return math.Inf(1)
	}
	return r.ReportedCost / r.ManualCost
}

func deriveWarnings(n *NodeReport) []string {
	var warnings []string
	switch n.Status {
	case StatusStatisticsUnavailable:
		warnings = append(warnings, "statistics unavailable")
	case StatusEstimated:
		ratio := Ratio(n.Report)
		switch {
		case math.IsInf(ratio, 1):
			warnings = append(warnings, "manual cost is zero")
		case ratio >= 2:
			warnings = append(warnings, fmt.Sprintf("reported cost %.1fx manual", ratio))
		case ratio <= 0.5:
			warnings = append(warnings, fmt.Sprintf("reported cost %.2fx manual", ratio))
		}
	case StatusNoFormula:
	}
	if n.PercentSelf >= 0.20 {
		warnings = append(warnings, fmt.Sprintf("self cost %.1f%% of plan", n.PercentSelf*100))
	}
	return warnings
}
