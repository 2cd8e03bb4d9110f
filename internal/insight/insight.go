package insight

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mickamy/plancost/internal/analyzer"
	"github.com/mickamy/plancost/internal/config"
)

// Severity expresses the urgency of an insight message.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Message represents an observation about a plan's cost reconstruction.
type Message struct {
	Severity Severity
	Text     string
	Anchor   string
}

// BuildMessages derives human-readable messages for a plan analysis.
func BuildMessages(analysis *analyzer.PlanAnalysis) []Message {
	if analysis == nil || analysis.Root == nil {
		return nil
	}
	var out []Message

	if msg := hotspotMessage(analysis); msg != nil {
		out = append(out, *msg)
	}
	out = append(out, mismatchMessages(analysis)...)
	out = append(out, unavailableMessages(analysis)...)
	if msg := noFormulaMessage(analysis); msg != nil {
		out = append(out, *msg)
	}
	return out
}

func hotspotMessage(analysis *analyzer.PlanAnalysis) *Message {
	if len(analysis.HotNodes) == 0 {
		return nil
	}
	cfg := config.Active().Insights
	hot := analysis.HotNodes[0]
	text := fmt.Sprintf("Cost hot spot: %s self cost %s (%.1f%% of plan)",
		CompactLabel(hot), FormatCost(hot.SelfCost), hot.PercentSelf*100)

	severity := SeverityInfo
	switch {
	case hot.PercentSelf >= cfg.HotspotCriticalPercent:
		severity = SeverityCritical
	case hot.PercentSelf >= cfg.HotspotWarningPercent:
		severity = SeverityWarning
	}
	return &Message{Severity: severity, Text: text, Anchor: AnchorID(hot)}
}

func mismatchMessages(analysis *analyzer.PlanAnalysis) []Message {
	cfg := config.Active().Insights
	var msgs []Message
	for i, node := range analysis.DivergentNodes {
		if i >= cfg.MaxMismatchMessages {
			break
		}
		ratio := analyzer.Ratio(node.Report)
		text := fmt.Sprintf("Cost mismatch: %s manual %s, reported %s",
			CompactLabel(node), FormatCost(node.ManualCost), FormatCost(node.ReportedCost))
		if !math.IsInf(ratio, 0) && !math.IsNaN(ratio) {
			text += fmt.Sprintf(" (x%.2f)", ratio)
		}

		severity := SeverityInfo
		spread := math.Max(ratio, 1/ratio)
		switch {
		case math.IsInf(ratio, 1) || spread >= cfg.MismatchCriticalRatio:
			severity = SeverityCritical
		case spread >= cfg.MismatchWarningRatio:
			severity = SeverityWarning
		}
		msgs = append(msgs, Message{Severity: severity, Text: text, Anchor: AnchorID(node)})
	}
	return msgs
}

// unavailableMessages point at refreshing statistics, which is a different fix than a missing
// formula.
func unavailableMessages(analysis *analyzer.PlanAnalysis) []Message {
	var msgs []Message
	walkNodes(analysis.Root, func(node *analyzer.NodeReport) {
		if node.Status != analyzer.StatusStatisticsUnavailable {
			return
		}
		text := fmt.Sprintf("Statistics unavailable: %s", CompactLabel(node))
		if node.Err != nil {
			text += ": " + node.Err.Error()
		}
		text += "; run ANALYZE on the relation or add it to the statistics file"
		msgs = append(msgs, Message{Severity: SeverityWarning, Text: text, Anchor: AnchorID(node)})
	})
	return msgs
}

func noFormulaMessage(analysis *analyzer.PlanAnalysis) *Message {
	if analysis.NoFormula == 0 {
		return nil
	}
	seen := map[string]bool{}
	var kinds []string
	walkNodes(analysis.Root, func(node *analyzer.NodeReport) {
		if node.Status != analyzer.StatusNoFormula {
			return
		}
		name := node.Kind.String()
		if node.Node != nil && node.Node.NodeType != "" {
			name = node.Node.NodeType
		}
		if !seen[name] {
			seen[name] = true
			kinds = append(kinds, name)
		}
	})
	text := fmt.Sprintf("No manual formula for %d of %d nodes (%s); their manual cost is 0",
		analysis.NoFormula, analysis.NodeCount, strings.Join(kinds, ", "))
	return &Message{Severity: SeverityInfo, Text: text}
}

func walkNodes(node *analyzer.NodeReport, fn func(*analyzer.NodeReport)) {
	if node == nil {
		return
	}
	fn(node)
	for _, child := range node.Children {
		walkNodes(child, fn)
	}
}

// NodeLabel builds a descriptive label for a plan node.
func NodeLabel(node *analyzer.NodeReport) string {
	if node == nil || node.Node == nil {
		return ""
	}
	return node.Node.Label()
}

// CompactLabel shortens long labels for inline summaries.
func CompactLabel(node *analyzer.NodeReport) string {
	label := NodeLabel(node)
	if len(label) > 60 {
		return label[:57] + "..."
	}
	return label
}

// FormatCost renders a planner cost with thousands separators and two decimals.
func FormatCost(v float64) string {
	return humanize.CommafWithDigits(math.Round(v*100)/100, 2)
}

// HumanizeBlocks converts a block count into a readable size using 8KiB blocks.
func HumanizeBlocks(blocks int64) string {
	if blocks <= 0 {
		return "0 B"
	}
	const blockSize = 8192
	return humanize.IBytes(uint64(blocks) * blockSize)
}

// NormalizeWhitespace collapses whitespace for use in HTML or text.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// AnchorID derives a stable HTML anchor from the node's position in the plan.
func AnchorID(node *analyzer.NodeReport) string {
	if node == nil || node.Node == nil {
		return ""
	}
	id := node.Node.ID
	if id == "" {
		id = "0"
	}
	return "node-" + strings.ReplaceAll(id, ".", "-")
}
