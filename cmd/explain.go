package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mickamy/plancost/internal/analyzer"
	"github.com/mickamy/plancost/internal/cost"
	"github.com/mickamy/plancost/internal/explore"
	"github.com/mickamy/plancost/internal/insight"
	"github.com/mickamy/plancost/internal/model"
	"github.com/mickamy/plancost/internal/parser"
	"github.com/mickamy/plancost/internal/planexec"
	"github.com/mickamy/plancost/internal/render/html"
	"github.com/mickamy/plancost/internal/render/tui"
)

var explainFlags struct {
	input      string
	url        string
	database   string
	sqlPath    string
	query      string
	statsPath  string
	mode       string
	out        string
	title      string
	color      bool
	maxDepth   int
	details    bool
	includeCSS bool
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Recompute the cost of every plan node and explain the differences",
	Long: `Reads a plan from --input, or obtains one from the database with --url and --query, then
recomputes each node's cost from relation statistics and reports where it differs from the
cost PostgreSQL estimated.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var exec *planexec.Executor
		if strings.TrimSpace(explainFlags.url) != "" {
			var err error
			exec, err = planexec.Connect(ctx, explainFlags.url, planexec.ConnectOptions{Retries: 3})
			if err != nil {
				return err
			}
			defer exec.Close()
		}

		plan, err := obtainPlan(ctx, exec)
		if err != nil {
			return err
		}
		provider, err := statistics(ctx, explainFlags.statsPath, exec, explainFlags.database)
		if err != nil {
			return err
		}
		analysis, err := analyzer.Analyze(ctx, plan, provider)
		if err != nil {
			return err
		}
		logger.Debug("analyzed plan",
			"nodes", analysis.NodeCount,
			"mismatched", analysis.Mismatched,
			"unavailable", analysis.Unavailable)

		w, closeFn, err := openOutput(cmd, explainFlags.out)
		if err != nil {
			return err
		}
		defer closeFn()

		switch explainFlags.mode {
		case "tui", "":
			return tui.Render(w, analysis, tui.Options{
				EnableColor: explainFlags.color && explainFlags.out == "",
				MaxDepth:    explainFlags.maxDepth,
				ShowDetails: explainFlags.details,
			})
		case "html":
			return html.Render(w, analysis, html.Options{
				Title:         explainFlags.title,
				IncludeStyles: explainFlags.includeCSS,
			})
		case "json":
			return writeJSON(w, newAnalysisDocument(analysis))
		default:
			return fmt.Errorf("unknown mode %q (expected tui, html or json)", explainFlags.mode)
		}
	},
}

func obtainPlan(ctx context.Context, exec *planexec.Executor) (*model.Explain, error) {
	if explainFlags.input != "" {
		return loadPlanFile(explainFlags.input)
	}
	if exec == nil {
		return nil, errors.New("--input or --url is required")
	}
	query, err := readQuery(explainFlags.sqlPath, explainFlags.query)
	if err != nil {
		return nil, err
	}
	payload, err := exec.Explain(ctx, explainFlags.database, query, explore.Configuration{})
	if err != nil {
		return nil, err
	}
	return parser.ParseDocument(payload)
}

type analysisDocument struct {
	TotalCost      float64        `json:"total_cost"`
	ManualTotal    float64        `json:"manual_total"`
	PlanningTimeMs float64        `json:"planning_time_ms"`
	BufferSize     int64          `json:"buffer_size"`
	Matched        int            `json:"matched"`
	Mismatched     int            `json:"mismatched"`
	NoFormula      int            `json:"no_formula"`
	Unavailable    int            `json:"statistics_unavailable"`
	Insights       []string       `json:"insights"`
	Nodes          []nodeDocument `json:"nodes"`
}

type nodeDocument struct {
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	Kind         string   `json:"kind"`
	Status       string   `json:"status"`
	Formula      string   `json:"formula,omitempty"`
	Description  string   `json:"description,omitempty"`
	ManualCost   float64  `json:"manual_cost"`
	ReportedCost float64  `json:"reported_cost"`
	SelfCost     float64  `json:"self_cost"`
	Matches      bool     `json:"matches"`
	Rationale    string   `json:"rationale,omitempty"`
	Error        string   `json:"error,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// newAnalysisDocument flattens the analysis in pre-order; NodeReport links back to its parent and
// cannot be encoded directly.
func newAnalysisDocument(analysis *analyzer.PlanAnalysis) analysisDocument {
	doc := analysisDocument{
		TotalCost:      analysis.TotalCost,
		ManualTotal:    analysis.ManualTotal,
		PlanningTimeMs: analysis.PlanningTimeMs,
		BufferSize:     analysis.BufferSize,
		Matched:        analysis.Matched,
		Mismatched:     analysis.Mismatched,
		NoFormula:      analysis.NoFormula,
		Unavailable:    analysis.Unavailable,
	}
	for _, msg := range insight.BuildMessages(analysis) {
		doc.Insights = append(doc.Insights, msg.Text)
	}
	var walk func(*analyzer.NodeReport)
	walk = func(n *analyzer.NodeReport) {
		node := nodeDocument{
			ID:           n.Node.ID,
			Label:        insight.NodeLabel(n),
			Kind:         n.Kind.String(),
			Status:       n.Status.String(),
			Description:  n.Description,
			ManualCost:   n.ManualCost,
			ReportedCost: n.ReportedCost,
			SelfCost:     n.SelfCost,
			Matches:      n.Matches,
			Rationale:    n.Rationale,
			Warnings:     n.Warnings,
		}
		if n.Status == analyzer.StatusEstimated {
			node.Formula = cost.Render(n.Formula)
		}
		if n.Err != nil {
			node.Error = n.Err.Error()
		}
		doc.Nodes = append(doc.Nodes, node)
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(analysis.Root)
	return doc
}

func init() {
	rootCmd.AddCommand(explainCmd)
	f := explainCmd.Flags()
	f.StringVarP(&explainFlags.input, "input", "i", "", "Path to an EXPLAIN (FORMAT JSON) document")
	f.StringVar(&explainFlags.url, "url", defaultURL(), "PostgreSQL connection string; defaults to $DATABASE_URL")
	f.StringVarP(&explainFlags.database, "database", "d", "", "Database to explain in (defaults to the one in --url)")
	f.StringVar(&explainFlags.sqlPath, "sql", "", "Path to the SQL file to EXPLAIN")
	f.StringVarP(&explainFlags.query, "query", "q", "", "Inline SQL string to EXPLAIN")
	f.StringVar(&explainFlags.statsPath, "stats", "", "Statistics file (YAML or JSON) used instead of the database catalog")
	f.StringVarP(&explainFlags.mode, "mode", "m", "tui", "Output mode: tui, html or json")
	f.StringVarP(&explainFlags.out, "out", "o", "", "Output path (stdout if omitted)")
	f.StringVar(&explainFlags.title, "title", "plancost report", "Report title (HTML)")
	f.BoolVar(&explainFlags.color, "color", true, "Enable ANSI colors for TUI output")
	f.IntVar(&explainFlags.maxDepth, "max-depth", 0, "Limit tree depth (TUI)")
	f.BoolVar(&explainFlags.details, "details", true, "Show cost formulas and rationales (TUI)")
	f.BoolVar(&explainFlags.includeCSS, "css", true, "Include inline styles (HTML)")
}
