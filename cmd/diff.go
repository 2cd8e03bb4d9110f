package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mickamy/plancost/internal/analyzer"
	"github.com/mickamy/plancost/internal/diff"
	"github.com/mickamy/plancost/internal/planexec"
	"github.com/mickamy/plancost/internal/stats"
)

var diffFlags struct {
	base      string
	target    string
	statsPath string
	url       string
	database  string
	format    string
	out       string
	minDelta  float64
	minPct    float64
	maxItems  int
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the costs of two plans",
	Long: `Analyzes two EXPLAIN (FORMAT JSON) documents against the same statistics and reports the
operators whose reported self cost rose or fell, with their manual costs alongside.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if diffFlags.base == "" || diffFlags.target == "" {
			return fmt.Errorf("--base and --target are required")
		}
		ctx := cmd.Context()

		var exec *planexec.Executor
		if diffFlags.statsPath == "" && strings.TrimSpace(diffFlags.url) != "" {
			var err error
			exec, err = planexec.Connect(ctx, diffFlags.url, planexec.ConnectOptions{Retries: 3})
			if err != nil {
				return err
			}
			defer exec.Close()
		}
		provider, err := statistics(ctx, diffFlags.statsPath, exec, diffFlags.database)
		if err != nil {
			return err
		}

		baseAnalysis, err := analyzeFile(ctx, diffFlags.base, provider)
		if err != nil {
			return fmt.Errorf("load base: %w", err)
		}
		targetAnalysis, err := analyzeFile(ctx, diffFlags.target, provider)
		if err != nil {
			return fmt.Errorf("load target: %w", err)
		}

		report, err := diff.Compare(baseAnalysis, targetAnalysis, diff.Options{
			BaseLabel:        diffFlags.base,
			TargetLabel:      diffFlags.target,
			MinCostDelta:     diffFlags.minDelta,
			MinPercentChange: diffFlags.minPct,
			MaxItems:         diffFlags.maxItems,
		})
		if err != nil {
			return err
		}

		w, closeFn, err := openOutput(cmd, diffFlags.out)
		if err != nil {
			return err
		}
		defer closeFn()

		switch diffFlags.format {
		case "md", "markdown":
			_, err = fmt.Fprint(w, report.Markdown())
			return err
		case "json":
			payload, err := report.JSON()
			if err != nil {
				return err
			}
			_, err = w.Write(append(payload, '\n'))
			return err
		default:
			return fmt.Errorf("unsupported format %q", diffFlags.format)
		}
	},
}

func analyzeFile(ctx context.Context, path string, provider stats.Provider) (*analyzer.PlanAnalysis, error) {
	plan, err := loadPlanFile(path)
	if err != nil {
		return nil, err
	}
	return analyzer.Analyze(ctx, plan, provider)
}

func init() {
	rootCmd.AddCommand(diffCmd)
	f := diffCmd.Flags()
	f.StringVar(&diffFlags.base, "base", "", "Path to baseline EXPLAIN JSON")
	f.StringVar(&diffFlags.target, "target", "", "Path to target EXPLAIN JSON")
	f.StringVar(&diffFlags.statsPath, "stats", "", "Statistics file used instead of the database catalog")
	f.StringVar(&diffFlags.url, "url", defaultURL(), "PostgreSQL connection string used for statistics when --stats is unset")
	f.StringVarP(&diffFlags.database, "database", "d", "", "Database whose catalog provides statistics")
	f.StringVar(&diffFlags.format, "format", "md", "Output format: md or json")
	f.StringVarP(&diffFlags.out, "out", "o", "", "Output path (stdout if omitted)")
	f.Float64Var(&diffFlags.minDelta, "min-delta", 0, "Minimum self cost delta to report (default from config)")
	f.Float64Var(&diffFlags.minPct, "min-percent", 0, "Minimum percent change to report (default from config)")
	f.IntVar(&diffFlags.maxItems, "limit", 0, "Maximum rows per section (default from config)")
}
