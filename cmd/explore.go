package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mickamy/plancost/internal/analyzer"
	"github.com/mickamy/plancost/internal/config"
	"github.com/mickamy/plancost/internal/diff"
	"github.com/mickamy/plancost/internal/explore"
	"github.com/mickamy/plancost/internal/planexec"
	"github.com/mickamy/plancost/internal/rank"
	"github.com/mickamy/plancost/internal/render/tui"
)

var exploreFlags struct {
	url             string
	database        string
	sqlPath         string
	query           string
	switches        string
	parallel        int
	bins            int
	includeDefaults bool
	mode            string
	out             string
	color           bool
	metricsFile     string
	listDatabases   bool
	diff            bool
	statsPath       string
}

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Collect the alternative plans produced by turning planner switches off",
	Long: `Explains the query once with the default settings, then once for every combination of the
selected enable_* switches turned off. Distinct plans are kept, ranked by total cost and
placed into bins from cheapest to most expensive.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Active().Explore
		connection := strings.TrimSpace(exploreFlags.url)
		if connection == "" {
			return errors.New("--url is required or set $DATABASE_URL")
		}

		parallel := exploreFlags.parallel
		if parallel <= 0 {
			parallel = cfg.Parallelism
		}
		ctx := cmd.Context()
		exec, err := planexec.Connect(ctx, connection, planexec.ConnectOptions{MaxConns: int32(parallel), Retries: 3})
		if err != nil {
			return err
		}
		defer exec.Close()

		if exploreFlags.listDatabases {
			names, err := exec.Databases(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}

		query, err := readQuery(exploreFlags.sqlPath, exploreFlags.query)
		if err != nil {
			return err
		}
		switches := explore.DefaultSwitches()
		if exploreFlags.switches != "" {
			if switches, err = explore.ParseSwitches(exploreFlags.switches); err != nil {
				return err
			}
		}

		var registry *prometheus.Registry
		var metrics *explore.Metrics
		if exploreFlags.metricsFile != "" {
			registry = prometheus.NewRegistry()
			if metrics, err = explore.NewMetrics(registry); err != nil {
				return err
			}
		}

		explorer := &explore.Explorer{
			Executor:    exec,
			Logger:      logger,
			Metrics:     metrics,
			Parallelism: parallel,
		}
		runCtx, cancel := context.WithTimeout(ctx, timeoutOrDefault(0))
		defer cancel()
		run, err := explorer.Explore(runCtx, explore.Request{
			Query:           query,
			Database:        exploreFlags.database,
			Switches:        switches,
			IncludeDefaults: exploreFlags.includeDefaults || cfg.IncludeDefaults,
		})
		if run == nil {
			return err
		}
		if err != nil {
			logger.Warn("exploration stopped early, showing partial results",
				"run_id", run.RunID, "samples", len(run.Samples), "error", err)
		}

		if registry != nil {
			if err := prometheus.WriteToTextfile(exploreFlags.metricsFile, registry); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
		}

		bins := exploreFlags.bins
		if bins <= 0 {
			bins = cfg.Bins
		}
		ranking, err := rank.Rank(run.Samples, bins)
		if err != nil {
			return err
		}

		w, closeFn, err := openOutput(cmd, exploreFlags.out)
		if err != nil {
			return err
		}
		defer closeFn()

		switch exploreFlags.mode {
		case "tui", "":
			if err := tui.RenderExploration(w, run, ranking, tui.Options{
				EnableColor: exploreFlags.color && exploreFlags.out == "",
			}); err != nil {
				return err
			}
		case "json":
			if err := writeJSON(w, newExplorationDocument(run, ranking)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown mode %q (expected tui or json)", exploreFlags.mode)
		}

		if exploreFlags.diff {
			return writeCheapestDiff(ctx, w, exec, run, ranking)
		}
		return nil
	},
}

// writeCheapestDiff compares the baseline with the cheapest alternative plan.
func writeCheapestDiff(ctx context.Context, w io.Writer, exec *planexec.Executor, run *explore.Exploration, ranking rank.Ranking) error {
	var cheapest *explore.Sample
	for _, id := range ranking.Order {
		for i := range run.Samples {
			if run.Samples[i].ID == id && !run.Samples[i].Baseline {
				cheapest = &run.Samples[i]
				break
			}
		}
		if cheapest != nil {
			break
		}
	}
	if cheapest == nil {
		_, err := fmt.Fprintln(w, "\nNo alternative plan to compare with.")
		return err
	}

	provider, err := statistics(ctx, exploreFlags.statsPath, exec, run.Database)
	if err != nil {
		return err
	}
	base, err := analyzer.Analyze(ctx, run.Baseline().Plan, provider)
	if err != nil {
		return err
	}
	target, err := analyzer.Analyze(ctx, cheapest.Plan, provider)
	if err != nil {
		return err
	}
	report, err := diff.Compare(base, target, diff.Options{BaseLabel: explore.BaselineID, TargetLabel: cheapest.ID})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%s", report.Markdown())
	return err
}

type explorationDocument struct {
	RunID     string            `json:"run_id"`
	Database  string            `json:"database,omitempty"`
	Attempted int               `json:"attempted"`
	Bins      int               `json:"bins"`
	Samples   []sampleDocument  `json:"samples"`
	Dropped   []droppedDocument `json:"dropped,omitempty"`
}

type sampleDocument struct {
	ID            string  `json:"id"`
	Configuration string  `json:"configuration"`
	TotalCost     float64 `json:"total_cost"`
	Bin           int     `json:"bin"`
	Root          string  `json:"root"`
}

type droppedDocument struct {
	Configuration string `json:"configuration"`
	DuplicateOf   string `json:"duplicate_of,omitempty"`
	Error         string `json:"error,omitempty"`
}

func newExplorationDocument(run *explore.Exploration, ranking rank.Ranking) explorationDocument {
	doc := explorationDocument{
		RunID:     run.RunID,
		Database:  run.Database,
		Attempted: run.Attempted,
		Bins:      ranking.NumBins,
	}
	for _, s := range run.Samples {
		doc.Samples = append(doc.Samples, sampleDocument{
			ID:            s.ID,
			Configuration: s.Configuration.String(),
			TotalCost:     s.TotalCost,
			Bin:           ranking.Bins[s.ID],
			Root:          s.Plan.Plan.Label(),
		})
	}
	for _, d := range run.Dropped {
		dropped := droppedDocument{Configuration: d.Configuration.String(), DuplicateOf: d.DuplicateOf}
		if d.Err != nil {
			dropped.Error = d.Err.Error()
		}
		doc.Dropped = append(doc.Dropped, dropped)
	}
	return doc
}

func init() {
	rootCmd.AddCommand(exploreCmd)
	f := exploreCmd.Flags()
	f.StringVar(&exploreFlags.url, "url", defaultURL(), "PostgreSQL connection string; defaults to $DATABASE_URL")
	f.StringVarP(&exploreFlags.database, "database", "d", "", "Database to explore in (defaults to the one in --url)")
	f.StringVar(&exploreFlags.sqlPath, "sql", "", "Path to the SQL file to explore")
	f.StringVarP(&exploreFlags.query, "query", "q", "", "Inline SQL string to explore")
	f.StringVar(&exploreFlags.switches, "switches", "", "Comma-separated planner switches to vary (default: the scan and join switches)")
	f.IntVar(&exploreFlags.parallel, "parallel", 0, "Configurations explained at once (defaults to explore.parallelism)")
	f.IntVar(&exploreFlags.bins, "bins", 0, "Number of cost bins (defaults to explore.bins)")
	f.BoolVar(&exploreFlags.includeDefaults, "include-defaults", false, "Also explain the all-enabled configuration as an alternative")
	f.StringVarP(&exploreFlags.mode, "mode", "m", "tui", "Output mode: tui or json")
	f.StringVarP(&exploreFlags.out, "out", "o", "", "Output path (stdout if omitted)")
	f.BoolVar(&exploreFlags.color, "color", true, "Enable ANSI colors for TUI output")
	f.StringVar(&exploreFlags.metricsFile, "metrics-file", "", "Write Prometheus metrics of the run to this file")
	f.BoolVar(&exploreFlags.listDatabases, "list-databases", false, "List the databases accepting connections and exit")
	f.BoolVar(&exploreFlags.diff, "diff", false, "Append a cost diff between the baseline and the cheapest alternative")
	f.StringVar(&exploreFlags.statsPath, "stats", "", "Statistics file used by --diff instead of the database catalog")
}
