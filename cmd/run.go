package cmd

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mickamy/plancost/internal/explore"
	"github.com/mickamy/plancost/internal/planexec"
)

var runFlags struct {
	url     string
	sqlPath string
	query   string
	out     string
	analyze bool
	buffers bool
	disable string
	timeout time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute EXPLAIN (FORMAT JSON) for a query and print the plan",
	Long: `Runs EXPLAIN for a query inside a transaction that is always rolled back, optionally with
ANALYZE and BUFFERS, and with the planner switches named by --disable turned off.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		connection := strings.TrimSpace(runFlags.url)
		if connection == "" {
			return errors.New("--url is required or set $DATABASE_URL")
		}
		query, err := readQuery(runFlags.sqlPath, runFlags.query)
		if err != nil {
			return err
		}
		switches, err := explore.ParseSwitches(runFlags.disable)
		if err != nil {
			return err
		}
		var cfg explore.Configuration
		for _, s := range switches {
			cfg.Settings = append(cfg.Settings, explore.Setting{Switch: s})
		}

		result, err := planexec.Run(cmd.Context(), connection, query, planexec.Options{
			Timeout:       timeoutOrDefault(runFlags.timeout),
			Analyze:       runFlags.analyze,
			Buffers:       runFlags.buffers,
			Configuration: cfg,
		})
		if err != nil {
			return err
		}
		logger.Debug("explained query", "configuration", cfg.String(), "bytes", len(result))

		pretty, err := indentJSON(result)
		if err != nil {
			return err
		}
		if runFlags.out == "" {
			_, err = cmd.OutOrStdout().Write(pretty)
			return err
		}
		return os.WriteFile(runFlags.out, pretty, 0o644)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.StringVar(&runFlags.url, "url", defaultURL(), "PostgreSQL connection string; defaults to $DATABASE_URL")
	f.StringVar(&runFlags.sqlPath, "sql", "", "Path to the SQL file to EXPLAIN")
	f.StringVarP(&runFlags.query, "query", "q", "", "Inline SQL string to EXPLAIN")
	f.StringVarP(&runFlags.out, "out", "o", "", "Path to write the resulting JSON (defaults to stdout)")
	f.BoolVar(&runFlags.analyze, "analyze", false, "Execute the statement (EXPLAIN ANALYZE); changes are rolled back")
	f.BoolVar(&runFlags.buffers, "buffers", false, "Include buffer usage (BUFFERS)")
	f.StringVar(&runFlags.disable, "disable", "", "Comma-separated planner switches to turn off, e.g. indexscan,hashjoin")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "Statement timeout, e.g. 45s (defaults to explore.timeout)")
}
