package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mickamy/plancost/internal/config"
	"github.com/mickamy/plancost/internal/logging"
)

var (
	configPath   string
	buildDetails string
	logger       = slog.Default()
	closeLogger  = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "plancost",
	Short: "Explain and explore PostgreSQL planner costs",
	Long: `plancost recomputes the cost PostgreSQL reports for each plan node from catalog statistics,
explains where the two disagree, and explores the alternative plans the planner picks when
enable_* switches are turned off.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Apply(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		l, closeFn, err := logging.SetupLogger(config.Active().Logging, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		logger, closeLogger = l, closeFn
		slog.SetDefault(l)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLogger()
	},
}

// Execute runs the CLI and exits non-zero on failure. details describes the build, such as the
// VCS commit, and may be empty.
func Execute(version, details string) {
	rootCmd.Version = version
	buildDetails = details
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to configuration file (JSON or YAML). Falls back to $"+config.EnvPath)
}
