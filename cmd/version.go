package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of plancost",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionShort {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
			return err
		}
		if buildDetails != "" {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "plancost %s (%s)\n", rootCmd.Version, buildDetails)
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "plancost %s\n", rootCmd.Version)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version number")
}
