package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepDays int

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete events that ended long ago",
	Long: `Delete events whose date is more than the given number of days in the
past. The scrape command runs this automatically after each run when the
auto_delete_old_events setting is "true".

Example:
  kulturkartan sweep --days 90`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().IntVar(&sweepDays, "days", 90, "age cutoff in days")
}

func runSweep(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.Events().DeleteOlderThan(cmd.Context(), sweepDays)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d events older than %d days\n", deleted, sweepDays)
	return nil
}
