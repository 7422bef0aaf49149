package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	logsLimit     int
	logsOlderThan int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect and prune scrape run logs",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogsList(cmd)
	},
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete run logs older than a cutoff",
	Long: `Delete run logs older than the given number of days.

Example:
  kulturkartan logs clear --older-than 90`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogsClear(cmd)
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsClearCmd)

	logsListCmd.Flags().IntVar(&logsLimit, "limit", 20, "max runs to show (0 = all)")
	logsClearCmd.Flags().IntVar(&logsOlderThan, "older-than", 90, "age cutoff in days")
}

func runLogsList(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.RunLogs().List(cmd.Context(), logsLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tMODE\tSTATUS\tEVENTS\tFAILURES\tWARNINGS\tID")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04"), e.Mode, e.Status,
			e.EventsFound, e.Failures, len(e.Warnings), e.ID)
	}
	return w.Flush()
}

func runLogsClear(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.RunLogs().ClearOlderThan(cmd.Context(), logsOlderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d run logs older than %d days\n", deleted, logsOlderThan)
	return nil
}
