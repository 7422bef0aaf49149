package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/storage"
)

var (
	eventsSearch  string
	eventsVenue   string
	eventsDomain  string
	eventsDate    string
	eventsGroups  []string
	eventsPage    int
	eventsPerPage int
	eventsFormat  string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Browse and manage the event catalog",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events with the catalog's filters",
	Long: `List events from the catalog. Multi-day events appear once per day
within the next 30 days.

Examples:
  # Upcoming events this week
  kulturkartan events list --date "This Week"

  # Children's events at the city library
  kulturkartan events list --venue Stadsbiblioteket --target-group children

  # Everything on a specific date
  kulturkartan events list --date 2025-12-24

  # Full-text search, second page
  kulturkartan events list --search sagostund --page 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEventsList(cmd)
	},
}

var eventsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog analytics",
	Long: `Show upcoming-event counts by venue and target group, and a weekly
timeline of the catalog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEventsStats(cmd)
	},
}

var eventsDeleteCmd = &cobra.Command{
	Use:   "delete <name> <date> <url>",
	Short: "Delete one event by its identity triple",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEventsDelete(cmd, args[0], args[1], args[2])
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsStatsCmd)
	eventsCmd.AddCommand(eventsDeleteCmd)

	eventsListCmd.Flags().StringVar(&eventsSearch, "search", "", "case-insensitive name/description search")
	eventsListCmd.Flags().StringVar(&eventsVenue, "venue", "", "filter by venue (location)")
	eventsListCmd.Flags().StringVar(&eventsDomain, "domain", "", "filter by source domain")
	eventsListCmd.Flags().StringVar(&eventsDate, "date", "", `"This Week", "Next 30 Days", "All Time", or YYYY-MM-DD`)
	eventsListCmd.Flags().StringSliceVar(&eventsGroups, "target-group", nil, "filter by target group (repeatable)")
	eventsListCmd.Flags().IntVar(&eventsPage, "page", 1, "result page")
	eventsListCmd.Flags().IntVar(&eventsPerPage, "per-page", 20, "events per page")
	eventsListCmd.Flags().StringVar(&eventsFormat, "format", "table", "output format (table, json)")
}

func runEventsList(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	groups := make([]domain.TargetGroup, 0, len(eventsGroups))
	for _, g := range eventsGroups {
		groups = append(groups, domain.TargetGroup(g))
	}

	events, total, err := store.Events().Filter(cmd.Context(), storage.FilterQuery{
		Search:       eventsSearch,
		Venue:        eventsVenue,
		Domain:       eventsDomain,
		DateMode:     eventsDate,
		TargetGroups: groups,
		Page:         eventsPage,
		PerPage:      eventsPerPage,
	})
	if err != nil {
		return err
	}

	if eventsFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No events found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTIME\tNAME\tVENUE\tGROUP\tSTATUS")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.DateISO, e.Time, e.EventName, e.Location, e.TargetGroup, e.Status)
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\nPage %d, %d of %d events\n", eventsPage, len(events), total)
	return nil
}

func runEventsStats(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	venues, err := store.Events().CountByVenue(ctx)
	if err != nil {
		return err
	}
	groups, err := store.Events().CountByTargetGroup(ctx)
	if err != nil {
		return err
	}
	weeks, err := store.Events().Timeline(ctx, 8)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Upcoming events by venue:")
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, v := range venues {
		fmt.Fprintf(w, "  %s\t%d\n", v.Venue, v.Count)
	}
	w.Flush()

	fmt.Fprintln(out, "\nUpcoming events by target group:")
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, g := range groups {
		fmt.Fprintf(w, "  %s\t%d\n", g.TargetGroup, g.Count)
	}
	w.Flush()

	fmt.Fprintln(out, "\nTimeline (week starting):")
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, wk := range weeks {
		fmt.Fprintf(w, "  %s\t%d\n", wk.WeekStart, wk.Count)
	}
	w.Flush()
	return nil
}

func runEventsDelete(cmd *cobra.Command, name, date, url string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Events().Delete(cmd.Context(), name, date, url); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q on %s\n", name, date)
	return nil
}
