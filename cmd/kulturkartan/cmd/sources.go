package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sourcesName string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the source URLs the scraper visits",
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a source URL (enabled by default)",
	Long: `Add a source URL to the scrape rotation. Adding an existing URL
updates its name instead of duplicating it.

Examples:
  kulturkartan sources add https://biblioteket.stockholm.se/evenemang --name "Stockholms stadsbibliotek"
  kulturkartan sources add https://skansen.se/en/calendar/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSourcesAdd(cmd, args[0])
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSourcesList(cmd)
	},
}

var sourcesEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSourcesSetEnabled(cmd, args[0], true)
	},
}

var sourcesDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a source without deleting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSourcesSetEnabled(cmd, args[0], false)
	},
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSourcesDelete(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesEnableCmd)
	sourcesCmd.AddCommand(sourcesDisableCmd)
	sourcesCmd.AddCommand(sourcesDeleteCmd)

	sourcesAddCmd.Flags().StringVar(&sourcesName, "name", "", "display name for the source")
}

func runSourcesAdd(cmd *cobra.Command, url string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	src, err := store.Sources().Add(cmd.Context(), url, sourcesName)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added source %d: %s\n", src.ID, src.URL)
	return nil
}

func runSourcesList(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sources, err := store.Sources().ListAll(cmd.Context())
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sources configured. Add one with: kulturkartan sources add <url>")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENABLED\tNAME\tURL")
	for _, s := range sources {
		fmt.Fprintf(w, "%d\t%t\t%s\t%s\n", s.ID, s.Enabled, s.Name, s.URL)
	}
	return w.Flush()
}

func runSourcesSetEnabled(cmd *cobra.Command, idArg string, enabled bool) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid source id %q", idArg)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Sources().SetEnabled(cmd.Context(), id, enabled); err != nil {
		return err
	}
	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Source %d %s\n", id, state)
	return nil
}

func runSourcesDelete(cmd *cobra.Command, idArg string) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid source id %q", idArg)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Sources().Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Source %d deleted\n", id)
	return nil
}
