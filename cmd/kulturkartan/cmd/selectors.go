package cmd

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kulturkartan/kulturkartan/internal/domain"
)

//go:embed seed_selectors.json
var seedSelectorsJSON []byte

var selectorsContainer string

var selectorsCmd = &cobra.Command{
	Use:   "selectors",
	Short: "Inspect and manage cached CSS selector bundles",
}

var selectorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all cached selector bundles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSelectorsList(cmd)
	},
}

var selectorsPutCmd = &cobra.Command{
	Use:   "put <url> <items.json>",
	Short: "Install a selector bundle for a URL by hand",
	Long: `Install a selector bundle from a JSON file mapping field names to CSS
selectors. Use this when a site defeats automatic discovery.

The items file maps canonical field names (event_name, date_iso, time,
location, description, target_group, status, booking_info, event_url) to a
CSS selector string, or to {"selector": ..., "attribute": ...} when a
specific attribute carries the value.

Example:
  kulturkartan selectors put https://kulturhuset.se/kalender items.json --container "article.program-item"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSelectorsPut(cmd, args[0], args[1])
	},
}

var selectorsDeleteCmd = &cobra.Command{
	Use:   "delete <url>",
	Short: "Delete the cached bundle for a URL",
	Long: `Delete the cached bundle matching a URL's domain and path. The next
scrape of that URL will rediscover selectors with AI.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSelectorsDelete(cmd, args[0])
	},
}

var selectorsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the known-good bundles for the stock sites",
	Long: `Install the bundled selector configurations for the stock sites
(Stockholm city library, Skansen, Tekniska museet, Armémuseum). Existing
bundles for the same (domain, pattern) are overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSelectorsSeed(cmd)
	},
}

func init() {
	rootCmd.AddCommand(selectorsCmd)
	selectorsCmd.AddCommand(selectorsListCmd)
	selectorsCmd.AddCommand(selectorsPutCmd)
	selectorsCmd.AddCommand(selectorsDeleteCmd)
	selectorsCmd.AddCommand(selectorsSeedCmd)

	selectorsPutCmd.Flags().StringVar(&selectorsContainer, "container", "", "container CSS selector (required)")
	_ = selectorsPutCmd.MarkFlagRequired("container")
}

func runSelectorsList(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bundles, err := store.Selectors().ListAll(cmd.Context())
	if err != nil {
		return err
	}
	if len(bundles) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No selector bundles cached. Run: kulturkartan selectors seed")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tPATTERN\tCONTAINER\tFIELDS\tUPDATED")
	for _, b := range bundles {
		updated := ""
		if !b.LastUpdated.IsZero() {
			updated = b.LastUpdated.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			b.Domain, b.URLPattern, b.ContainerSelector, len(b.Items), updated)
	}
	return w.Flush()
}

func runSelectorsPut(cmd *cobra.Command, url, itemsPath string) error {
	data, err := os.ReadFile(itemsPath)
	if err != nil {
		return fmt.Errorf("read items file: %w", err)
	}
	var items map[string]domain.ItemSelector
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("parse %s: %w", itemsPath, err)
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

	if err := store.Selectors().Put(cmd.Context(), url, selectorsContainer, items); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Installed bundle for %s (%d fields)\n", url, len(items))
	return nil
}

func runSelectorsDelete(cmd *cobra.Command, url string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Selectors().Delete(cmd.Context(), url); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted bundle for %s\n", url)
	return nil
}

func runSelectorsSeed(cmd *cobra.Command) error {
	var bundles []domain.SelectorBundle
	if err := json.Unmarshal(seedSelectorsJSON, &bundles); err != nil {
		return fmt.Errorf("parse embedded seed: %w", err)
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

	for _, b := range bundles {
		if err := store.Selectors().PutBundle(cmd.Context(), b); err != nil {
			return fmt.Errorf("seed %s%s: %w", b.Domain, b.URLPattern, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s%s (%d fields)\n", b.Domain, b.URLPattern, len(b.Items))
	}
	return nil
}
