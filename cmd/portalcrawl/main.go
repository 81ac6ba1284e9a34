package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/portalcrawl/pkg/frontier"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "portalcrawl",
	Short: "PortalCrawl - authenticated crawler for internal web portals",
	Long: `PortalCrawl logs into a web portal with a browser session, discovers every
internal page reachable from the landing page and saves the title and
visible text of each one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Log in and crawl the portal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrawl(cmd)
	},
}

var validateLinkCmd = &cobra.Command{
	Use:   "validate-link URL",
	Short: "Check whether a URL is inside the crawl scope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		fragments, _ := cmd.Flags().GetString("fragments")
		marker, _ := cmd.Flags().GetString("logout-marker")

		policy, err := frontier.ParseFragmentPolicy(fragments)
		if err != nil {
			return err
		}
		v := frontier.NewValidator(host, policy)
		v.LogoutMarker = marker

		if link, ok := v.Accept(args[0]); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "internal %s\n", link)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "rejected")
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "portalcrawl %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func init() {
	// Crawl command flags. Unset flags leave the configured value alone.
	f := crawlCmd.Flags()
	f.String("login-url", "", "Login page URL")
	f.String("username", "", "Login username (the password is read from PORTALCRAWL_AUTH_PASSWORD or the config file)")
	f.String("base-host", "", "Host to stay on (default: host of the landing page)")
	f.String("mode", "", "Crawl mode (single-pass, two-pass)")
	f.Duration("delay", 0, "Wait after each page load before reading it")
	f.Int("max-discovery-pages", 0, "Maximum pages visited during discovery")
	f.Int("max-content-pages", 0, "Maximum pages scraped for content (0 for no limit)")
	f.String("driver", "", "Browser driver (chrome, http)")
	f.Bool("headless", true, "Run Chrome without a window")
	f.String("output-dir", "", "Directory for output files")
	f.StringSlice("format", nil, "Record formats (csv, jsonl, sqlite)")
	f.Bool("snapshots", false, "Save a screenshot of each scraped page (chrome driver)")
	f.String("report", "", "Report format printed after the crawl (text, json, markdown)")

	// Validate-link command flags
	validateLinkCmd.Flags().String("host", "", "Base host of the crawl")
	validateLinkCmd.Flags().String("fragments", string(frontier.FragmentStrip), "Fragment policy (strip, reject)")
	validateLinkCmd.Flags().String("logout-marker", frontier.DefaultLogoutMarker, "Substring that marks logout links")
	_ = validateLinkCmd.MarkFlagRequired("host")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(validateLinkCmd)
	rootCmd.AddCommand(versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default: ./portalcrawl.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
