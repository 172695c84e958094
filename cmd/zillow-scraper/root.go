package main

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "zillow-scraper",
	Short: "Adaptive map-search scraper for Zillow listings",
	Long: `zillow-scraper walks a geographic search the way the site's own map
does: it fetches one results page per viewport, recursively splits any
viewport the upstream caps at its result limit, pages through the rest,
and extracts each listing exactly once across the whole run.

Every run writes a self-contained database holding the collected
listings, the dedup state, the frontier journal and the harvested query
credentials, so an interrupted scan resumes where it stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./zillow-scraper.yaml or ~/.zillow-scraper)",
	)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose logging")
}
