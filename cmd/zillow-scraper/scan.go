package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/config"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/portal"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a listing scan over a geographic search region",
	Long: `Scan walks a search region page by page, splitting any viewport the
upstream caps at its result limit and collecting each listing once.

The region comes from --place, explicit --north/--south/--east/--west
bounds, a GeoJSON --area polygon, or seed --start-url values. Search
results only produce output where they match the --addresses candidate
list; detail page seeds are extracted directly.

Each run writes a timestamped database and log under --output. Stop a
run with ctrl-c and continue it later with 'zillow-scraper resume'.

Examples:
  zillow-scraper scan --place "Austin, TX" --addresses targets.txt
  zillow-scraper scan --north 30.52 --south 30.08 --east -97.56 --west -98.05 --addresses targets.txt
  zillow-scraper scan --start-url "https://www.zillow.com/homedetails/123-Main-St/48749425_zpid/" --no-tui`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := config.Load(cmd.Flags(), cfgFile)
		if err != nil {
			return err
		}
		params.Debug = params.Debug || debug

		if params.Place == "" && !params.HasBounds() && params.AreaPath == "" && len(params.StartURLs) == 0 {
			return errors.New("a search region is required: --place, --north/--south/--east/--west, --area or --start-url")
		}
		if len(params.Addresses) == 0 && !hasDetailSeed(params.StartURLs) {
			return errors.New("--addresses is required: search results only feed extraction where they match the candidate list (detail page --start-url seeds are the exception)")
		}

		outputDir, _ := cmd.Flags().GetString("output")
		if params.DBPath == "" {
			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return fmt.Errorf("creating output dir: %w", err)
			}
			ts := time.Now().Format("20060102_150405")
			params.DBPath = filepath.Join(outputDir, fmt.Sprintf("zillow_%s.db", ts))
		} else if dir := filepath.Dir(params.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("creating db dir: %w", err)
			}
		}
		logPath := strings.TrimSuffix(params.DBPath, ".db") + ".log"

		fmt.Fprintf(os.Stderr, "Database: %s\n", params.DBPath)
		fmt.Fprintf(os.Stderr, "Log:      %s\n", logPath)

		return runScan(cmd.Context(), params, logPath, false)
	},
}

func hasDetailSeed(urls []string) bool {
	for _, u := range urls {
		if _, ok := portal.ParseDetailURL(u); ok {
			return true
		}
	}
	return false
}

func init() {
	f := scanCmd.Flags()
	f.String("output", "./runs", "directory for run artifacts when --db is not set")
	f.String("db", "", "run database path (default: <output>/zillow_<timestamp>.db)")
	f.String("place", "", "place name resolved to a bounding box, e.g. \"Austin, TX\"")
	f.Float64("north", 0, "north bound in degrees")
	f.Float64("south", 0, "south bound in degrees")
	f.Float64("east", 0, "east bound in degrees")
	f.Float64("west", 0, "west bound in degrees")
	f.Int("zoom", 0, "map zoom level 1-21 (default: fitted to the region)")
	f.String("area", "", "GeoJSON polygon file; results outside it are dropped")
	f.String("addresses", "", "file of candidate addresses, one per line")
	f.StringSlice("start-url", nil, "seed search or detail page URL (repeatable)")
	f.String("filters", "", "raw filter document as JSON, applied to generated queries")
	f.Int("max-items", 0, "stop collecting new listings after this many (0 = unbounded)")
	f.Int("split-threshold", 500, "result count that triggers viewport subdivision")
	f.Int("max-level", 5, "viewport subdivision depth bound")
	f.Int("pages-limit", 20, "pagination pages per viewport")
	f.Int("concurrency", 10, "max concurrent page fetches")
	f.String("base-url", "", "upstream base URL override")
	f.String("proxy", "", "HTTP/SOCKS5 proxy URL")
	f.String("pg-dsn", "", "Postgres DSN mirroring collected listings")
	f.Bool("no-tui", false, "headless mode: log to stderr instead of the dashboard")

	rootCmd.AddCommand(scanCmd)
}
