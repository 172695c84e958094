package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/config"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/storage"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue an interrupted run from its database",
	Long: `Resume reopens a run database and continues where the run stopped:
collected listings stay collected, journaled pages that never finished
go back on the frontier, and harvested credentials are reused.

Without --db the most recent run is resumed.

Examples:
  zillow-scraper resume
  zillow-scraper resume --db ./runs/zillow_20260821_101500.db --concurrency 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		if dbPath == "" {
			recent := config.LoadRecent()
			if len(recent) == 0 {
				return errors.New("no --db given and no recent runs recorded")
			}
			dbPath = recent[0].Path
			fmt.Fprintf(os.Stderr, "Resuming most recent run: %s\n", dbPath)
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("run database: %w", err)
		}

		params, err := loadRunParams(dbPath)
		if err != nil {
			return err
		}
		params.DBPath = dbPath

		// Knobs that make sense to change mid-run.
		f := cmd.Flags()
		if f.Changed("concurrency") {
			params.Concurrency, _ = f.GetInt("concurrency")
		}
		if f.Changed("max-items") {
			params.MaxItems, _ = f.GetInt("max-items")
		}
		if f.Changed("proxy") {
			params.ProxyURL, _ = f.GetString("proxy")
		}
		if f.Changed("pg-dsn") {
			params.PostgresDSN, _ = f.GetString("pg-dsn")
		}
		if f.Changed("no-tui") {
			params.NoTUI, _ = f.GetBool("no-tui")
		}
		params.Debug = params.Debug || debug

		logPath := strings.TrimSuffix(dbPath, ".db") + ".log"
		return runScan(cmd.Context(), params, logPath, true)
	},
}

// loadRunParams recovers the parameters the run was started with.
func loadRunParams(dbPath string) (model.Params, error) {
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return model.Params{}, fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	raw, err := store.LoadMeta(metaParams)
	if err != nil {
		return model.Params{}, fmt.Errorf("reading run parameters: %w", err)
	}
	if raw == "" {
		return model.Params{}, fmt.Errorf("%s records no run parameters; only databases written by scan can be resumed", dbPath)
	}
	var p model.Params
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return model.Params{}, fmt.Errorf("decoding run parameters: %w", err)
	}
	return p, nil
}

func init() {
	f := resumeCmd.Flags()
	f.String("db", "", "run database (default: the most recent run)")
	f.Int("concurrency", 10, "max concurrent page fetches")
	f.Int("max-items", 0, "stop collecting new listings after this many (0 = unbounded)")
	f.String("proxy", "", "HTTP/SOCKS5 proxy URL")
	f.String("pg-dsn", "", "Postgres DSN mirroring collected listings")
	f.Bool("no-tui", false, "headless mode: log to stderr instead of the dashboard")

	rootCmd.AddCommand(resumeCmd)
}
