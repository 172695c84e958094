package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/storage"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a run database to CSV",
	Long: `Export writes the collected listings of a run database to CSV.

Examples:
  zillow-scraper export --db ./runs/zillow_20260821_101500.db
  zillow-scraper export --db data.db --output listings.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		outputPath, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")

		if dbPath == "" {
			return errors.New("--db is required")
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("run database: %w", err)
		}
		if format != "csv" {
			return fmt.Errorf("unsupported format: %s (only csv supported)", format)
		}
		if outputPath == "" {
			dir := filepath.Dir(dbPath)
			base := strings.TrimSuffix(filepath.Base(dbPath), ".db")
			outputPath = filepath.Join(dir, base+".csv")
		}

		store, err := storage.NewStore(dbPath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer store.Close()

		total, err := store.CountListings()
		if err != nil {
			return fmt.Errorf("counting listings: %w", err)
		}
		if total == 0 {
			return errors.New("no listings found in database")
		}

		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()

		w := csv.NewWriter(f)
		w.Write([]string{
			"zpid", "address", "status", "price", "currency",
			"bedrooms", "bathrooms", "living_area", "year_built", "home_type",
			"zestimate", "lat", "lng", "city", "state", "zip_code", "detail_url",
		})

		err = store.Listings(func(l model.Listing) error {
			return w.Write([]string{
				l.ZPID,
				l.Address,
				l.Status,
				num(l.Price),
				l.Currency,
				num(l.Bedrooms),
				num(l.Bathrooms),
				num(l.LivingArea),
				strconv.Itoa(l.YearBuilt),
				l.HomeType,
				num(l.Zestimate),
				fmt.Sprintf("%.6f", l.Lat),
				fmt.Sprintf("%.6f", l.Lng),
				l.City,
				l.State,
				l.ZipCode,
				l.DetailURL,
			})
		})
		if err != nil {
			return fmt.Errorf("reading listings: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("writing csv: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Exported %d listings to %s\n", total, outputPath)
		return nil
	},
}

// num renders a numeric field without trailing zeros, empty when unset.
func num(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func init() {
	f := exportCmd.Flags()
	f.String("db", "", "run database to export (required)")
	f.String("output", "", "output file path (default: next to the database)")
	f.String("format", "csv", "export format: csv")

	rootCmd.AddCommand(exportCmd)
}
