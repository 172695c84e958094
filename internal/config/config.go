// Package config resolves run parameters from flags, ZILLOW_*
// environment variables, an optional config file and a .env file, and
// builds the run logger.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// Load builds run parameters. Precedence, highest first: flags set on
// the command line, ZILLOW_* environment variables, the config file,
// flag defaults. The addresses flag names a file; its contents land in
// Params.Addresses.
func Load(flags *pflag.FlagSet, cfgFile string) (model.Params, error) {
	// Values from .env never override variables already exported.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ZILLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("zillow-scraper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.zillow-scraper")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return model.Params{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := v.BindPFlags(flags); err != nil {
		return model.Params{}, fmt.Errorf("binding flags: %w", err)
	}

	p := model.Params{
		Place:          v.GetString("place"),
		North:          v.GetFloat64("north"),
		South:          v.GetFloat64("south"),
		East:           v.GetFloat64("east"),
		West:           v.GetFloat64("west"),
		Zoom:           v.GetInt("zoom"),
		AreaPath:       v.GetString("area"),
		StartURLs:      v.GetStringSlice("start-url"),
		FiltersJSON:    v.GetString("filters"),
		MaxItems:       v.GetInt("max-items"),
		SplitThreshold: v.GetInt("split-threshold"),
		MaxSplitLevel:  v.GetInt("max-level"),
		PagesLimit:     v.GetInt("pages-limit"),
		Concurrency:    v.GetInt("concurrency"),
		BaseURL:        v.GetString("base-url"),
		ProxyURL:       v.GetString("proxy"),
		DBPath:         v.GetString("db"),
		PostgresDSN:    v.GetString("pg-dsn"),
		NoTUI:          v.GetBool("no-tui"),
		Debug:          v.GetBool("debug"),
	}

	if path := v.GetString("addresses"); path != "" {
		addrs, err := LoadAddresses(path)
		if err != nil {
			return model.Params{}, err
		}
		p.Addresses = addrs
	}
	return p, nil
}

// LoadAddresses reads target addresses from a file, one per line.
// Blank lines and lines starting with # are skipped.
func LoadAddresses(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening address list: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading address list: %w", err)
	}
	return out, nil
}
