package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cryptoedge/marketscan/internal/application"
	"github.com/cryptoedge/marketscan/internal/data/binance"
	"github.com/cryptoedge/marketscan/internal/data/cache"
	"github.com/cryptoedge/marketscan/internal/data/coingecko"
	"github.com/cryptoedge/marketscan/internal/domain/scan"
	"github.com/cryptoedge/marketscan/internal/persistence"
	"github.com/cryptoedge/marketscan/internal/persistence/memstore"
	"github.com/cryptoedge/marketscan/internal/persistence/postgres"
	"github.com/cryptoedge/marketscan/internal/preset"
	"github.com/cryptoedge/marketscan/internal/scan/pipeline"
)

const (
	appName = "marketscan"
	version = "v1.2.0"
)

var (
	configPath string
	callerID   string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Scan exchange markets for opportunities matching a filter preset",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config")
	rootCmd.PersistentFlags().StringVar(&callerID, "caller", "cli", "caller id used for preset ownership")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newPresetsCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newScanCmd() *cobra.Command {
	var (
		presetID     string
		minChange24h float64
		maxChange24h float64
		volumeFilter string
		minVolume    float64
		trend        string
		maxResults   int
		quotes       []string
		exclude      []string
		timeoutSec   int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one market scan",
		Long:  "Run a market scan from a stored preset or from flag-built filter configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSec)*time.Second)
			defer cancel()

			var summary *scan.Summary
			if presetID != "" {
				summary, err = orch.ExecutePreset(ctx, presetID, callerID)
			} else {
				cfg := scan.Config{
					VolumeFilter:           scan.VolumeFilter(volumeFilter),
					TrendDirection:         scan.TrendDirection(trend),
					MaxResults:             maxResults,
					AllowedQuoteCurrencies: quotes,
					ExcludedSymbols:        exclude,
					IsActive:               true,
				}
				if cmd.Flags().Changed("min-change-24h") {
					cfg.MinPriceChangePct24h = &minChange24h
				}
				if cmd.Flags().Changed("max-change-24h") {
					cfg.MaxPriceChangePct24h = &maxChange24h
				}
				if cmd.Flags().Changed("min-volume") {
					cfg.MinVolume24hUSD = &minVolume
				}
				summary, err = orch.ExecuteScan(ctx, cfg, callerID)
			}
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}

	cmd.Flags().StringVar(&presetID, "preset", "", "preset id to execute")
	cmd.Flags().Float64Var(&minChange24h, "min-change-24h", 0, "minimum 24h change percent")
	cmd.Flags().Float64Var(&maxChange24h, "max-change-24h", 0, "maximum 24h change percent")
	cmd.Flags().StringVar(&volumeFilter, "volume-filter", string(scan.VolumeNoFilter), "volume filter mode")
	cmd.Flags().Float64Var(&minVolume, "min-volume", 0, "minimum 24h quote volume in USD")
	cmd.Flags().StringVar(&trend, "trend", string(scan.TrendAny), "trend direction requirement")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "result list cap (default 50)")
	cmd.Flags().StringSliceVar(&quotes, "quote", nil, "allowed quote currencies")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "excluded symbols or base assets")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 60, "scan deadline in seconds")
	return cmd
}

func newPresetsCmd() *cobra.Command {
	var includeSystem bool

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List presets visible to the caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := buildRegistry()
			if err != nil {
				return err
			}
			presets, err := registry.List(cmd.Context(), callerID, includeSystem)
			if err != nil {
				return err
			}
			return printJSON(presets)
		},
	}
	listCmd.Flags().BoolVar(&includeSystem, "system", true, "include system presets")

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage scan presets",
	}
	cmd.AddCommand(listCmd)
	return cmd
}

func buildRegistry() (*preset.Registry, error) {
	cfg, err := application.Load(configPath)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	return preset.NewRegistry(store), nil
}

func buildOrchestrator() (*application.Orchestrator, error) {
	cfg, err := application.Load(configPath)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	registry := preset.NewRegistry(store)

	tickers := binance.NewClient(binance.Config{
		BaseURL:        cfg.Exchange.BaseURL,
		RequestTimeout: cfg.ExchangeTimeout(),
		RateLimitRPS:   cfg.Exchange.RateLimitRPS,
		RateLimitBurst: cfg.Exchange.RateLimitBurst,
	})

	caps := coingecko.NewClient(coingecko.Config{
		BaseURL:        cfg.MarketCap.BaseURL,
		RateLimitRPS:   cfg.MarketCap.RateLimitRPS,
		RateLimitBurst: cfg.MarketCap.RateLimitBurst,
		CacheTTL:       cfg.MarketCapCacheTTL(),
	}, cache.New(cfg.Cache.RedisAddr, cfg.Cache.RedisDB))

	pipe := pipeline.New(caps,
		pipeline.WithLookupWorkers(cfg.MarketCap.LookupWorkers),
		pipeline.WithLookupTimeout(cfg.LookupTimeout()),
	)

	return application.NewOrchestrator(tickers, registry, pipe), nil
}

func buildStore(cfg *application.Config) (persistence.PresetStore, error) {
	if cfg.Postgres.DSN == "" {
		log.Debug().Msg("no postgres DSN configured, using in-memory preset store")
		return memstore.New(), nil
	}

	db, err := sqlx.Connect("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout())
	defer cancel()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}

	return postgres.NewPresetStore(db, cfg.QueryTimeout()), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
