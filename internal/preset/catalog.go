package preset

import (
	"time"

	"github.com/cryptoedge/marketscan/internal/domain/scan"
	"github.com/cryptoedge/marketscan/internal/persistence"
)

// System preset identifiers. These are the only ids the registry treats
// as immutable.
const (
	SystemMomentumBreakout = "momentum_breakout"
	SystemValueDiscovery   = "value_discovery"
)

func ptr[T any](v T) *T { return &v }

// systemCatalog builds the static system preset catalog. Seeded once per
// registry; never written to the store.
func systemCatalog() map[string]persistence.ScanPreset {
	seeded := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	momentum := persistence.ScanPreset{
		ID:          SystemMomentumBreakout,
		Name:        "Momentum Breakout",
		Description: "High-volume movers with strong positive 24h momentum",
		Category:    "momentum",
		Config: scan.Config{
			MinPriceChangePct24h:   ptr(2.0),
			VolumeFilter:           scan.VolumeHigh,
			TrendDirection:         scan.TrendBullish,
			MarketCapRanges:        []scan.MarketCapRange{scan.CapAll},
			AllowedQuoteCurrencies: append([]string(nil), scan.DefaultQuoteCurrencies...),
			MaxResults:             50,
			IsActive:               true,
			CreatedAt:              seeded,
			UpdatedAt:              seeded,
		},
		RecommendedStrategies: []string{"breakout", "momentum"},
		IsSystemPreset:        true,
		IsActive:              true,
		CreatedAt:             seeded,
		UpdatedAt:             seeded,
	}

	value := persistence.ScanPreset{
		ID:          SystemValueDiscovery,
		Name:        "Value Discovery",
		Description: "Flat-to-negative small and mid caps still trading above average volume",
		Category:    "value",
		Config: scan.Config{
			MinPriceChangePct24h:   ptr(-15.0),
			MaxPriceChangePct24h:   ptr(1.0),
			VolumeFilter:           scan.VolumeAboveAverage,
			MinVolume24hUSD:        ptr(500_000.0),
			AvgVolumeMultiplier:    ptr(1.5),
			MarketCapRanges:        []scan.MarketCapRange{scan.CapSmall, scan.CapMid},
			TrendDirection:         scan.TrendAny,
			AllowedQuoteCurrencies: append([]string(nil), scan.DefaultQuoteCurrencies...),
			MaxResults:             50,
			IsActive:               true,
			CreatedAt:              seeded,
			UpdatedAt:              seeded,
		},
		RecommendedStrategies: []string{"swing", "accumulation"},
		IsSystemPreset:        true,
		IsActive:              true,
		CreatedAt:             seeded,
		UpdatedAt:             seeded,
	}

	return map[string]persistence.ScanPreset{
		momentum.ID: momentum,
		value.ID:    value,
	}
}
