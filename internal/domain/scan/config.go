package scan

import (
	"time"
)

// VolumeFilter selects how the volume stage treats 24h quote volume.
type VolumeFilter string

const (
	VolumeNoFilter        VolumeFilter = "NO_FILTER"
	VolumeAboveAverage    VolumeFilter = "ABOVE_AVERAGE"
	VolumeHigh            VolumeFilter = "HIGH_VOLUME"
	VolumeCustomThreshold VolumeFilter = "CUSTOM_THRESHOLD"
)

// TrendDirection is the coarse trend requirement applied by the technical stage.
type TrendDirection string

const (
	TrendBullish  TrendDirection = "BULLISH"
	TrendBearish  TrendDirection = "BEARISH"
	TrendSideways TrendDirection = "SIDEWAYS"
	TrendAny      TrendDirection = "ANY"
)

// MarketCapRange is a coarse USD market-capitalization bucket.
type MarketCapRange string

const (
	CapMicro MarketCapRange = "MICRO"
	CapSmall MarketCapRange = "SMALL"
	CapMid   MarketCapRange = "MID"
	CapLarge MarketCapRange = "LARGE"
	CapMega  MarketCapRange = "MEGA"
	CapAll   MarketCapRange = "ALL"
)

// Bucket boundaries in USD. Each bucket spans [lower bound of previous, limit).
const (
	microCapLimitUSD = 300_000_000.0
	smallCapLimitUSD = 2_000_000_000.0
	midCapLimitUSD   = 10_000_000_000.0
	largeCapLimitUSD = 200_000_000_000.0
)

// Contains reports whether a resolved market cap falls inside the bucket.
// ALL matches everything.
func (r MarketCapRange) Contains(capUSD float64) bool {
	switch r {
	case CapMicro:
		return capUSD < microCapLimitUSD
	case CapSmall:
		return capUSD >= microCapLimitUSD && capUSD < smallCapLimitUSD
	case CapMid:
		return capUSD >= smallCapLimitUSD && capUSD < midCapLimitUSD
	case CapLarge:
		return capUSD >= midCapLimitUSD && capUSD < largeCapLimitUSD
	case CapMega:
		return capUSD >= largeCapLimitUSD
	case CapAll:
		return true
	}
	return false
}

func (f VolumeFilter) valid() bool {
	switch f {
	case VolumeNoFilter, VolumeAboveAverage, VolumeHigh, VolumeCustomThreshold:
		return true
	}
	return false
}

func (d TrendDirection) valid() bool {
	switch d {
	case TrendBullish, TrendBearish, TrendSideways, TrendAny:
		return true
	}
	return false
}

func (r MarketCapRange) valid() bool {
	switch r {
	case CapMicro, CapSmall, CapMid, CapLarge, CapMega, CapAll:
		return true
	}
	return false
}

const defaultMaxResults = 50

// DefaultQuoteCurrencies is the allowed quote set applied when a
// configuration leaves the field empty.
var DefaultQuoteCurrencies = []string{"USDT", "BUSD", "BTC", "ETH"}

// Config is a market scan filter specification. Optional bounds use
// pointers so that "unset" stays distinct from an explicit zero.
type Config struct {
	MinPriceChangePct24h *float64 `json:"min_price_change_pct_24h,omitempty" yaml:"min_price_change_pct_24h,omitempty"`
	MaxPriceChangePct24h *float64 `json:"max_price_change_pct_24h,omitempty" yaml:"max_price_change_pct_24h,omitempty"`
	MinPriceChangePct7d  *float64 `json:"min_price_change_pct_7d,omitempty" yaml:"min_price_change_pct_7d,omitempty"`
	MaxPriceChangePct7d  *float64 `json:"max_price_change_pct_7d,omitempty" yaml:"max_price_change_pct_7d,omitempty"`

	VolumeFilter        VolumeFilter `json:"volume_filter" yaml:"volume_filter"`
	MinVolume24hUSD     *float64     `json:"min_volume_24h_usd,omitempty" yaml:"min_volume_24h_usd,omitempty"`
	AvgVolumeMultiplier *float64     `json:"avg_volume_multiplier,omitempty" yaml:"avg_volume_multiplier,omitempty"`

	MarketCapRanges []MarketCapRange `json:"market_cap_ranges,omitempty" yaml:"market_cap_ranges,omitempty"`
	MinMarketCapUSD *float64         `json:"min_market_cap_usd,omitempty" yaml:"min_market_cap_usd,omitempty"`
	MaxMarketCapUSD *float64         `json:"max_market_cap_usd,omitempty" yaml:"max_market_cap_usd,omitempty"`

	TrendDirection TrendDirection `json:"trend_direction" yaml:"trend_direction"`
	MinRSI         *float64       `json:"min_rsi,omitempty" yaml:"min_rsi,omitempty"`
	MaxRSI         *float64       `json:"max_rsi,omitempty" yaml:"max_rsi,omitempty"`

	ExcludedSymbols     []string `json:"excluded_symbols,omitempty" yaml:"excluded_symbols,omitempty"`
	ExcludedCategories  []string `json:"excluded_categories,omitempty" yaml:"excluded_categories,omitempty"`
	MinDaysSinceListing *int     `json:"min_days_since_listing,omitempty" yaml:"min_days_since_listing,omitempty"`

	AllowedQuoteCurrencies []string `json:"allowed_quote_currencies,omitempty" yaml:"allowed_quote_currencies,omitempty"`

	MaxResults          int  `json:"max_results" yaml:"max_results"`
	ScanIntervalMinutes int  `json:"scan_interval_minutes,omitempty" yaml:"scan_interval_minutes,omitempty"`
	IsActive            bool `json:"is_active" yaml:"is_active"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// WithDefaults returns a copy with zero-valued structural fields replaced
// by their documented defaults. Optional bounds are left untouched.
func (c Config) WithDefaults() Config {
	if c.MaxResults == 0 {
		c.MaxResults = defaultMaxResults
	}
	if len(c.AllowedQuoteCurrencies) == 0 {
		c.AllowedQuoteCurrencies = append([]string(nil), DefaultQuoteCurrencies...)
	}
	if c.VolumeFilter == "" {
		c.VolumeFilter = VolumeNoFilter
	}
	if c.TrendDirection == "" {
		c.TrendDirection = TrendAny
	}
	if len(c.MarketCapRanges) == 0 {
		c.MarketCapRanges = []MarketCapRange{CapAll}
	}
	return c
}

// Validate checks the configuration before any network call is made.
// It returns a *ValidationError carrying one entry per offending field.
func (c Config) Validate() error {
	verr := &ValidationError{}

	checkPair := func(field string, min, max *float64) {
		if min != nil && max != nil && *min >= *max {
			verr.Add(field, "min must be strictly less than max")
		}
	}
	checkPair("price_change_pct_24h", c.MinPriceChangePct24h, c.MaxPriceChangePct24h)
	checkPair("price_change_pct_7d", c.MinPriceChangePct7d, c.MaxPriceChangePct7d)
	checkPair("market_cap_usd", c.MinMarketCapUSD, c.MaxMarketCapUSD)
	checkPair("rsi", c.MinRSI, c.MaxRSI)

	if c.MinRSI != nil && (*c.MinRSI < 0 || *c.MinRSI > 100) {
		verr.Add("min_rsi", "must be within [0,100]")
	}
	if c.MaxRSI != nil && (*c.MaxRSI < 0 || *c.MaxRSI > 100) {
		verr.Add("max_rsi", "must be within [0,100]")
	}

	if !c.VolumeFilter.valid() {
		verr.Add("volume_filter", "unknown volume filter mode")
	}
	if c.VolumeFilter == VolumeCustomThreshold && c.MinVolume24hUSD == nil {
		verr.Add("min_volume_24h_usd", "required when volume_filter is CUSTOM_THRESHOLD")
	}
	if c.MinVolume24hUSD != nil && *c.MinVolume24hUSD < 0 {
		verr.Add("min_volume_24h_usd", "must not be negative")
	}
	if c.AvgVolumeMultiplier != nil && *c.AvgVolumeMultiplier <= 0 {
		verr.Add("avg_volume_multiplier", "must be positive")
	}

	if !c.TrendDirection.valid() {
		verr.Add("trend_direction", "unknown trend direction")
	}
	for _, r := range c.MarketCapRanges {
		if !r.valid() {
			verr.Add("market_cap_ranges", "unknown market cap bucket: "+string(r))
		}
	}

	if c.MinMarketCapUSD != nil && *c.MinMarketCapUSD < 0 {
		verr.Add("min_market_cap_usd", "must not be negative")
	}
	if c.MinDaysSinceListing != nil && *c.MinDaysSinceListing < 0 {
		verr.Add("min_days_since_listing", "must not be negative")
	}

	if c.MaxResults <= 0 {
		verr.Add("max_results", "must be greater than zero")
	}
	if c.ScanIntervalMinutes < 0 {
		verr.Add("scan_interval_minutes", "must not be negative")
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// CapFilterActive reports whether the market-cap stage has any constraint
// to enforce. When false, per-candidate lookups are skipped entirely.
func (c Config) CapFilterActive() bool {
	if c.MinMarketCapUSD != nil || c.MaxMarketCapUSD != nil {
		return true
	}
	if len(c.MarketCapRanges) == 0 {
		return false
	}
	for _, r := range c.MarketCapRanges {
		if r == CapAll {
			return false
		}
	}
	return true
}
