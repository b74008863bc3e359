package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func TestWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()

	assert.Equal(t, 50, cfg.MaxResults)
	assert.Equal(t, DefaultQuoteCurrencies, cfg.AllowedQuoteCurrencies)
	assert.Equal(t, VolumeNoFilter, cfg.VolumeFilter)
	assert.Equal(t, TrendAny, cfg.TrendDirection)
	assert.Equal(t, []MarketCapRange{CapAll}, cfg.MarketCapRanges)
}

func TestWithDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{
		MaxResults:             5,
		AllowedQuoteCurrencies: []string{"BTC"},
	}.WithDefaults()

	assert.Equal(t, 5, cfg.MaxResults)
	assert.Equal(t, []string{"BTC"}, cfg.AllowedQuoteCurrencies)
}

func TestValidate_InvertedBoundsListsField(t *testing.T) {
	cfg := Config{
		MinPriceChangePct24h: fptr(10),
		MaxPriceChangePct24h: fptr(5),
	}.WithDefaults()

	err := cfg.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "price_change_pct_24h", verr.Fields[0].Field)
}

func TestValidate_CollectsMultipleFieldErrors(t *testing.T) {
	cfg := Config{
		MinRSI:       fptr(80),
		MaxRSI:       fptr(20),
		VolumeFilter: "SOMETIMES",
		MaxResults:   -1,
	}
	cfg.TrendDirection = TrendAny
	cfg.MarketCapRanges = []MarketCapRange{CapAll}
	cfg.AllowedQuoteCurrencies = DefaultQuoteCurrencies

	err := cfg.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make(map[string]bool)
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["rsi"])
	assert.True(t, fields["volume_filter"])
	assert.True(t, fields["max_results"])
}

func TestValidate_ZeroBoundIsDistinctFromUnset(t *testing.T) {
	// An explicit zero lower bound is a real constraint, not "unset".
	cfg := Config{
		MinPriceChangePct24h: fptr(0),
		MaxPriceChangePct24h: fptr(10),
	}.WithDefaults()
	require.NoError(t, cfg.Validate())

	// And unset bounds are simply absent, never coerced to zero.
	cfg2 := Config{}.WithDefaults()
	require.NoError(t, cfg2.Validate())
	assert.Nil(t, cfg2.MinPriceChangePct24h)
}

func TestValidate_CustomThresholdRequiresMinVolume(t *testing.T) {
	cfg := Config{VolumeFilter: VolumeCustomThreshold}.WithDefaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	cfg.MinVolume24hUSD = fptr(1_000_000)
	require.NoError(t, cfg.Validate())
}

func TestValidate_RSIRange(t *testing.T) {
	cfg := Config{MinRSI: fptr(-1), MaxRSI: fptr(120)}.WithDefaults()
	err := cfg.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
}

func TestCapFilterActive(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.False(t, cfg.CapFilterActive(), "ALL bucket imposes no constraint")

	cfg.MinMarketCapUSD = fptr(1e9)
	assert.True(t, cfg.CapFilterActive())

	cfg = Config{MarketCapRanges: []MarketCapRange{CapSmall}}.WithDefaults()
	assert.True(t, cfg.CapFilterActive())

	cfg = Config{MarketCapRanges: []MarketCapRange{CapSmall, CapAll}}.WithDefaults()
	assert.False(t, cfg.CapFilterActive(), "ALL anywhere in the set disables bucket filtering")
}

func TestMarketCapRangeContains(t *testing.T) {
	cases := []struct {
		bucket MarketCapRange
		capUSD float64
		want   bool
	}{
		{CapMicro, 299e6, true},
		{CapMicro, 300e6, false},
		{CapSmall, 300e6, true},
		{CapSmall, 2e9, false},
		{CapMid, 5e9, true},
		{CapLarge, 150e9, true},
		{CapMega, 200e9, true},
		{CapMega, 199e9, false},
		{CapAll, 42, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.bucket.Contains(tc.capUSD),
			"bucket %s cap %v", tc.bucket, tc.capUSD)
	}
}
