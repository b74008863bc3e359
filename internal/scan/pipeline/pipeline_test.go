package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoedge/marketscan/internal/domain/scan"
)

func ptr[T any](v T) *T { return &v }

// mockCapSource resolves caps from a fixed map; assets listed in failing
// return an upstream error, everything else unknown is not-found.
type mockCapSource struct {
	caps    map[string]float64
	failing map[string]bool
	calls   atomic.Int64
}

func (m *mockCapSource) Lookup(ctx context.Context, baseAsset string) (float64, error) {
	m.calls.Add(1)
	if m.failing[baseAsset] {
		return 0, &scan.UpstreamError{Source: "mock", Err: errors.New("lookup failed"), Retryable: true}
	}
	if capUSD, ok := m.caps[baseAsset]; ok {
		return capUSD, nil
	}
	return 0, &scan.NotFoundError{Resource: "market cap", ID: baseAsset}
}

func candidate(symbol string, change, volume float64) scan.CandidateTicker {
	base, quote, _ := scan.SplitSymbol(symbol)
	return scan.CandidateTicker{
		Symbol:            symbol,
		BaseAsset:         base,
		QuoteAsset:        quote,
		Price:             100,
		PriceChangePct24h: change,
		QuoteVolume24h:    volume,
	}
}

func baseConfig() scan.Config {
	return scan.Config{}.WithDefaults()
}

func TestRun_HighVolumeMomentum(t *testing.T) {
	// Scenario A: min change 5, HIGH_VOLUME with 10M custom threshold.
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.MinPriceChangePct24h = ptr(5.0)
	cfg.VolumeFilter = scan.VolumeHigh
	cfg.MinVolume24hUSD = ptr(10_000_000.0)

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", 8.0, 50_000_000),
		candidate("ETHUSDT", 2.0, 5_000_000),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "BTCUSDT", out[0].Symbol)
}

func TestRun_NoBullishCandidatesYieldsEmptyNotError(t *testing.T) {
	// Scenario B: a bullish preset against an all-bearish snapshot.
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.TrendDirection = scan.TrendBullish
	cfg.VolumeFilter = scan.VolumeHigh

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", -3.0, 50_000_000),
		candidate("ETHUSDT", -1.5, 40_000_000),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRun_MarketCapLookupFailureDropsOnlyThatCandidate(t *testing.T) {
	// Scenario C: one lookup errors, the other candidate survives.
	caps := &mockCapSource{
		caps:    map[string]float64{"BTC": 900_000_000_000},
		failing: map[string]bool{"ETH": true},
	}
	p := New(caps)
	cfg := baseConfig()
	cfg.MinMarketCapUSD = ptr(1_000_000_000.0)

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", 4.0, 50_000_000),
		candidate("ETHUSDT", 3.0, 40_000_000),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "BTCUSDT", out[0].Symbol)
	require.NotNil(t, out[0].MarketCapUSD)
	assert.Equal(t, 900_000_000_000.0, *out[0].MarketCapUSD)
}

func TestRun_MaxResultsKeepsHighestChange(t *testing.T) {
	// Scenario D: three passing candidates, max_results=1.
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.MaxResults = 1

	in := []scan.CandidateTicker{
		candidate("ADAUSDT", 2.0, 1_000_000),
		candidate("BTCUSDT", 9.0, 1_000_000),
		candidate("ETHUSDT", 5.0, 1_000_000),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "BTCUSDT", out[0].Symbol)
}

func TestRun_ResultBoundedByInputAndMaxResults(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.MaxResults = 2

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", 1.0, 10),
		candidate("ETHUSDT", 2.0, 10),
		candidate("ADAUSDT", 3.0, 10),
		candidate("SOLUSDT", 4.0, 10),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), cfg.MaxResults)
	assert.LessOrEqual(t, len(out), len(in))
}

func TestRun_PriceBoundsSatisfiedByEveryResult(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.MinPriceChangePct24h = ptr(-2.0)
	cfg.MaxPriceChangePct24h = ptr(6.0)

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", -5.0, 10),
		candidate("ETHUSDT", -1.0, 10),
		candidate("ADAUSDT", 3.0, 10),
		candidate("SOLUSDT", 9.0, 10),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, c := range out {
		assert.GreaterOrEqual(t, c.PriceChangePct24h, -2.0)
		assert.LessOrEqual(t, c.PriceChangePct24h, 6.0)
	}
}

func TestRun_PureAcrossRepeatedCalls(t *testing.T) {
	caps := &mockCapSource{caps: map[string]float64{"BTC": 9e11, "ETH": 4e11, "ADA": 2e10}}
	p := New(caps)
	cfg := baseConfig()
	cfg.MarketCapRanges = []scan.MarketCapRange{scan.CapMega, scan.CapLarge, scan.CapMid}

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", 1.0, 10),
		candidate("ETHUSDT", 4.0, 10),
		candidate("ADAUSDT", 2.5, 10),
	}

	first, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRun_RankedDescendingBy24hChange(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()

	in := []scan.CandidateTicker{
		candidate("AUSDT", 1.0, 10),
		candidate("BUSDT", 7.0, 10),
		candidate("CUSDT", 4.0, 10),
		candidate("DUSDT", 7.0, 10),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].PriceChangePct24h, out[i].PriceChangePct24h)
	}
	// Stable sort keeps input order within equal changes.
	assert.Equal(t, "BUSDT", out[0].Symbol)
	assert.Equal(t, "DUSDT", out[1].Symbol)
}

func TestRun_QuoteCurrencyStage(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.AllowedQuoteCurrencies = []string{"USDT"}

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", 1.0, 10),
		candidate("ETHBTC", 2.0, 10),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "BTCUSDT", out[0].Symbol)
}

func TestRun_NoCapConstraintSkipsLookups(t *testing.T) {
	caps := &mockCapSource{failing: map[string]bool{"BTC": true, "ETH": true}}
	p := New(caps)
	cfg := baseConfig() // ranges default to ALL, no absolute bounds

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", 1.0, 10),
		candidate("ETHUSDT", 2.0, 10),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Zero(t, caps.calls.Load())
}

func TestRun_BucketMembership(t *testing.T) {
	caps := &mockCapSource{caps: map[string]float64{
		"MICRO": 100e6,
		"SMALL": 1e9,
		"MID":   5e9,
		"LARGE": 50e9,
		"MEGA":  500e9,
	}}
	p := New(caps)
	cfg := baseConfig()
	cfg.MarketCapRanges = []scan.MarketCapRange{scan.CapSmall, scan.CapMid}

	in := []scan.CandidateTicker{
		candidate("MICROUSDT", 1.0, 10),
		candidate("SMALLUSDT", 2.0, 10),
		candidate("MIDUSDT", 3.0, 10),
		candidate("LARGEUSDT", 4.0, 10),
		candidate("MEGAUSDT", 5.0, 10),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "MIDUSDT", out[0].Symbol)
	assert.Equal(t, "SMALLUSDT", out[1].Symbol)
}

func TestRun_ExclusionsBySymbolAndBaseAsset(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.ExcludedSymbols = []string{"ethusdt"}
	cfg.ExcludedCategories = []string{"DOGE"}

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", 1.0, 10),
		candidate("ETHUSDT", 2.0, 10),
		candidate("DOGEUSDT", 3.0, 10),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "BTCUSDT", out[0].Symbol)
}

func TestRun_RSIAppliesOnlyWithValueAndBothBounds(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.MinRSI = ptr(30.0)
	cfg.MaxRSI = ptr(70.0)

	hot := candidate("BTCUSDT", 1.0, 10)
	hot.RSI = ptr(85.0)
	calm := candidate("ETHUSDT", 2.0, 10)
	calm.RSI = ptr(55.0)
	unknown := candidate("ADAUSDT", 3.0, 10) // no RSI value, passes

	out, err := p.Run(context.Background(), []scan.CandidateTicker{hot, calm, unknown}, cfg)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "ADAUSDT", out[0].Symbol)
	assert.Equal(t, "ETHUSDT", out[1].Symbol)
}

func TestRun_ListingAgeCutoff(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.MinDaysSinceListing = ptr(30)

	fresh := candidate("NEWUSDT", 5.0, 10)
	fresh.ListedAt = ptr(time.Now().Add(-5 * 24 * time.Hour))
	old := candidate("BTCUSDT", 1.0, 10)
	old.ListedAt = ptr(time.Now().Add(-400 * 24 * time.Hour))
	unknown := candidate("ETHUSDT", 2.0, 10) // no listing info, passes

	out, err := p.Run(context.Background(), []scan.CandidateTicker{fresh, old, unknown}, cfg)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "ETHUSDT", out[0].Symbol)
	assert.Equal(t, "BTCUSDT", out[1].Symbol)
}

func TestRun_CancelledContextAbortsWithoutPartialResults(t *testing.T) {
	caps := &mockCapSource{caps: map[string]float64{"BTC": 9e11}}
	p := New(caps)
	cfg := baseConfig()
	cfg.MinMarketCapUSD = ptr(1.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := p.Run(ctx, []scan.CandidateTicker{candidate("BTCUSDT", 1.0, 10)}, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

func TestRun_SevenDayBoundsApplyOnlyWithValue(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.MinPriceChangePct7d = ptr(0.0)
	cfg.MaxPriceChangePct7d = ptr(10.0)

	rallying := candidate("BTCUSDT", 1.0, 10)
	rallying.PriceChangePct7d = ptr(5.0)
	fading := candidate("ETHUSDT", 2.0, 10)
	fading.PriceChangePct7d = ptr(-5.0)
	unknown := candidate("ADAUSDT", 3.0, 10) // no 7d value, bounds do not apply

	out, err := p.Run(context.Background(), []scan.CandidateTicker{rallying, fading, unknown}, cfg)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "ADAUSDT", out[0].Symbol)
	assert.Equal(t, "BTCUSDT", out[1].Symbol)
}

func TestRun_SidewaysTrendBand(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.TrendDirection = scan.TrendSideways

	in := []scan.CandidateTicker{
		candidate("AUSDT", 0.5, 10),
		candidate("BUSDT", -0.9, 10),
		candidate("CUSDT", 1.5, 10),
		candidate("DUSDT", -2.0, 10),
		candidate("EUSDT", 1.0, 10), // band edges are inclusive
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, c := range out {
		assert.LessOrEqual(t, c.PriceChangePct24h, 1.0, c.Symbol)
		assert.GreaterOrEqual(t, c.PriceChangePct24h, -1.0, c.Symbol)
	}
}

func TestRun_BearishTrendKeepsOnlyDecliners(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.TrendDirection = scan.TrendBearish

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", 4.0, 10),
		candidate("ETHUSDT", -3.0, 10),
		candidate("ADAUSDT", 0.0, 10), // flat is not bearish
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ETHUSDT", out[0].Symbol)
}

func TestRun_AboveAverageVolumeUsesExplicitThreshold(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.VolumeFilter = scan.VolumeAboveAverage
	cfg.MinVolume24hUSD = ptr(1_000_000.0)

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", 1.0, 2_000_000),
		candidate("ETHUSDT", 2.0, 500_000),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "BTCUSDT", out[0].Symbol)
}

func TestRun_AboveAverageVolumeWithoutThresholdPassesAll(t *testing.T) {
	// Without an average-volume feed or explicit minimum there is no
	// baseline to compare against, so the stage imposes no floor.
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.VolumeFilter = scan.VolumeAboveAverage

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", 1.0, 100),
		candidate("ETHUSDT", 2.0, 10),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRun_HighVolumeFloorWithoutCustomThreshold(t *testing.T) {
	p := New(&mockCapSource{})
	cfg := baseConfig()
	cfg.VolumeFilter = scan.VolumeHigh

	in := []scan.CandidateTicker{
		candidate("BTCUSDT", 1.0, 9_999_999),
		candidate("ETHUSDT", 2.0, 10_000_000),
	}

	out, err := p.Run(context.Background(), in, cfg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ETHUSDT", out[0].Symbol)
}
