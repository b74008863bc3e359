// Package pipeline implements the ordered filter stages that narrow a
// ticker snapshot down to a ranked candidate list.
package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptoedge/marketscan/internal/domain/scan"
)

// MarketCapSource resolves market-cap data for a base asset. A not-found
// asset must be reported as *scan.NotFoundError.
type MarketCapSource interface {
	Lookup(ctx context.Context, baseAsset string) (float64, error)
}

const (
	// highVolumeFloorUSD is the conservative floor applied by HIGH_VOLUME
	// when no custom threshold is configured.
	highVolumeFloorUSD = 10_000_000.0

	// sidewaysBandPct bounds |24h change| for the SIDEWAYS trend proxy.
	sidewaysBandPct = 1.0

	defaultLookupWorkers = 8
	defaultLookupTimeout = 5 * time.Second
)

// Pipeline runs the fixed filter stage sequence. It holds no per-scan
// state: Run is deterministic for identical inputs and identical
// collaborator responses.
type Pipeline struct {
	caps          MarketCapSource
	workers       int
	lookupTimeout time.Duration
}

// Option customizes pipeline construction.
type Option func(*Pipeline)

// WithLookupWorkers bounds the market-cap worker pool.
func WithLookupWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLookupTimeout bounds each individual market-cap lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.lookupTimeout = d
		}
	}
}

// New creates a pipeline backed by the given market-cap source.
func New(caps MarketCapSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		caps:          caps,
		workers:       defaultLookupWorkers,
		lookupTimeout: defaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run filters candidates stage by stage and returns the ranked, truncated
// survivor list. Stage order is fixed; later stages are narrower or more
// expensive. A cancelled context aborts with no partial results.
func (p *Pipeline) Run(ctx context.Context, candidates []scan.CandidateTicker, cfg scan.Config) ([]scan.CandidateTicker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := p.filterQuoteCurrency(candidates, cfg)
	out = p.filterPriceChange(out, cfg)
	out = p.filterVolume(out, cfg)

	if cfg.CapFilterActive() {
		resolved, err := p.resolveMarketCaps(ctx, out)
		if err != nil {
			return nil, err
		}
		out = p.filterMarketCap(resolved, cfg)
	}

	out = p.filterTechnical(out, cfg)
	out = p.filterExclusions(out, cfg)
	return p.rankAndLimit(out, cfg), nil
}

// Stage 1: keep symbols whose quote asset is in the allowed set.
func (p *Pipeline) filterQuoteCurrency(in []scan.CandidateTicker, cfg scan.Config) []scan.CandidateTicker {
	allowed := toUpperSet(cfg.AllowedQuoteCurrencies)
	out := in[:0:0]
	for _, c := range in {
		if allowed[c.QuoteAsset] {
			out = append(out, c)
		}
	}
	return out
}

// Stage 2: drop candidates outside the configured 24h / 7d change bounds.
// An unset bound imposes no constraint; the 7d bounds apply only to
// candidates that carry a 7d value.
func (p *Pipeline) filterPriceChange(in []scan.CandidateTicker, cfg scan.Config) []scan.CandidateTicker {
	out := in[:0:0]
	for _, c := range in {
		if !within(c.PriceChangePct24h, cfg.MinPriceChangePct24h, cfg.MaxPriceChangePct24h) {
			continue
		}
		if c.PriceChangePct7d != nil &&
			!within(*c.PriceChangePct7d, cfg.MinPriceChangePct7d, cfg.MaxPriceChangePct7d) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Stage 3: volume floor. NO_FILTER passes everything; every other mode
// enforces the configured minimum, and HIGH_VOLUME falls back to a fixed
// floor when no custom threshold is supplied.
func (p *Pipeline) filterVolume(in []scan.CandidateTicker, cfg scan.Config) []scan.CandidateTicker {
	if cfg.VolumeFilter == scan.VolumeNoFilter || cfg.VolumeFilter == "" {
		return in
	}

	threshold := 0.0
	if cfg.MinVolume24hUSD != nil {
		threshold = *cfg.MinVolume24hUSD
	} else if cfg.VolumeFilter == scan.VolumeHigh {
		threshold = highVolumeFloorUSD
	}

	out := in[:0:0]
	for _, c := range in {
		if c.QuoteVolume24h >= threshold {
			out = append(out, c)
		}
	}
	return out
}

// Stage 4 (resolution half): look up market caps across a bounded worker
// pool. A failed or not-found lookup drops only that candidate; context
// cancellation abandons in-flight lookups and aborts the whole run.
func (p *Pipeline) resolveMarketCaps(ctx context.Context, in []scan.CandidateTicker) ([]scan.CandidateTicker, error) {
	resolved := make([]*scan.CandidateTicker, len(in))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i := range in {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			lctx, cancel := context.WithTimeout(ctx, p.lookupTimeout)
			defer cancel()

			capUSD, err := p.caps.Lookup(lctx, in[i].BaseAsset)
			if err != nil {
				log.Debug().Err(err).
					Str("symbol", in[i].Symbol).
					Str("base_asset", in[i].BaseAsset).
					Msg("market cap lookup failed, candidate dropped")
				return
			}
			c := in[i]
			c.MarketCapUSD = &capUSD
			resolved[i] = &c
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]scan.CandidateTicker, 0, len(in))
	for _, c := range resolved {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

// Stage 4 (filter half): absolute bounds and bucket membership.
func (p *Pipeline) filterMarketCap(in []scan.CandidateTicker, cfg scan.Config) []scan.CandidateTicker {
	buckets := make([]scan.MarketCapRange, 0, len(cfg.MarketCapRanges))
	for _, r := range cfg.MarketCapRanges {
		if r != scan.CapAll {
			buckets = append(buckets, r)
		}
	}

	out := in[:0:0]
	for _, c := range in {
		capUSD := *c.MarketCapUSD
		if !within(capUSD, cfg.MinMarketCapUSD, cfg.MaxMarketCapUSD) {
			continue
		}
		if len(buckets) > 0 && !anyBucketContains(buckets, capUSD) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Stage 5: trend proxy and optional RSI window. The trend check uses 24h
// change as a stand-in until a real indicator feed exists; RSI bounds
// apply only when the candidate carries a value and both bounds are set.
func (p *Pipeline) filterTechnical(in []scan.CandidateTicker, cfg scan.Config) []scan.CandidateTicker {
	out := in[:0:0]
	for _, c := range in {
		switch cfg.TrendDirection {
		case scan.TrendBullish:
			if c.PriceChangePct24h <= 0 {
				continue
			}
		case scan.TrendBearish:
			if c.PriceChangePct24h >= 0 {
				continue
			}
		case scan.TrendSideways:
			if c.PriceChangePct24h > sidewaysBandPct || c.PriceChangePct24h < -sidewaysBandPct {
				continue
			}
		}

		if cfg.MinRSI != nil && cfg.MaxRSI != nil && c.RSI != nil {
			if *c.RSI < *cfg.MinRSI || *c.RSI > *cfg.MaxRSI {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// Stage 6: symbol/category exclusions and the listing-age cutoff.
func (p *Pipeline) filterExclusions(in []scan.CandidateTicker, cfg scan.Config) []scan.CandidateTicker {
	excluded := toUpperSet(cfg.ExcludedSymbols)
	for k := range toUpperSet(cfg.ExcludedCategories) {
		excluded[k] = true
	}

	out := in[:0:0]
	for _, c := range in {
		if excluded[c.Symbol] || excluded[c.BaseAsset] {
			continue
		}
		if cfg.MinDaysSinceListing != nil && c.ListedAt != nil {
			age := time.Since(*c.ListedAt)
			if age < time.Duration(*cfg.MinDaysSinceListing)*24*time.Hour {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// Stage 7: stable sort descending by 24h change, truncate to max results.
func (p *Pipeline) rankAndLimit(in []scan.CandidateTicker, cfg scan.Config) []scan.CandidateTicker {
	out := append([]scan.CandidateTicker(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PriceChangePct24h > out[j].PriceChangePct24h
	})
	if cfg.MaxResults > 0 && len(out) > cfg.MaxResults {
		out = out[:cfg.MaxResults]
	}
	return out
}

func within(v float64, min, max *float64) bool {
	if min != nil && v < *min {
		return false
	}
	if max != nil && v > *max {
		return false
	}
	return true
}

func anyBucketContains(buckets []scan.MarketCapRange, capUSD float64) bool {
	for _, b := range buckets {
		if b.Contains(capUSD) {
			return true
		}
	}
	return false
}

func toUpperSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToUpper(v)] = true
	}
	return set
}
