package scan

import (
	"encoding/json"
	"strings"
	"time"
)

// RawTicker is one row of a 24h ticker snapshot as delivered by the
// exchange. The 7d change is optional because spot ticker endpoints do
// not always carry it.
type RawTicker struct {
	Symbol            string   `json:"symbol"`
	Price             float64  `json:"price"`
	PriceChangePct24h float64  `json:"price_change_pct_24h"`
	PriceChangePct7d  *float64 `json:"price_change_pct_7d,omitempty"`
	QuoteVolume24h    float64  `json:"quote_volume_24h"`
}

// CandidateTicker is the pipeline-internal join of ticker and market-cap
// data. Instances live only for the duration of one scan and are never
// persisted.
type CandidateTicker struct {
	Symbol            string
	BaseAsset         string
	QuoteAsset        string
	Price             float64
	PriceChangePct24h float64
	PriceChangePct7d  *float64
	QuoteVolume24h    float64
	MarketCapUSD      *float64
	RSI               *float64
	ListedAt          *time.Time
}

// RankedResult is one entry of the ordered scan output.
type RankedResult struct {
	Symbol            string   `json:"symbol"`
	Price             float64  `json:"price"`
	PriceChangePct24h float64  `json:"price_change_pct_24h"`
	QuoteVolume24h    float64  `json:"quote_volume_24h"`
	MarketCapUSD      *float64 `json:"market_cap_usd,omitempty"`
	RSI               *float64 `json:"rsi,omitempty"`
}

// CustomPresetID labels scans that run from an ad-hoc configuration
// rather than a stored preset.
const CustomPresetID = "custom"

// Summary is the caller-facing result of one scan invocation.
type Summary struct {
	PresetID     string         `json:"preset_id"`
	TotalResults int            `json:"total_results"`
	Duration     time.Duration  `json:"-"`
	Results      []RankedResult `json:"results"`
}

// MarshalJSON reports the duration in milliseconds instead of raw
// nanoseconds, which is what CLI consumers expect to read.
func (s Summary) MarshalJSON() ([]byte, error) {
	type summaryAlias Summary
	return json.Marshal(struct {
		summaryAlias
		DurationMS int64 `json:"duration_ms"`
	}{summaryAlias(s), s.Duration.Milliseconds()})
}

// KnownQuoteAssets lists the quote suffixes recognized when splitting a
// trading pair. The longest matching suffix wins, so BUSD beats
// USD-style overlaps.
var KnownQuoteAssets = []string{"USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB"}

// SplitSymbol extracts base and quote assets from a trading pair string
// using longest-match against the known quote suffixes plus any extra
// quotes the caller supplies. Quotes outside both sets never resolve.
func SplitSymbol(symbol string, extraQuotes ...string) (base, quote string, ok bool) {
	s := strings.ToUpper(symbol)
	bestLen := 0
	match := func(q string) {
		if len(q) > bestLen && len(s) > len(q) && strings.HasSuffix(s, q) {
			quote = q
			bestLen = len(q)
		}
	}
	for _, q := range KnownQuoteAssets {
		match(q)
	}
	for _, q := range extraQuotes {
		match(strings.ToUpper(q))
	}
	if bestLen == 0 {
		return "", "", false
	}
	return s[:len(s)-bestLen], quote, true
}

// BuildCandidates joins a ticker snapshot into pipeline candidates.
// extraQuotes widens the recognized quote suffixes, so a scan allowing a
// quote outside KnownQuoteAssets still resolves its pairs. Symbols whose
// quote asset cannot be resolved are skipped: they could never pass the
// quote-currency stage and carry no usable base asset.
func BuildCandidates(tickers []RawTicker, extraQuotes ...string) []CandidateTicker {
	out := make([]CandidateTicker, 0, len(tickers))
	for _, t := range tickers {
		base, quote, ok := SplitSymbol(t.Symbol, extraQuotes...)
		if !ok {
			continue
		}
		out = append(out, CandidateTicker{
			Symbol:            strings.ToUpper(t.Symbol),
			BaseAsset:         base,
			QuoteAsset:        quote,
			Price:             t.Price,
			PriceChangePct24h: t.PriceChangePct24h,
			PriceChangePct7d:  t.PriceChangePct7d,
			QuoteVolume24h:    t.QuoteVolume24h,
		})
	}
	return out
}
