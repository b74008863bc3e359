// Package coingecko resolves per-asset market capitalization through the
// CoinGecko markets API, with a cache in front of it.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cryptoedge/marketscan/internal/data/cache"
	"github.com/cryptoedge/marketscan/internal/domain/scan"
	"github.com/cryptoedge/marketscan/internal/net/breakers"
	"github.com/cryptoedge/marketscan/internal/net/ratelimit"
)

const (
	sourceName = "coingecko"

	// notFoundSentinel caches negative lookups so unknown assets do not
	// hammer the API on every scan.
	notFoundSentinel = "NF"
)

// Config holds client tuning. Zero values fall back to defaults inside
// NewClient.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	CacheTTL       time.Duration
}

// Client implements the market-cap source consumed by the pipeline.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *breakers.Breaker
	cache      cache.Cache
}

// NewClient creates a CoinGecko market-cap client over the given cache.
func NewClient(cfg Config, c cache.Cache) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 2.0
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 4
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if c == nil {
		c = cache.NewMemory()
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		breaker:    breakers.New(sourceName),
		cache:      c,
	}
}

type marketRow struct {
	Symbol    string   `json:"symbol"`
	MarketCap *float64 `json:"market_cap"`
}

// Lookup resolves the USD market cap for a base asset. Unknown assets
// yield *scan.NotFoundError; transport failures yield a retryable
// *scan.UpstreamError. Results, including negative ones, are cached.
func (c *Client) Lookup(ctx context.Context, baseAsset string) (float64, error) {
	asset := strings.ToLower(baseAsset)
	key := "mcap:" + asset

	if b, ok := c.cache.Get(ctx, key); ok {
		if string(b) == notFoundSentinel {
			return 0, &scan.NotFoundError{Resource: "market cap", ID: baseAsset}
		}
		if v, err := strconv.ParseFloat(string(b), 64); err == nil {
			return v, nil
		}
	}

	if err := c.limiter.Wait(ctx, sourceName); err != nil {
		return 0, err
	}

	// A not-found asset is a successful call from the breaker's point of
	// view, so fetchMarketCap signals it with a nil value instead of an
	// error.
	res, err := c.breaker.Execute(func() (any, error) {
		return c.fetchMarketCap(ctx, asset)
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &scan.UpstreamError{Source: sourceName, Err: err, Retryable: true}
	}

	capPtr := res.(*float64)
	if capPtr == nil {
		c.cache.Set(ctx, key, []byte(notFoundSentinel), c.cfg.CacheTTL)
		return 0, &scan.NotFoundError{Resource: "market cap", ID: baseAsset}
	}

	capUSD := *capPtr
	c.cache.Set(ctx, key, []byte(strconv.FormatFloat(capUSD, 'f', -1, 64)), c.cfg.CacheTTL)
	return capUSD, nil
}

// fetchMarketCap returns a nil pointer when the asset is unknown.
func (c *Client) fetchMarketCap(ctx context.Context, asset string) (*float64, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("symbols", asset)
	endpoint := c.cfg.BaseURL + "/api/v3/coins/markets?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("markets endpoint returned status %d", resp.StatusCode)
	}

	var rows []marketRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode markets response: %w", err)
	}

	for _, row := range rows {
		if strings.EqualFold(row.Symbol, asset) && row.MarketCap != nil {
			return row.MarketCap, nil
		}
	}
	return nil, nil
}
