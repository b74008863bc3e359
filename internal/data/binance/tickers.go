// Package binance implements the ticker source against the Binance spot
// REST API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cryptoedge/marketscan/internal/domain/scan"
	"github.com/cryptoedge/marketscan/internal/net/breakers"
	"github.com/cryptoedge/marketscan/internal/net/ratelimit"
)

const sourceName = "binance"

// Config holds client tuning. Zero values fall back to conservative
// defaults inside NewClient.
type Config struct {
	BaseURL         string
	RequestTimeout  time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	RetryMaxElapsed time.Duration
}

// Client fetches the full 24h ticker snapshot. One network call per scan.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *breakers.Breaker
}

// NewClient creates a Binance spot ticker client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 5.0
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 5
	}
	if cfg.RetryMaxElapsed == 0 {
		cfg.RetryMaxElapsed = 30 * time.Second
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		breaker:    breakers.New(sourceName),
	}
}

// ticker24h is the wire shape of GET /api/v3/ticker/24hr. Binance encodes
// numbers as strings.
type ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
}

// FetchAll returns the full 24h ticker snapshot. Failures come back as a
// retryable *scan.UpstreamError; rows with unparseable numbers are
// skipped rather than failing the snapshot.
func (c *Client) FetchAll(ctx context.Context) ([]scan.RawTicker, error) {
	if err := c.limiter.Wait(ctx, sourceName); err != nil {
		return nil, err
	}

	var body []byte
	operation := func() error {
		res, err := c.breaker.Execute(func() (any, error) {
			return c.fetchSnapshot(ctx)
		})
		if err != nil {
			return err
		}
		body = res.([]byte)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.RetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &scan.UpstreamError{Source: sourceName, Err: err, Retryable: true}
	}

	var raw []ticker24h
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &scan.UpstreamError{
			Source:    sourceName,
			Err:       fmt.Errorf("failed to decode ticker snapshot: %w", err),
			Retryable: false,
		}
	}

	tickers := make([]scan.RawTicker, 0, len(raw))
	for _, t := range raw {
		price, err1 := strconv.ParseFloat(t.LastPrice, 64)
		change, err2 := strconv.ParseFloat(t.PriceChangePercent, 64)
		volume, err3 := strconv.ParseFloat(t.QuoteVolume, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		tickers = append(tickers, scan.RawTicker{
			Symbol:            t.Symbol,
			Price:             price,
			PriceChangePct24h: change,
			QuoteVolume24h:    volume,
		})
	}
	return tickers, nil
}

func (c *Client) fetchSnapshot(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/v3/ticker/24hr", nil)
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
		return nil, fmt.Errorf("ticker snapshot returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
