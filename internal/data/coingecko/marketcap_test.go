package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoedge/marketscan/internal/data/cache"
	"github.com/cryptoedge/marketscan/internal/domain/scan"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:        baseURL,
		RequestTimeout: time.Second,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		CacheTTL:       time.Minute,
	}, cache.NewMemory())
}

func TestLookup_ResolvesMarketCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/coins/markets", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "btc", r.URL.Query().Get("symbols"))
		w.Write([]byte(`[{"symbol":"btc","market_cap":1260000000000}]`))
	}))
	defer srv.Close()

	capUSD, err := newTestClient(srv.URL).Lookup(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 1.26e12, capUSD)
}

func TestLookup_UnknownAssetYieldsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Lookup(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, scan.IsNotFound(err))
}

func TestLookup_NullCapTreatedAsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"xyz","market_cap":null}]`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Lookup(context.Background(), "XYZ")
	require.Error(t, err)
	assert.True(t, scan.IsNotFound(err))
}

func TestLookup_SecondCallServedFromCache(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`[{"symbol":"eth","market_cap":400000000000}]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	first, err := c.Lookup(context.Background(), "ETH")
	require.NoError(t, err)
	second, err := c.Lookup(context.Background(), "ETH")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, requests)
}

func TestLookup_NegativeResultCached(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	_, err := c.Lookup(context.Background(), "GHOST")
	assert.True(t, scan.IsNotFound(err))
	_, err = c.Lookup(context.Background(), "GHOST")
	assert.True(t, scan.IsNotFound(err))

	assert.Equal(t, 1, requests)
}

func TestLookup_ServerErrorYieldsRetryableUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Lookup(context.Background(), "BTC")
	require.Error(t, err)

	var uerr *scan.UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "coingecko", uerr.Source)
	assert.True(t, uerr.Retryable)
}
