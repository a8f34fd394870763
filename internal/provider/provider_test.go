package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestCoinMarketCapBulk(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/cryptocurrency/quotes/latest", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-CMC_PRO_API_KEY"))
		assert.Equal(t, "BTC,ETH", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"status":{"error_code":0},"data":{
			"BTC":{"symbol":"BTC","quote":{"USD":{"price":43000,"percent_change_24h":1.5,"volume_24h":10,"market_cap":20,"last_updated":"2024-01-02T03:04:05Z"}}},
			"ETH":{"symbol":"ETH","quote":{"USD":{"price":2600}}}}}`)
	})

	p, err := NewCoinMarketCap(Config{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	quotes, err := p.GetPrices(context.Background(), []string{"btc", "ETH", "btc"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, 43000.0, quotes["BTC"].Price)
	assert.Equal(t, 1.5, quotes["BTC"].Change24h)
	assert.Equal(t, coinMarketCapName, quotes["ETH"].Source)

	q, err := p.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 43000.0, q.Price)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestCoinMarketCapRequiresKey(t *testing.T) {
	p, err := NewCoinMarketCap(Config{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = p.GetPrice(context.Background(), "BTC")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestCoinGecko(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		fmt.Fprint(w, `{"bitcoin":{"usd":43100,"usd_24h_change":-0.4,"usd_24h_vol":5,"usd_market_cap":6,"last_updated_at":1700000000}}`)
	})

	p, err := NewCoinGecko(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	q, err := p.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 43100.0, q.Price)
	assert.Equal(t, -0.4, q.Change24h)
	assert.Equal(t, int64(1700000000), q.LastUpdated.Unix())

	_, err = p.GetPrice(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestCryptoCompare(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/pricemultifull", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		switch r.URL.Query().Get("fsyms") {
		case "SOL":
			fmt.Fprint(w, `{"RAW":{"SOL":{"USD":{"PRICE":99.1,"CHANGEPCT24HOUR":3.2,"LASTUPDATE":1700000000}}}}`)
		default:
			fmt.Fprint(w, `{"Response":"Error","Message":"no data"}`)
		}
	})

	p, err := NewCryptoCompare(Config{BaseURL: srv.URL, APIKey: "key"})
	require.NoError(t, err)

	q, err := p.GetPrice(context.Background(), "sol")
	require.NoError(t, err)
	assert.Equal(t, 99.1, q.Price)
	assert.Equal(t, "SOL", q.Symbol)

	_, err = p.GetPrice(context.Background(), "ZZZ")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestProviderStatusError(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	p, err := NewCryptoCompare(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.GetPrice(context.Background(), "BTC")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
}

func TestFallback(t *testing.T) {
	f := NewFallback()
	f.SetJitter(func() float64 { return 50 })

	q, err := f.GetPrice(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, 43250.0, q.Price)
	assert.Equal(t, maxFallbackChange, q.Change24h)
	assert.Equal(t, fallbackName, q.Source)

	q = f.Quote("ZZZ")
	assert.Equal(t, DefaultFallbackPrice, q.Price)
	assert.False(t, f.Known("ZZZ"))
}

func TestLoadFallbackTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_price: 2.5\nprices:\n  btc: 50000\n  pepe: 0.00001\n  bad: -1\n"), 0o600))

	f, err := LoadFallbackTable(path)
	require.NoError(t, err)

	assert.Equal(t, 50000.0, f.Quote("BTC").Price)
	assert.Equal(t, 0.00001, f.Quote("PEPE").Price)
	assert.Equal(t, 2.5, f.Quote("BAD").Price)
	assert.Equal(t, 2650.0, f.Quote("ETH").Price)

	_, err = LoadFallbackTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
