package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mehrbod2002/copysignal/internal/cache"
	"github.com/mehrbod2002/copysignal/internal/models"
)

var (
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrMissingAPIKey  = errors.New("api key not configured")
)

// PriceProvider is a single upstream source of USD quotes.
type PriceProvider interface {
	Name() string
	GetPrice(ctx context.Context, symbol string) (*models.PriceQuote, error)
}

// BulkPriceProvider can resolve several symbols in one request. Symbols the
// provider does not know are left out of the result.
type BulkPriceProvider interface {
	PriceProvider
	GetPrices(ctx context.Context, symbols []string) (map[string]*models.PriceQuote, error)
}

type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
	Client   *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (c Config) quoteCache() (*cache.Cache[*models.PriceQuote], error) {
	ttl := c.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return cache.New[*models.PriceQuote](1<<14, ttl)
}

type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Code, e.Body)
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func getJSON(ctx context.Context, client *http.Client, name, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", name, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Provider: name, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", name, err)
	}
	return nil
}

// splitCached returns quotes already cached and the symbols still missing.
func splitCached(c *cache.Cache[*models.PriceQuote], symbols []string) (map[string]*models.PriceQuote, []string) {
	hits := make(map[string]*models.PriceQuote, len(symbols))
	missing := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		s := NormalizeSymbol(raw)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if q, ok := c.Get(s); ok {
			hits[s] = q
			continue
		}
		missing = append(missing, s)
	}
	return hits, missing
}
