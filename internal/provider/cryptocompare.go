package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mehrbod2002/copysignal/internal/cache"
	"github.com/mehrbod2002/copysignal/internal/models"
)

const cryptoCompareName = "cryptocompare"

type CryptoCompare struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   *cache.Cache[*models.PriceQuote]
}

func NewCryptoCompare(cfg Config) (*CryptoCompare, error) {
	c, err := cfg.quoteCache()
	if err != nil {
		return nil, err
	}
	return &CryptoCompare{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  cfg.httpClient(),
		cache:   c,
	}, nil
}

func (p *CryptoCompare) Name() string { return cryptoCompareName }

type ccResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Raw      map[string]map[string]struct {
		Price        float64 `json:"PRICE"`
		ChangePct24h float64 `json:"CHANGEPCT24HOUR"`
		Volume24hTo  float64 `json:"VOLUME24HOURTO"`
		MarketCap    float64 `json:"MKTCAP"`
		LastUpdate   int64   `json:"LASTUPDATE"`
	} `json:"RAW"`
}

func (p *CryptoCompare) GetPrice(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	sym := NormalizeSymbol(symbol)
	if q, ok := p.cache.Get(sym); ok {
		return q, nil
	}

	q := url.Values{}
	q.Set("fsyms", sym)
	q.Set("tsyms", "USD")
	if p.apiKey != "" {
		q.Set("api_key", p.apiKey)
	}
	endpoint := p.baseURL + "/data/pricemultifull?" + q.Encode()

	var resp ccResponse
	if err := getJSON(ctx, p.client, cryptoCompareName, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Response == "Error" {
		return nil, fmt.Errorf("%s: %s: %w", cryptoCompareName, resp.Message, ErrSymbolNotFound)
	}

	raw, ok := resp.Raw[sym]["USD"]
	if !ok || raw.Price <= 0 {
		return nil, fmt.Errorf("%s: %s: %w", cryptoCompareName, sym, ErrSymbolNotFound)
	}
	updated := time.Now()
	if raw.LastUpdate > 0 {
		updated = time.Unix(raw.LastUpdate, 0)
	}
	quote := &models.PriceQuote{
		Symbol:      sym,
		Price:       raw.Price,
		Change24h:   raw.ChangePct24h,
		Volume24h:   raw.Volume24hTo,
		MarketCap:   raw.MarketCap,
		LastUpdated: updated,
		Source:      cryptoCompareName,
	}
	p.cache.Set(sym, quote)
	return quote, nil
}
