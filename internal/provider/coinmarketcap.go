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

const coinMarketCapName = "coinmarketcap"

type CoinMarketCap struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   *cache.Cache[*models.PriceQuote]
}

func NewCoinMarketCap(cfg Config) (*CoinMarketCap, error) {
	c, err := cfg.quoteCache()
	if err != nil {
		return nil, err
	}
	return &CoinMarketCap{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  cfg.httpClient(),
		cache:   c,
	}, nil
}

func (p *CoinMarketCap) Name() string { return coinMarketCapName }

type cmcResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Symbol string `json:"symbol"`
		Quote  map[string]struct {
			Price            float64 `json:"price"`
			Volume24h        float64 `json:"volume_24h"`
			PercentChange24h float64 `json:"percent_change_24h"`
			MarketCap        float64 `json:"market_cap"`
			LastUpdated      string  `json:"last_updated"`
		} `json:"quote"`
	} `json:"data"`
}

func (p *CoinMarketCap) GetPrice(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	quotes, err := p.GetPrices(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[NormalizeSymbol(symbol)]
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", coinMarketCapName, symbol, ErrSymbolNotFound)
	}
	return q, nil
}

func (p *CoinMarketCap) GetPrices(ctx context.Context, symbols []string) (map[string]*models.PriceQuote, error) {
	out, missing := splitCached(p.cache, symbols)
	if len(missing) == 0 {
		return out, nil
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("%s: %w", coinMarketCapName, ErrMissingAPIKey)
	}

	q := url.Values{}
	q.Set("symbol", strings.Join(missing, ","))
	q.Set("convert", "USD")
	endpoint := p.baseURL + "/v1/cryptocurrency/quotes/latest?" + q.Encode()

	var resp cmcResponse
	if err := getJSON(ctx, p.client, coinMarketCapName, endpoint, map[string]string{"X-CMC_PRO_API_KEY": p.apiKey}, &resp); err != nil {
		return nil, err
	}
	if resp.Status.ErrorCode != 0 {
		return nil, fmt.Errorf("%s: error %d: %s", coinMarketCapName, resp.Status.ErrorCode, resp.Status.ErrorMessage)
	}

	for _, sym := range missing {
		entry, ok := resp.Data[sym]
		if !ok {
			continue
		}
		usd, ok := entry.Quote["USD"]
		if !ok || usd.Price <= 0 {
			continue
		}
		updated, err := time.Parse(time.RFC3339, usd.LastUpdated)
		if err != nil {
			updated = time.Now()
		}
		quote := &models.PriceQuote{
			Symbol:      sym,
			Price:       usd.Price,
			Change24h:   usd.PercentChange24h,
			Volume24h:   usd.Volume24h,
			MarketCap:   usd.MarketCap,
			LastUpdated: updated,
			Source:      coinMarketCapName,
		}
		p.cache.Set(sym, quote)
		out[sym] = quote
	}
	return out, nil
}
