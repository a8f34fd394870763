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

const coinGeckoName = "coingecko"

// coinGeckoIDs maps tickers to CoinGecko coin ids. Tickers outside the map
// are not resolvable through this provider.
var coinGeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"ADA":   "cardano",
	"XRP":   "ripple",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"LTC":   "litecoin",
	"TRX":   "tron",
	"ATOM":  "cosmos",
	"UNI":   "uniswap",
}

type CoinGecko struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   *cache.Cache[*models.PriceQuote]
}

func NewCoinGecko(cfg Config) (*CoinGecko, error) {
	c, err := cfg.quoteCache()
	if err != nil {
		return nil, err
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  cfg.httpClient(),
		cache:   c,
	}, nil
}

func (p *CoinGecko) Name() string { return coinGeckoName }

type geckoPrice struct {
	USD           float64 `json:"usd"`
	USD24hChange  float64 `json:"usd_24h_change"`
	USD24hVol     float64 `json:"usd_24h_vol"`
	USDMarketCap  float64 `json:"usd_market_cap"`
	LastUpdatedAt int64   `json:"last_updated_at"`
}

func (p *CoinGecko) GetPrice(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	quotes, err := p.GetPrices(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[NormalizeSymbol(symbol)]
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", coinGeckoName, symbol, ErrSymbolNotFound)
	}
	return q, nil
}

func (p *CoinGecko) GetPrices(ctx context.Context, symbols []string) (map[string]*models.PriceQuote, error) {
	out, missing := splitCached(p.cache, symbols)

	ids := make([]string, 0, len(missing))
	for _, sym := range missing {
		if id, ok := coinGeckoIDs[sym]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return out, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	q.Set("include_24hr_vol", "true")
	q.Set("include_market_cap", "true")
	q.Set("include_last_updated_at", "true")
	endpoint := p.baseURL + "/simple/price?" + q.Encode()

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["x-cg-pro-api-key"] = p.apiKey
	}

	var resp map[string]geckoPrice
	if err := getJSON(ctx, p.client, coinGeckoName, endpoint, headers, &resp); err != nil {
		return nil, err
	}

	for _, sym := range missing {
		id, ok := coinGeckoIDs[sym]
		if !ok {
			continue
		}
		gp, ok := resp[id]
		if !ok || gp.USD <= 0 {
			continue
		}
		updated := time.Now()
		if gp.LastUpdatedAt > 0 {
			updated = time.Unix(gp.LastUpdatedAt, 0)
		}
		quote := &models.PriceQuote{
			Symbol:      sym,
			Price:       gp.USD,
			Change24h:   gp.USD24hChange,
			Volume24h:   gp.USD24hVol,
			MarketCap:   gp.USDMarketCap,
			LastUpdated: updated,
			Source:      coinGeckoName,
		}
		p.cache.Set(sym, quote)
		out[sym] = quote
	}
	return out, nil
}
