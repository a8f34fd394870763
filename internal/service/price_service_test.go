package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mehrbod2002/copysignal/internal/cache"
	"github.com/mehrbod2002/copysignal/internal/models"
	"github.com/mehrbod2002/copysignal/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProvider struct {
	name   string
	prices map[string]float64
	err    error

	mu        sync.Mutex
	calls     int
	bulkCalls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) GetPrice(_ context.Context, symbol string) (*models.PriceQuote, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	price, ok := p.prices[symbol]
	if !ok {
		return nil, provider.ErrSymbolNotFound
	}
	return &models.PriceQuote{Symbol: symbol, Price: price, Source: p.name, LastUpdated: time.Now()}, nil
}

func (p *fakeProvider) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls + p.bulkCalls
}

type fakeBulkProvider struct {
	*fakeProvider
}

func (p fakeBulkProvider) GetPrices(_ context.Context, symbols []string) (map[string]*models.PriceQuote, error) {
	p.mu.Lock()
	p.bulkCalls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]*models.PriceQuote)
	for _, sym := range symbols {
		if price, ok := p.prices[sym]; ok {
			out[sym] = &models.PriceQuote{Symbol: sym, Price: price, Source: p.name}
		}
	}
	return out, nil
}

func newTestPriceService(t *testing.T, providers ...provider.PriceProvider) PriceService {
	t.Helper()
	c, err := cache.New[*models.PriceQuote](1000, 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return NewPriceService(providers, provider.NewFallback(), c, zap.NewNop())
}

func TestGetCurrentPriceUsesCache(t *testing.T) {
	a := &fakeProvider{name: "a", prices: map[string]float64{"BTC": 43000}}
	svc := newTestPriceService(t, a)
	ctx := context.Background()

	q := svc.GetCurrentPrice(ctx, "btc")
	assert.Equal(t, 43000.0, q.Price)
	assert.Equal(t, 1, a.totalCalls())

	q = svc.GetCurrentPrice(ctx, "BTC")
	assert.Equal(t, 43000.0, q.Price)
	assert.Equal(t, 1, a.totalCalls())
}

func TestGetCurrentPriceFallsThroughProviders(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("timeout")}
	b := &fakeProvider{name: "b", prices: map[string]float64{"ETH": 2600}}
	c := &fakeProvider{name: "c", prices: map[string]float64{"ETH": 1}}
	svc := newTestPriceService(t, a, b, c)

	q := svc.GetCurrentPrice(context.Background(), "ETH")
	assert.Equal(t, "b", q.Source)
	assert.Equal(t, 2600.0, q.Price)
	assert.Zero(t, c.totalCalls())
}

func TestGetCurrentPriceFallback(t *testing.T) {
	down := errors.New("down")
	svc := newTestPriceService(t,
		&fakeProvider{name: "a", err: down},
		&fakeProvider{name: "b", err: down},
		&fakeProvider{name: "c", err: down},
	)

	q := svc.GetCurrentPrice(context.Background(), "ZZZ")
	assert.Equal(t, "fallback", q.Source)
	assert.Equal(t, provider.DefaultFallbackPrice, q.Price)

	q = svc.GetCurrentPrice(context.Background(), "BTC")
	assert.Equal(t, 43250.0, q.Price)
}

func TestFallbackLogsUnlistedSymbols(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	c, err := cache.New[*models.PriceQuote](1000, 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	svc := NewPriceService([]provider.PriceProvider{&fakeProvider{name: "a", err: errors.New("down")}}, provider.NewFallback(), c, zap.New(core))
	ctx := context.Background()

	svc.GetCurrentPrice(ctx, "BTC")
	svc.GetCurrentPrice(ctx, "ZZZ")
	single := logs.FilterMessage("all providers failed, serving fallback price").All()
	require.Len(t, single, 2)
	assert.Equal(t, true, single[0].ContextMap()["listed"])
	assert.Equal(t, false, single[1].ContextMap()["listed"])

	svc.GetMultiplePrices(ctx, []string{"ETH", "QQQ"})
	bulk := logs.FilterMessage("serving fallback prices").All()
	require.Len(t, bulk, 1)
	assert.Equal(t, []interface{}{"QQQ"}, bulk[0].ContextMap()["unlisted"])
}

func TestGetCurrentPriceAlwaysPositive(t *testing.T) {
	svc := newTestPriceService(t, &fakeProvider{name: "a", err: errors.New("down")})
	for _, sym := range []string{"", "btc", "  eth ", "???", "A-VERY-LONG-UNKNOWN-TICKER"} {
		q := svc.GetCurrentPrice(context.Background(), sym)
		require.NotNil(t, q, sym)
		assert.Greater(t, q.Price, 0.0, sym)
	}
}

func TestGetMultiplePricesCascade(t *testing.T) {
	a := fakeBulkProvider{&fakeProvider{name: "a", prices: map[string]float64{"BTC": 43000}}}
	b := fakeBulkProvider{&fakeProvider{name: "b", prices: map[string]float64{"BTC": 1, "ETH": 2600}}}
	c := &fakeProvider{name: "c", prices: map[string]float64{"SOL": 99}}
	svc := newTestPriceService(t, a, b, c)

	got := svc.GetMultiplePrices(context.Background(), []string{"btc", "ETH", "SOL", "ZZZ", "BTC", ""})
	require.Len(t, got, 4)
	assert.Equal(t, "a", got["BTC"].Source)
	assert.Equal(t, "b", got["ETH"].Source)
	assert.Equal(t, "c", got["SOL"].Source)
	assert.Equal(t, "fallback", got["ZZZ"].Source)

	assert.Equal(t, 1, a.bulkCalls)
	assert.Equal(t, 1, b.bulkCalls)
	assert.Equal(t, 2, c.calls)

	got = svc.GetMultiplePrices(context.Background(), []string{"BTC", "ETH", "SOL", "ZZZ"})
	require.Len(t, got, 4)
	assert.Equal(t, 1, a.bulkCalls)
	assert.Equal(t, 2, c.calls)
}

func TestGetServiceStatus(t *testing.T) {
	svc := newTestPriceService(t,
		&fakeProvider{name: "a", prices: map[string]float64{"BTC": 1}},
		&fakeProvider{name: "b", err: errors.New("401")},
	)

	status := svc.GetServiceStatus(context.Background())
	assert.True(t, status.Providers["a"])
	assert.False(t, status.Providers["b"])
	assert.True(t, status.Fallback)
}
