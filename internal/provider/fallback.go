package provider

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	fallbackName = "fallback"

	// DefaultFallbackPrice is served for symbols missing from the table.
	DefaultFallbackPrice = 1.0

	// maxFallbackChange bounds the synthetic 24h change in percent.
	maxFallbackChange = 2.0
)

var defaultFallbackPrices = map[string]float64{
	"BTC":   43250,
	"ETH":   2650,
	"SOL":   98.5,
	"BNB":   315,
	"ADA":   0.52,
	"XRP":   0.62,
	"DOGE":  0.085,
	"DOT":   7.2,
	"MATIC": 0.85,
	"AVAX":  36.5,
	"LINK":  14.8,
	"USDT":  1,
	"USDC":  1,
}

// FallbackTable is the on-disk shape of a price table override.
type FallbackTable struct {
	DefaultPrice float64            `yaml:"default_price"`
	Prices       map[string]float64 `yaml:"prices"`
}

// Fallback serves static prices and never fails.
type Fallback struct {
	mu           sync.RWMutex
	prices       map[string]float64
	defaultPrice float64
	jitter       func() float64
}

func NewFallback() *Fallback {
	prices := make(map[string]float64, len(defaultFallbackPrices))
	for k, v := range defaultFallbackPrices {
		prices[k] = v
	}
	return &Fallback{
		prices:       prices,
		defaultPrice: DefaultFallbackPrice,
		jitter:       func() float64 { return (rand.Float64()*2 - 1) * maxFallbackChange },
	}
}

// LoadFallbackTable merges a YAML table over the compiled-in prices.
// Non-positive entries are ignored.
func LoadFallbackTable(path string) (*Fallback, error) {
	f := NewFallback()
	if path == "" {
		return f, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback table: %w", err)
	}
	var table FallbackTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse fallback table: %w", err)
	}
	f.merge(table)
	return f, nil
}

func (f *Fallback) merge(table FallbackTable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if table.DefaultPrice > 0 {
		f.defaultPrice = table.DefaultPrice
	}
	for sym, price := range table.Prices {
		if price > 0 {
			f.prices[NormalizeSymbol(sym)] = price
		}
	}
}

// SetJitter replaces the change generator. The result is clamped to the
// allowed band.
func (f *Fallback) SetJitter(fn func() float64) {
	f.mu.Lock()
	f.jitter = fn
	f.mu.Unlock()
}

func (f *Fallback) Name() string { return fallbackName }

func (f *Fallback) GetPrice(_ context.Context, symbol string) (*models.PriceQuote, error) {
	return f.Quote(symbol), nil
}

func (f *Fallback) Quote(symbol string) *models.PriceQuote {
	sym := NormalizeSymbol(symbol)

	f.mu.RLock()
	price, ok := f.prices[sym]
	if !ok {
		price = f.defaultPrice
	}
	change := f.jitter()
	f.mu.RUnlock()

	if change > maxFallbackChange {
		change = maxFallbackChange
	}
	if change < -maxFallbackChange {
		change = -maxFallbackChange
	}

	return &models.PriceQuote{
		Symbol:      sym,
		Price:       price,
		Change24h:   change,
		LastUpdated: time.Now(),
		Source:      fallbackName,
	}
}

// Known reports whether the table has an explicit price for symbol.
func (f *Fallback) Known(symbol string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.prices[NormalizeSymbol(symbol)]
	return ok
}
