package service

import (
	"context"
	"time"

	"github.com/mehrbod2002/copysignal/internal/cache"
	"github.com/mehrbod2002/copysignal/internal/models"
	"github.com/mehrbod2002/copysignal/internal/provider"

	"go.uber.org/zap"
)

// StatusProbeSymbol is the reference symbol used to health check providers.
const StatusProbeSymbol = "BTC"

type PriceService interface {
	// GetCurrentPrice always returns a quote, falling back to the static table.
	GetCurrentPrice(ctx context.Context, symbol string) *models.PriceQuote
	// GetMultiplePrices returns a quote for every non-empty requested symbol.
	GetMultiplePrices(ctx context.Context, symbols []string) map[string]*models.PriceQuote
	GetServiceStatus(ctx context.Context) models.ServiceStatus
}

type priceService struct {
	providers []provider.PriceProvider
	fallback  *provider.Fallback
	cache     *cache.Cache[*models.PriceQuote]
	logger    *zap.Logger
}

// NewPriceService queries providers in the given order.
func NewPriceService(providers []provider.PriceProvider, fallback *provider.Fallback, unified *cache.Cache[*models.PriceQuote], logger *zap.Logger) PriceService {
	if fallback == nil {
		fallback = provider.NewFallback()
	}
	return &priceService{
		providers: providers,
		fallback:  fallback,
		cache:     unified,
		logger:    logger.Named("prices"),
	}
}

func (s *priceService) GetCurrentPrice(ctx context.Context, symbol string) *models.PriceQuote {
	sym := provider.NormalizeSymbol(symbol)
	if q, ok := s.cache.Get(sym); ok {
		return q
	}

	for _, p := range s.providers {
		q, err := p.GetPrice(ctx, sym)
		if err != nil {
			s.logger.Debug("provider failed", zap.String("provider", p.Name()), zap.String("symbol", sym), zap.Error(err))
			continue
		}
		s.cache.Set(sym, q)
		return q
	}

	s.logger.Warn("all providers failed, serving fallback price",
		zap.String("symbol", sym),
		zap.Bool("listed", s.fallback.Known(sym)),
	)
	q := s.fallback.Quote(sym)
	s.cache.Set(sym, q)
	return q
}

func (s *priceService) GetMultiplePrices(ctx context.Context, symbols []string) map[string]*models.PriceQuote {
	out := make(map[string]*models.PriceQuote, len(symbols))
	missing := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		sym := provider.NormalizeSymbol(raw)
		if sym == "" {
			continue
		}
		if _, dup := out[sym]; dup {
			continue
		}
		if q, ok := s.cache.Get(sym); ok {
			out[sym] = q
			continue
		}
		out[sym] = nil
		missing = append(missing, sym)
	}

	for _, p := range s.providers {
		if len(missing) == 0 {
			break
		}
		if bulk, ok := p.(provider.BulkPriceProvider); ok {
			quotes, err := bulk.GetPrices(ctx, missing)
			if err != nil {
				s.logger.Debug("bulk provider failed", zap.String("provider", p.Name()), zap.Strings("symbols", missing), zap.Error(err))
				continue
			}
			missing = s.collect(out, missing, func(sym string) *models.PriceQuote { return quotes[sym] })
			continue
		}
		missing = s.collect(out, missing, func(sym string) *models.PriceQuote {
			q, err := p.GetPrice(ctx, sym)
			if err != nil {
				s.logger.Debug("provider failed", zap.String("provider", p.Name()), zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			return q
		})
	}

	if len(missing) == 0 {
		return out
	}
	var unlisted []string
	for _, sym := range missing {
		if !s.fallback.Known(sym) {
			unlisted = append(unlisted, sym)
		}
		q := s.fallback.Quote(sym)
		s.cache.Set(sym, q)
		out[sym] = q
	}
	s.logger.Warn("serving fallback prices", zap.Strings("symbols", missing), zap.Strings("unlisted", unlisted))
	return out
}

// collect stores resolved quotes and returns the symbols still unresolved.
func (s *priceService) collect(out map[string]*models.PriceQuote, symbols []string, resolve func(string) *models.PriceQuote) []string {
	remaining := symbols[:0:0]
	for _, sym := range symbols {
		q := resolve(sym)
		if q == nil || q.Price <= 0 {
			remaining = append(remaining, sym)
			continue
		}
		s.cache.Set(sym, q)
		out[sym] = q
	}
	return remaining
}

func (s *priceService) GetServiceStatus(ctx context.Context) models.ServiceStatus {
	status := models.ServiceStatus{
		Providers: make(map[string]bool, len(s.providers)),
		Fallback:  true,
		CheckedAt: time.Now(),
	}
	for _, p := range s.providers {
		_, err := p.GetPrice(ctx, StatusProbeSymbol)
		status.Providers[p.Name()] = err == nil
		if err != nil {
			s.logger.Info("provider unhealthy", zap.String("provider", p.Name()), zap.Error(err))
		}
	}
	return status
}
