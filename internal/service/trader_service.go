package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/mehrbod2002/copysignal/internal/models"
	"github.com/mehrbod2002/copysignal/internal/repository"
)

// TraderService keeps the latest performance snapshot per trader.
type TraderService interface {
	RecordPerformance(perf models.TraderPerformance)
	GetTraderDetails(ctx context.Context, traderID string) (*models.TraderDetails, error)
}

type traderService struct {
	settings repository.CopySettingsRepository

	mu          sync.RWMutex
	performance map[string]models.TraderPerformance
}

func NewTraderService(settings repository.CopySettingsRepository) TraderService {
	return &traderService{
		settings:    settings,
		performance: make(map[string]models.TraderPerformance),
	}
}

func (s *traderService) RecordPerformance(perf models.TraderPerformance) {
	if perf.TraderID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.performance[perf.TraderID]; ok && prev.Timestamp > perf.Timestamp {
		return
	}
	s.performance[perf.TraderID] = perf
}

func (s *traderService) GetTraderDetails(ctx context.Context, traderID string) (*models.TraderDetails, error) {
	if traderID == "" {
		return nil, invalid("traderId", "is required")
	}
	followers, err := s.settings.CountActiveByTrader(ctx, traderID)
	if err != nil {
		return nil, fmt.Errorf("count followers: %w", err)
	}

	details := &models.TraderDetails{TraderID: traderID, Followers: followers}
	s.mu.RLock()
	if perf, ok := s.performance[traderID]; ok {
		p := perf
		details.Performance = &p
	}
	s.mu.RUnlock()
	return details, nil
}
