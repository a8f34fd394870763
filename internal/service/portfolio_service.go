package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"
	"github.com/mehrbod2002/copysignal/internal/repository"
)

const recentTradesLimit = 20

type PortfolioService interface {
	GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error)
}

type portfolioService struct {
	settings  repository.CopySettingsRepository
	trades    repository.CopyTradeRepository
	usage     repository.UsageLedger
	positions *repository.PositionBook
}

func NewPortfolioService(settings repository.CopySettingsRepository, trades repository.CopyTradeRepository, usage repository.UsageLedger, positions *repository.PositionBook) PortfolioService {
	return &portfolioService{settings: settings, trades: trades, usage: usage, positions: positions}
}

func (s *portfolioService) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	now := time.Now()

	settings, err := s.settings.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list copy settings: %w", err)
	}
	trades, err := s.trades.ListByUser(ctx, userID, recentTradesLimit)
	if err != nil {
		return nil, fmt.Errorf("list copy trades: %w", err)
	}
	used, err := s.usage.Used(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("load daily usage: %w", err)
	}

	return &models.Portfolio{
		UserID:       userID,
		Settings:     settings,
		Positions:    s.positions.ListByUser(userID),
		RecentTrades: trades,
		UsedToday:    used,
		GeneratedAt:  now,
	}, nil
}
