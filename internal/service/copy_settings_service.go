package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mehrbod2002/copysignal/interfaces"
	"github.com/mehrbod2002/copysignal/internal/models"
	"github.com/mehrbod2002/copysignal/internal/repository"

	"go.uber.org/zap"
)

// CopyParams are the follower controlled risk parameters.
type CopyParams struct {
	Amount         float64 `json:"amount" example:"1000"`
	MaxTradeSize   float64 `json:"max_trade_size" example:"500"`
	StopLossPct    float64 `json:"stop_loss_pct" example:"5"`
	TakeProfitPct  float64 `json:"take_profit_pct" example:"10"`
	DailyLossLimit float64 `json:"daily_loss_limit,omitempty" example:"100"`
}

func (p CopyParams) validate() error {
	switch {
	case p.Amount <= 0:
		return invalid("amount", "must be positive")
	case p.MaxTradeSize <= 0:
		return invalid("max_trade_size", "must be positive")
	case p.MaxTradeSize > p.Amount:
		return invalid("max_trade_size", "must not exceed amount")
	case p.StopLossPct < 0 || p.StopLossPct >= 100:
		return invalid("stop_loss_pct", "must be in [0, 100)")
	case p.TakeProfitPct < 0:
		return invalid("take_profit_pct", "must not be negative")
	case p.DailyLossLimit < 0:
		return invalid("daily_loss_limit", "must not be negative")
	}
	return nil
}

type CopySettingsService interface {
	Follow(ctx context.Context, userID, traderID string, params CopyParams) (*models.CopySettings, error)
	UpdateSettings(ctx context.Context, userID, traderID string, params CopyParams) (*models.CopySettings, error)
	Unfollow(ctx context.Context, userID, traderID string) error
	ListByUser(ctx context.Context, userID string) ([]*models.CopySettings, error)
}

type copySettingsService struct {
	repo   repository.CopySettingsRepository
	feed   interfaces.FeedSubscriber
	logger *zap.Logger
}

func NewCopySettingsService(repo repository.CopySettingsRepository, feed interfaces.FeedSubscriber, logger *zap.Logger) CopySettingsService {
	return &copySettingsService{
		repo:   repo,
		feed:   feed,
		logger: logger.Named("copy_settings"),
	}
}

func checkPair(userID, traderID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalid("user_id", "is required")
	}
	if strings.TrimSpace(traderID) == "" {
		return invalid("trader_id", "is required")
	}
	if userID == traderID {
		return invalid("trader_id", "cannot follow yourself")
	}
	return nil
}

func (s *copySettingsService) Follow(ctx context.Context, userID, traderID string, params CopyParams) (*models.CopySettings, error) {
	if err := checkPair(userID, traderID); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetActive(ctx, userID, traderID)
	if err != nil {
		return nil, fmt.Errorf("load copy settings: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyFollowing
	}

	settings := &models.CopySettings{
		UserID:         userID,
		TraderID:       traderID,
		Amount:         params.Amount,
		MaxTradeSize:   params.MaxTradeSize,
		StopLossPct:    params.StopLossPct,
		TakeProfitPct:  params.TakeProfitPct,
		DailyLossLimit: params.DailyLossLimit,
		Active:         true,
	}
	if err := s.repo.Save(ctx, settings); err != nil {
		if errors.Is(err, repository.ErrDuplicateActive) {
			return nil, ErrAlreadyFollowing
		}
		return nil, fmt.Errorf("save copy settings: %w", err)
	}

	s.logger.Info("follow", zap.String("user_id", userID), zap.String("trader_id", traderID), zap.Float64("amount", params.Amount))
	s.track(traderID)
	return settings, nil
}

func (s *copySettingsService) UpdateSettings(ctx context.Context, userID, traderID string, params CopyParams) (*models.CopySettings, error) {
	if err := checkPair(userID, traderID); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	settings, err := s.repo.GetActive(ctx, userID, traderID)
	if err != nil {
		return nil, fmt.Errorf("load copy settings: %w", err)
	}
	if settings == nil {
		return nil, ErrNotFollowing
	}

	settings.Amount = params.Amount
	settings.MaxTradeSize = params.MaxTradeSize
	settings.StopLossPct = params.StopLossPct
	settings.TakeProfitPct = params.TakeProfitPct
	settings.DailyLossLimit = params.DailyLossLimit
	if err := s.repo.Update(ctx, settings); err != nil {
		return nil, fmt.Errorf("update copy settings: %w", err)
	}
	return settings, nil
}

func (s *copySettingsService) Unfollow(ctx context.Context, userID, traderID string) error {
	if err := checkPair(userID, traderID); err != nil {
		return err
	}
	settings, err := s.repo.GetActive(ctx, userID, traderID)
	if err != nil {
		return fmt.Errorf("load copy settings: %w", err)
	}
	if settings == nil {
		return ErrNotFollowing
	}

	settings.Active = false
	if err := s.repo.Update(ctx, settings); err != nil {
		return fmt.Errorf("deactivate copy settings: %w", err)
	}
	s.logger.Info("unfollow", zap.String("user_id", userID), zap.String("trader_id", traderID))
	return nil
}

func (s *copySettingsService) ListByUser(ctx context.Context, userID string) ([]*models.CopySettings, error) {
	return s.repo.ListActiveByUser(ctx, userID)
}

// track asks the feed for the trader's trades. The feed replays tracked
// traders on reconnect, so a disconnected feed is not an error here.
func (s *copySettingsService) track(traderID string) {
	if s.feed == nil {
		return
	}
	if err := s.feed.SubscribeToTrader(traderID); err != nil {
		s.logger.Debug("feed subscribe deferred", zap.String("trader_id", traderID), zap.Error(err))
	}
}
