package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mehrbod2002/copysignal/interfaces"
	"github.com/mehrbod2002/copysignal/internal/models"
	"github.com/mehrbod2002/copysignal/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ReasonClamped       = "clamped to max trade size"
	ReasonDailyLimit    = "daily limit exceeded"
	ReasonStopLoss      = "stop-loss condition met"
	defaultFollowerPool = 8
)

// ProcessSummary counts per-follower outcomes of one signal.
type ProcessSummary struct {
	Followers int `json:"followers"`
	Executed  int `json:"executed"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
}

type RiskAssessor interface {
	AssessRisk(ctx context.Context, settings *models.CopySettings, signal models.TradeSignal) (models.RiskAssessment, error)
}

type SignalService interface {
	RiskAssessor
	ProcessTradeSignal(ctx context.Context, signal models.TradeSignal) (ProcessSummary, error)
	ExecuteCopyTrade(ctx context.Context, settings *models.CopySettings, signal models.TradeSignal, amount float64) (*models.CopyTradeRecord, error)
}

type SignalDeps struct {
	Settings  repository.CopySettingsRepository
	Trades    repository.CopyTradeRepository
	Usage     repository.UsageLedger
	Positions *repository.PositionBook
	Prices    PriceService
	Executor  interfaces.ExecutionService
	Notifier  interfaces.Notifier
	Logger    *zap.Logger

	// Concurrency bounds how many followers are processed at once.
	Concurrency int
	Now         func() time.Time
}

type signalService struct {
	settings    repository.CopySettingsRepository
	trades      repository.CopyTradeRepository
	usage       repository.UsageLedger
	positions   *repository.PositionBook
	prices      PriceService
	executor    interfaces.ExecutionService
	notifier    interfaces.Notifier
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

func NewSignalService(deps SignalDeps) SignalService {
	s := &signalService{
		settings:    deps.Settings,
		trades:      deps.Trades,
		usage:       deps.Usage,
		positions:   deps.Positions,
		prices:      deps.Prices,
		executor:    deps.Executor,
		notifier:    deps.Notifier,
		logger:      deps.Logger.Named("signals"),
		concurrency: deps.Concurrency,
		now:         deps.Now,
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultFollowerPool
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.positions == nil {
		s.positions = repository.NewPositionBook()
	}
	return s
}

func validateSignal(sig models.TradeSignal) error {
	switch {
	case strings.TrimSpace(sig.TraderID) == "":
		return invalid("traderId", "is required")
	case strings.TrimSpace(sig.Symbol) == "":
		return invalid("symbol", "is required")
	case sig.Side != models.TradeSideBuy && sig.Side != models.TradeSideSell:
		return invalid("side", fmt.Sprintf("unknown side %q", sig.Side))
	case !(sig.Amount > 0) || math.IsInf(sig.Amount, 0):
		return invalid("amount", "must be positive")
	case sig.Price < 0 || math.IsNaN(sig.Price) || math.IsInf(sig.Price, 0):
		return invalid("price", "must not be negative")
	}
	return nil
}

type followerOutcome int

const (
	outcomeExecuted followerOutcome = iota
	outcomeRejected
	outcomeFailed
)

// ProcessTradeSignal fans a signal out to every active follower of the
// trader. A failing follower is logged and counted but never stops the rest.
func (s *signalService) ProcessTradeSignal(ctx context.Context, sig models.TradeSignal) (ProcessSummary, error) {
	var summary ProcessSummary
	if err := validateSignal(sig); err != nil {
		return summary, err
	}
	sig.Symbol = strings.ToUpper(strings.TrimSpace(sig.Symbol))

	followers, err := s.settings.ListActiveByTrader(ctx, sig.TraderID)
	if err != nil {
		return summary, fmt.Errorf("list followers of %s: %w", sig.TraderID, err)
	}
	summary.Followers = len(followers)
	if len(followers) == 0 {
		return summary, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, settings := range followers {
		g.Go(func() error {
			outcome := s.processFollower(ctx, settings, sig)
			mu.Lock()
			switch outcome {
			case outcomeExecuted:
				summary.Executed++
			case outcomeRejected:
				summary.Rejected++
			default:
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("signal processed",
		zap.String("trader_id", sig.TraderID),
		zap.String("symbol", sig.Symbol),
		zap.String("side", string(sig.Side)),
		zap.Int("followers", summary.Followers),
		zap.Int("executed", summary.Executed),
		zap.Int("rejected", summary.Rejected),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *signalService) processFollower(ctx context.Context, settings *models.CopySettings, sig models.TradeSignal) (outcome followerOutcome) {
	log := s.logger.With(zap.String("user_id", settings.UserID), zap.String("trader_id", settings.TraderID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("follower panicked", zap.Any("panic", r))
			outcome = outcomeFailed
		}
	}()

	assessment, err := s.AssessRisk(ctx, settings, sig)
	if err != nil {
		log.Error("risk assessment failed", zap.Error(err))
		return outcomeFailed
	}
	if !assessment.Allowed {
		log.Info("copy rejected", zap.String("reason", assessment.Reason))
		return outcomeRejected
	}

	amount := sig.Amount
	if assessment.AdjustedAmount != nil {
		amount = *assessment.AdjustedAmount
	}
	if _, err := s.ExecuteCopyTrade(ctx, settings, sig, amount); err != nil {
		log.Error("copy execution failed", zap.Error(err))
		return outcomeFailed
	}
	return outcomeExecuted
}

// AssessRisk applies the checks in order; the first one that decides wins.
func (s *signalService) AssessRisk(ctx context.Context, settings *models.CopySettings, sig models.TradeSignal) (models.RiskAssessment, error) {
	amount := sig.Amount

	if settings.MaxTradeSize > 0 && amount > settings.MaxTradeSize {
		clamped := settings.MaxTradeSize
		return models.RiskAssessment{Allowed: true, AdjustedAmount: &clamped, Reason: ReasonClamped}, nil
	}

	used, err := s.usage.Used(ctx, settings.UserID, s.now())
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("load daily usage: %w", err)
	}
	if used+amount > settings.DailyLimit() {
		return models.RiskAssessment{Allowed: false, Reason: ReasonDailyLimit}, nil
	}

	if s.stopLossTriggered(ctx, settings, sig) {
		return models.RiskAssessment{Allowed: false, Reason: ReasonStopLoss}, nil
	}

	return models.RiskAssessment{Allowed: true, AdjustedAmount: &amount}, nil
}

// stopLossTriggered reports whether the follower's open position in the
// symbol has moved against its average entry by at least StopLossPct.
// Only copies that add to the position are blocked; reducing or closing
// trades always pass.
func (s *signalService) stopLossTriggered(ctx context.Context, settings *models.CopySettings, sig models.TradeSignal) bool {
	if settings.StopLossPct <= 0 {
		return false
	}
	pos, ok := s.positions.Get(settings.UserID, settings.TraderID, sig.Symbol)
	if !ok || pos.AvgEntryPrice <= 0 {
		return false
	}
	if sig.Side.Sign()*pos.Quantity <= 0 {
		return false
	}
	return adverseMovePct(pos, s.markPrice(ctx, sig)) >= settings.StopLossPct
}

func adverseMovePct(pos models.Position, mark float64) float64 {
	if pos.Quantity > 0 {
		return (pos.AvgEntryPrice - mark) / pos.AvgEntryPrice * 100
	}
	return (mark - pos.AvgEntryPrice) / pos.AvgEntryPrice * 100
}

func (s *signalService) markPrice(ctx context.Context, sig models.TradeSignal) float64 {
	if sig.Price > 0 {
		return sig.Price
	}
	return s.prices.GetCurrentPrice(ctx, sig.Symbol).Price
}

func (s *signalService) ExecuteCopyTrade(ctx context.Context, settings *models.CopySettings, sig models.TradeSignal, amount float64) (*models.CopyTradeRecord, error) {
	if !(amount > 0) {
		return nil, invalid("amount", "must be positive")
	}
	now := s.now()
	price := s.markPrice(ctx, sig)

	req := interfaces.OrderRequest{
		RequestID:  uuid.NewString(),
		UserID:     settings.UserID,
		TraderID:   settings.TraderID,
		SettingsID: settings.ID.Hex(),
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		Amount:     amount,
		Price:      price,
		OrderType:  "MARKET",
		Timestamp:  now,
	}

	record := &models.CopyTradeRecord{
		SettingsID:   settings.ID,
		UserID:       settings.UserID,
		TraderID:     settings.TraderID,
		Symbol:       sig.Symbol,
		Side:         sig.Side,
		SignalAmount: sig.Amount,
		Amount:       amount,
		Price:        price,
		SignalTime:   sig.Time(),
	}
	if amount < sig.Amount {
		record.RiskNote = ReasonClamped
	}

	resp, err := s.executor.Execute(ctx, req)
	if err != nil {
		record.Status = models.CopyTradeStatusFailed
		record.RiskNote = err.Error()
		if saveErr := s.trades.SaveCopyTrade(ctx, record); saveErr != nil {
			s.logger.Warn("failed to record failed copy trade", zap.Error(saveErr))
		}
		return nil, fmt.Errorf("execute copy trade: %w", err)
	}

	if resp.FilledPrice > 0 {
		record.Price = resp.FilledPrice
	}
	record.OrderID = resp.OrderID
	record.Status = models.CopyTradeStatusExecuted

	// The venue filled the order; limits and exposure are booked before the
	// record so a store outage cannot hide it from later risk checks.
	if _, err := s.usage.Add(ctx, settings.UserID, now, amount); err != nil {
		s.logger.Error("failed to update daily usage", zap.String("user_id", settings.UserID), zap.Error(err))
	}
	pos := s.positions.Apply(settings.UserID, settings.TraderID, sig.Symbol, sig.Side, amount/record.Price, record.Price, now)

	if err := s.trades.SaveCopyTrade(ctx, record); err != nil {
		s.logger.Error("failed to record executed copy trade",
			zap.String("user_id", settings.UserID),
			zap.String("order_id", record.OrderID),
			zap.Error(err),
		)
	}
	s.notify(settings, record, pos, now)
	return record, nil
}

func (s *signalService) notify(settings *models.CopySettings, record *models.CopyTradeRecord, pos models.Position, now time.Time) {
	if s.notifier == nil {
		return
	}
	s.notifier.SendNotificationToUser(settings.UserID, models.Notification{
		Kind:    "copy_trade_executed",
		Message: fmt.Sprintf("Copied %s %s %.2f @ %.4f from %s", record.Side, record.Symbol, record.Amount, record.Price, record.TraderID),
		Data: map[string]any{
			"orderId":  record.OrderID,
			"traderId": record.TraderID,
			"symbol":   record.Symbol,
			"side":     record.Side,
			"amount":   record.Amount,
			"price":    record.Price,
		},
		Timestamp: now.UnixMilli(),
	})
	s.notifier.BroadcastPositionUpdate(models.PositionUpdate{
		UserID:        settings.UserID,
		TraderID:      settings.TraderID,
		Symbol:        record.Symbol,
		Quantity:      pos.Quantity,
		AvgEntryPrice: pos.AvgEntryPrice,
		Price:         record.Price,
		Timestamp:     now.UnixMilli(),
	})

	if settings.TakeProfitPct > 0 && pos.AvgEntryPrice > 0 && pos.Quantity != 0 {
		if gain := -adverseMovePct(pos, record.Price); gain >= settings.TakeProfitPct {
			s.notifier.SendNotificationToUser(settings.UserID, models.Notification{
				Kind:      "take_profit_reached",
				Message:   fmt.Sprintf("%s position copied from %s is up %.2f%%", record.Symbol, record.TraderID, gain),
				Timestamp: now.UnixMilli(),
			})
		}
	}
}
