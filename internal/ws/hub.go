package ws

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mehrbod2002/copysignal/interfaces"
	"github.com/mehrbod2002/copysignal/internal/models"

	"go.uber.org/zap"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type PortfolioProvider interface {
	GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error)
}

type TraderDirectory interface {
	GetTraderDetails(ctx context.Context, traderID string) (*models.TraderDetails, error)
}

type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	PongWait       time.Duration
	RequestTimeout time.Duration
}

type Deps struct {
	Verifier  TokenVerifier
	Portfolio PortfolioProvider
	Traders   TraderDirectory
	Upstream  interfaces.FeedSubscriber
	Logger    *zap.Logger
}

// Hub fans feed events out to downstream websocket clients according to
// their subscriptions. Delivery is best effort and at most once.
type Hub struct {
	registry  *Registry
	opts      Options
	verifier  TokenVerifier
	portfolio PortfolioProvider
	traders   TraderDirectory
	upstream  interfaces.FeedSubscriber
	logger    *zap.Logger
}

func NewHub(opts Options, deps Deps) *Hub {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Hub{
		registry:  NewRegistry(opts.SendBuffer),
		opts:      opts,
		verifier:  deps.Verifier,
		portfolio: deps.Portfolio,
		traders:   deps.Traders,
		upstream:  deps.Upstream,
		logger:    deps.Logger.Named("hub"),
	}
}

// SetUpstream wires the feed after construction; the feed and the hub
// reference each other.
func (h *Hub) SetUpstream(upstream interfaces.FeedSubscriber) {
	h.upstream = upstream
}

// Status is a point-in-time view of the hub for the status endpoint.
type Status struct {
	Clients int    `json:"clients"`
	Dropped uint64 `json:"dropped"`
}

func (h *Hub) GetClientCount() int { return h.registry.Count() }

func (h *Hub) Status() Status {
	return Status{Clients: h.registry.Count(), Dropped: h.registry.Dropped()}
}

func (h *Hub) BroadcastTradeUpdate(sig models.TradeSignal) int {
	return h.broadcast("trade_update", sig, func(s *Subscription) bool {
		return s.followsTrader(sig.TraderID)
	})
}

func (h *Hub) BroadcastTraderPerformance(perf models.TraderPerformance) int {
	return h.broadcast("trader_performance", perf, func(s *Subscription) bool {
		return s.followsTrader(perf.TraderID)
	})
}

func (h *Hub) BroadcastMarketData(update models.MarketUpdate) int {
	symbol := strings.ToUpper(update.Symbol)
	return h.broadcast("market_update", update, func(s *Subscription) bool {
		return s.watchesSymbol(symbol)
	})
}

// BroadcastPositionUpdate reaches only authenticated connections of the owner.
func (h *Hub) BroadcastPositionUpdate(update models.PositionUpdate) int {
	return h.broadcast("position_update", update, func(s *Subscription) bool {
		return s.Authenticated && s.UserID == update.UserID
	})
}

func (h *Hub) SendNotificationToUser(userID string, n models.Notification) int {
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixMilli()
	}
	return h.broadcast("notification", n, func(s *Subscription) bool {
		return s.UserID == userID
	})
}

func (h *Hub) broadcast(event string, data any, match func(*Subscription) bool) int {
	payload, err := encode(event, data)
	if err != nil {
		h.logger.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return 0
	}
	return h.registry.Broadcast(payload, match)
}

func (h *Hub) reply(connID, event string, data any) {
	payload, err := encode(event, data)
	if err != nil {
		h.logger.Error("encode reply", zap.String("event", event), zap.Error(err))
		return
	}
	if !h.registry.Send(connID, payload) {
		h.logger.Debug("reply dropped", zap.String("conn_id", connID), zap.String("event", event))
	}
}

func (h *Hub) replyError(connID, event, msg string) {
	h.reply(connID, "error", models.ErrorResponse{Error: msg, Event: event})
}

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(models.OutboundMessage{Type: event, Data: data})
}
