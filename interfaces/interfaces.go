package interfaces

import (
	"context"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"
)

// ExecutionService places a follower order with the execution venue.
type ExecutionService interface {
	Execute(ctx context.Context, req OrderRequest) (*OrderResponse, error)
}

type OrderRequest struct {
	RequestID  string           `json:"request_id"`
	UserID     string           `json:"user_id"`
	TraderID   string           `json:"trader_id"`
	SettingsID string           `json:"settings_id"`
	Symbol     string           `json:"symbol"`
	Side       models.TradeSide `json:"side"`
	Amount     float64          `json:"amount"`
	Price      float64          `json:"price"`
	OrderType  string           `json:"order_type"`
	Timestamp  time.Time        `json:"timestamp"`
}

type OrderResponse struct {
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"`
	FilledPrice float64   `json:"filled_price"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notifier pushes per-user events to connected clients.
type Notifier interface {
	SendNotificationToUser(userID string, n models.Notification) int
	BroadcastPositionUpdate(update models.PositionUpdate) int
}

// FeedSubscriber forwards interest in a trader or symbols to the upstream feed.
type FeedSubscriber interface {
	SubscribeToTrader(traderID string) error
	SubscribeToMarketData(symbols []string) error
}
