package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultDailyLimitRatio is the share of the allocated amount a follower may
// copy per day when no explicit daily limit was configured.
const DefaultDailyLimitRatio = 0.10

type CopySettings struct {
	ID             primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	UserID         string             `json:"user_id" bson:"user_id"`
	TraderID       string             `json:"trader_id" bson:"trader_id"`
	Amount         float64            `json:"amount" bson:"amount"`
	MaxTradeSize   float64            `json:"max_trade_size" bson:"max_trade_size"`
	StopLossPct    float64            `json:"stop_loss_pct" bson:"stop_loss_pct"`
	TakeProfitPct  float64            `json:"take_profit_pct" bson:"take_profit_pct"`
	DailyLossLimit float64            `json:"daily_loss_limit,omitempty" bson:"daily_loss_limit,omitempty"`
	Active         bool               `json:"active" bson:"active"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" bson:"updated_at"`
}

// DailyLimit returns the configured daily limit or the default share of Amount.
func (s *CopySettings) DailyLimit() float64 {
	if s.DailyLossLimit > 0 {
		return s.DailyLossLimit
	}
	return s.Amount * DefaultDailyLimitRatio
}

type CopyTradeStatus string

const (
	CopyTradeStatusExecuted CopyTradeStatus = "EXECUTED"
	CopyTradeStatusFailed   CopyTradeStatus = "FAILED"
)

type CopyTradeRecord struct {
	ID           primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	SettingsID   primitive.ObjectID `json:"settings_id" bson:"settings_id"`
	UserID       string             `json:"user_id" bson:"user_id"`
	TraderID     string             `json:"trader_id" bson:"trader_id"`
	Symbol       string             `json:"symbol" bson:"symbol"`
	Side         TradeSide          `json:"side" bson:"side"`
	SignalAmount float64            `json:"signal_amount" bson:"signal_amount"`
	Amount       float64            `json:"amount" bson:"amount"`
	Price        float64            `json:"price" bson:"price"`
	OrderID      string             `json:"order_id" bson:"order_id"`
	Status       CopyTradeStatus    `json:"status" bson:"status"`
	RiskNote     string             `json:"risk_note,omitempty" bson:"risk_note,omitempty"`
	SignalTime   time.Time          `json:"signal_time" bson:"signal_time"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
}

// RiskAssessment is derived per follower and never persisted.
type RiskAssessment struct {
	Allowed        bool     `json:"allowed"`
	AdjustedAmount *float64 `json:"adjustedAmount,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

type Portfolio struct {
	UserID       string             `json:"userId"`
	Settings     []*CopySettings    `json:"settings"`
	Positions    []Position         `json:"positions"`
	RecentTrades []*CopyTradeRecord `json:"recentTrades"`
	UsedToday    float64            `json:"usedToday"`
	GeneratedAt  time.Time          `json:"generatedAt"`
}
