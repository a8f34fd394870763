package models

import (
	"strings"
	"time"
)

type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// ParseTradeSide accepts the spellings venues commonly use for a side.
func ParseTradeSide(raw string) (TradeSide, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "B", "LONG", "BID":
		return TradeSideBuy, true
	case "SELL", "S", "SHORT", "ASK":
		return TradeSideSell, true
	default:
		return "", false
	}
}

// Sign is +1 for buys and -1 for sells.
func (s TradeSide) Sign() float64 {
	if s == TradeSideSell {
		return -1
	}
	return 1
}

// TradeSignal is one observed trade of a followed trader. Timestamp is unix ms.
type TradeSignal struct {
	TraderID  string    `json:"traderId"`
	Symbol    string    `json:"symbol"`
	Side      TradeSide `json:"side"`
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
	Timestamp int64     `json:"timestamp"`
}

func (s TradeSignal) Time() time.Time {
	if s.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.Timestamp)
}

// Position is a follower's net copied exposure in one symbol for one trader.
// Quantity is signed: positive is long.
type Position struct {
	UserID        string    `json:"userId"`
	TraderID      string    `json:"traderId"`
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	AvgEntryPrice float64   `json:"avgEntryPrice"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type PositionUpdate struct {
	UserID        string  `json:"userId"`
	TraderID      string  `json:"traderId,omitempty"`
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avgEntryPrice"`
	Price         float64 `json:"price,omitempty"`
	Timestamp     int64   `json:"timestamp"`
}

type TraderPerformance struct {
	TraderID    string  `json:"traderId"`
	PnL         float64 `json:"pnl"`
	ROI         float64 `json:"roi"`
	WinRate     float64 `json:"winRate"`
	TotalTrades int     `json:"totalTrades"`
	Timestamp   int64   `json:"timestamp"`
}

type TraderDetails struct {
	TraderID    string             `json:"traderId"`
	Performance *TraderPerformance `json:"performance,omitempty"`
	Followers   int                `json:"followers"`
}
