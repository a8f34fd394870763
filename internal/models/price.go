package models

import "time"

type PriceQuote struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	Change24h   float64   `json:"change24h"`
	Volume24h   float64   `json:"volume24h"`
	MarketCap   float64   `json:"marketCap"`
	LastUpdated time.Time `json:"lastUpdated"`
	Source      string    `json:"source"`
}

// MarketUpdate is a market_data frame from the upstream feed.
type MarketUpdate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h,omitempty"`
	Volume24h float64 `json:"volume24h,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

type ServiceStatus struct {
	Providers map[string]bool `json:"providers"`
	Fallback  bool            `json:"fallback"`
	CheckedAt time.Time       `json:"checkedAt"`
}
