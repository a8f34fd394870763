package models

import "encoding/json"

// SocketMessage is the {type,data} envelope used on both the upstream feed and
// the downstream hub.
type SocketMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type OutboundMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type SubscriptionResponse struct {
	Channel    string   `json:"channel"`
	TraderID   string   `json:"traderId,omitempty"`
	Symbols    []string `json:"symbols,omitempty"`
	Subscribed bool     `json:"subscribed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Event string `json:"event,omitempty"`
}

type Notification struct {
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}
