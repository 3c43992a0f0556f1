package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventChatMessage      = "CHAT_MESSAGE"
	EventTradeExecuted    = "TRADE_EXECUTED"
	EventPortfolioUpdated = "PORTFOLIO_UPDATED"
)

// ChatMessage represents a message posted to a group chat
type ChatMessage struct {
	ID                  string    `json:"id"`
	GroupID             string    `json:"group_id"`
	Content             string    `json:"content"`
	SenderName          string    `json:"sender_name"`
	IsInvestmentCommand bool      `json:"is_investment_command"`
	CreatedAt           time.Time `json:"created_at"`
}

// ChatEvent is the Kafka envelope carrying a chat message
type ChatEvent struct {
	EventType string      `json:"event_type"`
	Source    string      `json:"source"`
	Timestamp string      `json:"timestamp"`
	Data      ChatMessage `json:"data"`
}

// PortfolioEvent represents a Kafka event for portfolio changes
type PortfolioEvent struct {
	EventType      string          `json:"event_type"`
	PortfolioID    string          `json:"portfolio_id"`
	Symbol         string          `json:"symbol,omitempty"`
	Transaction    *Transaction    `json:"transaction,omitempty"`
	TotalValue     decimal.Decimal `json:"total_value"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	TotalReturnPct decimal.Decimal `json:"total_return_pct"`
	StaleSymbols   []string        `json:"stale_symbols,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}
