package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction is the side of a trade instruction
type TradeAction string

// Trade action constants
const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// ParseTradeAction accepts "buy"/"sell" in any case
func ParseTradeAction(s string) (TradeAction, error) {
	switch TradeAction(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	}
	return "", fmt.Errorf("invalid trade action: %q", s)
}

// TradeIntent is a parsed instruction to buy or sell a currency amount of a symbol
type TradeIntent struct {
	Action TradeAction     `json:"action"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

func (t TradeIntent) String() string {
	return fmt.Sprintf("%s %s %s", t.Action, t.Symbol, t.Amount.String())
}

// Transaction is the journal record of an executed trade
type Transaction struct {
	ID          int             `json:"id"`
	PortfolioID string          `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Action      TradeAction     `json:"action"`
	Amount      decimal.Decimal `json:"amount"`
	Shares      decimal.Decimal `json:"shares"`
	Price       decimal.Decimal `json:"price"`
	ExecutedAt  time.Time       `json:"executed_at"`
}
