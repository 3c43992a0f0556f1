package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding represents a position in one instrument within a portfolio
type Holding struct {
	Symbol      string          `json:"symbol"`
	Shares      decimal.Decimal `json:"shares"`
	AverageCost decimal.Decimal `json:"average_cost"`
	UpdatedAt   time.Time       `json:"updated_at,omitempty"`
}

// CostBasis returns shares × average cost
func (h Holding) CostBasis() decimal.Decimal {
	return h.Shares.Mul(h.AverageCost)
}

// Quote is a point-in-time market price for a symbol
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change,omitempty"`
	ChangePercent decimal.Decimal `json:"change_percent,omitempty"`
	AsOf          time.Time       `json:"as_of,omitempty"`
}

// HoldingSnapshot is the derived view of one holding at current prices.
// When QuoteStale is set the price-dependent fields are zero and the holding
// is excluded from portfolio totals and weights.
type HoldingSnapshot struct {
	Symbol       string          `json:"symbol"`
	Shares       decimal.Decimal `json:"shares"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	CurrentValue decimal.Decimal `json:"current_value"`
	ReturnPct    decimal.Decimal `json:"return_pct"`
	WeightPct    decimal.Decimal `json:"weight_pct"`
	QuoteStale   bool            `json:"quote_stale,omitempty"`
}

// PortfolioSnapshot is a read-only valuation of a portfolio, rebuilt on every request
type PortfolioSnapshot struct {
	PortfolioID    string            `json:"portfolio_id"`
	TotalValue     decimal.Decimal   `json:"total_value"`
	TotalCost      decimal.Decimal   `json:"total_cost"`
	TotalReturnPct decimal.Decimal   `json:"total_return_pct"`
	Holdings       []HoldingSnapshot `json:"holdings"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// StaleSymbols lists holdings whose quote could not be resolved
func (s *PortfolioSnapshot) StaleSymbols() []string {
	var symbols []string
	for _, h := range s.Holdings {
		if h.QuoteStale {
			symbols = append(symbols, h.Symbol)
		}
	}
	return symbols
}
