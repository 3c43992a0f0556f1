// Package portfolio applies trade intents to holdings and values portfolios at current prices.
package portfolio

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/investverse/internal/models"
)

// QuoteProvider resolves the current price of a symbol
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
}

// shareEpsilon absorbs division rounding when a sell closes a whole position
var shareEpsilon = decimal.New(1, -9)

var hundred = decimal.NewFromInt(100)

// Fill describes how an intent was applied
type Fill struct {
	Action models.TradeAction
	Symbol string
	Amount decimal.Decimal
	Shares decimal.Decimal
	Price  decimal.Decimal
}

// Result is the outcome of a recalculation
type Result struct {
	// Holdings is the new holding set to persist, zero-share holdings removed
	Holdings []models.Holding
	Snapshot models.PortfolioSnapshot
	// Fill is nil when no intent was supplied
	Fill *Fill
}

// Recalculator applies at most one trade intent and values the resulting holdings.
// It holds no state between calls.
type Recalculator struct {
	quotes QuoteProvider
}

// NewRecalculator creates a Recalculator reading prices from quotes
func NewRecalculator(quotes QuoteProvider) *Recalculator {
	return &Recalculator{quotes: quotes}
}

// Recalculate applies intent (if non-nil) to holdings and builds a snapshot.
// The input slice is never modified. A failed trade returns an error wrapping
// ErrQuoteUnavailable, ErrInsufficientShares or ErrInvalidIntent and no result.
func (r *Recalculator) Recalculate(ctx context.Context, holdings []models.Holding, intent *models.TradeIntent) (*Result, error) {
	next := make([]models.Holding, len(holdings))
	copy(next, holdings)

	prices := make(map[string]models.Quote)
	var fill *Fill

	if intent != nil {
		if err := validateIntent(intent); err != nil {
			return nil, err
		}

		quote, err := r.quotes.GetQuote(ctx, intent.Symbol)
		if err != nil {
			return nil, &TradeError{Kind: ErrQuoteUnavailable, Symbol: intent.Symbol, Err: err}
		}
		if !quote.Price.IsPositive() {
			return nil, &TradeError{Kind: ErrQuoteUnavailable, Symbol: intent.Symbol,
				Err: fmt.Errorf("non-positive price %s", quote.Price)}
		}
		prices[intent.Symbol] = quote

		next, fill, err = applyIntent(next, intent, quote.Price)
		if err != nil {
			return nil, err
		}
	}

	snapshot := r.value(ctx, next, prices)
	return &Result{Holdings: next, Snapshot: snapshot, Fill: fill}, nil
}

func validateIntent(intent *models.TradeIntent) error {
	if intent.Symbol == "" {
		return &TradeError{Kind: ErrInvalidIntent, Err: fmt.Errorf("symbol is required")}
	}
	if intent.Action != models.ActionBuy && intent.Action != models.ActionSell {
		return &TradeError{Kind: ErrInvalidIntent, Symbol: intent.Symbol, Err: fmt.Errorf("unknown action %q", intent.Action)}
	}
	if !intent.Amount.IsPositive() {
		return &TradeError{Kind: ErrInvalidIntent, Symbol: intent.Symbol, Err: fmt.Errorf("amount must be positive, got %s", intent.Amount)}
	}
	return nil
}

// applyIntent mutates holdings (a private copy) and returns the possibly resized slice
func applyIntent(holdings []models.Holding, intent *models.TradeIntent, price decimal.Decimal) ([]models.Holding, *Fill, error) {
	idx := -1
	for i := range holdings {
		if holdings[i].Symbol == intent.Symbol {
			idx = i
			break
		}
	}

	delta := intent.Amount.Div(price)
	fill := &Fill{
		Action: intent.Action,
		Symbol: intent.Symbol,
		Amount: intent.Amount,
		Shares: delta,
		Price:  price,
	}

	switch intent.Action {
	case models.ActionBuy:
		if idx < 0 {
			holdings = append(holdings, models.Holding{Symbol: intent.Symbol})
			idx = len(holdings) - 1
		}
		h := &holdings[idx]
		newShares := h.Shares.Add(delta)
		h.AverageCost = h.CostBasis().Add(delta.Mul(price)).Div(newShares)
		h.Shares = newShares

	case models.ActionSell:
		if idx < 0 {
			return nil, nil, &TradeError{
				Kind:   ErrInsufficientShares,
				Symbol: intent.Symbol,
				Err:    fmt.Errorf("selling %s shares, holding none", delta.StringFixed(6)),
			}
		}
		held := holdings[idx].Shares
		if delta.GreaterThan(held.Add(shareEpsilon)) {
			return nil, nil, &TradeError{
				Kind:   ErrInsufficientShares,
				Symbol: intent.Symbol,
				Err:    fmt.Errorf("selling %s shares, holding %s", delta.StringFixed(6), held.String()),
			}
		}
		remaining := held.Sub(delta)
		if remaining.LessThanOrEqual(shareEpsilon) {
			fill.Shares = held
			holdings = append(holdings[:idx], holdings[idx+1:]...)
		} else {
			holdings[idx].Shares = remaining
		}
	}

	return holdings, fill, nil
}

// value prices every holding; a failed lookup marks the holding stale
// instead of failing the snapshot
func (r *Recalculator) value(ctx context.Context, holdings []models.Holding, prices map[string]models.Quote) models.PortfolioSnapshot {
	rows := make([]models.HoldingSnapshot, 0, len(holdings))
	totalValue := decimal.Zero
	totalCost := decimal.Zero

	for _, h := range holdings {
		row := models.HoldingSnapshot{
			Symbol:      h.Symbol,
			Shares:      h.Shares,
			AverageCost: h.AverageCost,
			CostBasis:   h.CostBasis(),
		}

		quote, ok := prices[h.Symbol]
		if !ok {
			q, err := r.quotes.GetQuote(ctx, h.Symbol)
			if err == nil && q.Price.IsPositive() {
				quote, ok = q, true
				prices[h.Symbol] = q
			}
		}
		if !ok {
			row.QuoteStale = true
			rows = append(rows, row)
			continue
		}

		row.CurrentPrice = quote.Price
		row.CurrentValue = h.Shares.Mul(quote.Price)
		row.ReturnPct = percentChange(row.CurrentValue, row.CostBasis)

		totalValue = totalValue.Add(row.CurrentValue)
		totalCost = totalCost.Add(row.CostBasis)
		rows = append(rows, row)
	}

	if totalValue.IsPositive() {
		for i := range rows {
			if rows[i].QuoteStale {
				continue
			}
			rows[i].WeightPct = rows[i].CurrentValue.Div(totalValue).Mul(hundred)
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })

	return models.PortfolioSnapshot{
		TotalValue:     totalValue,
		TotalCost:      totalCost,
		TotalReturnPct: percentChange(totalValue, totalCost),
		Holdings:       rows,
	}
}

// percentChange returns (value-cost)/cost×100, or zero when cost is zero
func percentChange(value, cost decimal.Decimal) decimal.Decimal {
	if cost.IsZero() {
		return decimal.Zero
	}
	return value.Sub(cost).Div(cost).Mul(hundred)
}
