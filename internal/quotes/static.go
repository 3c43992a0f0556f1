package quotes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/investverse/internal/models"
)

// Static serves prices from an in-memory table. Used in demo mode when no
// market data API key is configured.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStatic creates a Static provider seeded with prices
func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{prices: make(map[string]decimal.Decimal, len(prices))}
	for symbol, p := range prices {
		s.prices[symbol] = p
	}
	return s
}

// DemoPrices are the sample prices of the demo trading panel
func DemoPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(160),
		"TSLA": decimal.NewFromInt(250),
		"NVDA": decimal.NewFromInt(450),
	}
}

// Set updates the price of symbol
func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// GetQuote returns the stored price for symbol
func (s *Static) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[symbol]
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrQuoteNotFound, symbol)
	}
	return models.Quote{Symbol: symbol, Price: p, AsOf: time.Now()}, nil
}
