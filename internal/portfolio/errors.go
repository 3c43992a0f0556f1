package portfolio

import (
	"errors"
	"fmt"

	"github.com/trogers1052/investverse/internal/command"
)

var (
	// ErrQuoteUnavailable means the traded symbol could not be priced; nothing was applied
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrInsufficientShares means a sell exceeds the shares held; nothing was applied
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrInvalidIntent means the intent has no symbol, an unknown action or a non-positive amount
	ErrInvalidIntent = errors.New("invalid trade intent")
)

// Error kinds reported to users and API clients
const (
	KindMalformedCommand   = "malformed_command"
	KindMalformedAmount    = "malformed_amount"
	KindQuoteUnavailable   = "quote_unavailable"
	KindInsufficientShares = "insufficient_shares"
	KindInvalidIntent      = "invalid_intent"
	KindInternal           = "internal"
)

// TradeError carries the failure kind of a rejected trade along with its cause
type TradeError struct {
	Kind   error
	Symbol string
	Err    error
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Symbol)
}

func (e *TradeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ErrorKind classifies err into one of the Kind constants
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, command.ErrMalformedAmount):
		return KindMalformedAmount
	case errors.Is(err, command.ErrMalformedCommand):
		return KindMalformedCommand
	case errors.Is(err, ErrQuoteUnavailable):
		return KindQuoteUnavailable
	case errors.Is(err, ErrInsufficientShares):
		return KindInsufficientShares
	case errors.Is(err, ErrInvalidIntent):
		return KindInvalidIntent
	}
	return KindInternal
}
