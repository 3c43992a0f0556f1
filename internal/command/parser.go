// Package command turns chat text such as "[買入] AAPL 100K" into trade intents.
package command

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/investverse/internal/models"
)

// Action labels recognised inside the brackets
const (
	LabelBuy  = "買入"
	LabelSell = "賣出"
)

var (
	// ErrMalformedCommand means the text is not a trade command at all
	ErrMalformedCommand = errors.New("malformed command")
	// ErrMalformedAmount means the text looks like a command but the amount cannot be read
	ErrMalformedAmount = errors.New("malformed amount")
)

// The amount token is captured loosely so that a bad number is reported as
// ErrMalformedAmount rather than falling through to ErrMalformedCommand. It
// ends at the first character that is neither a letter nor a digit, so
// trailing punctuation and chatter are allowed but "10萬" is not a command.
var (
	commandPattern = regexp.MustCompile(`\[(` + LabelBuy + `|` + LabelSell + `)\]\s+([A-Z]+)\s+(\d(?:[0-9.]*\d)?[A-Za-z]*)(?:[^\p{L}\p{N}]|$)`)
	numberPattern  = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

var unitMultipliers = map[byte]decimal.Decimal{
	'K': decimal.NewFromInt(1_000),
	'M': decimal.NewFromInt(1_000_000),
	'B': decimal.NewFromInt(1_000_000_000),
}

// Parse extracts the first trade instruction found in text.
func Parse(text string) (models.TradeIntent, error) {
	match := commandPattern.FindStringSubmatch(text)
	if match == nil {
		return models.TradeIntent{}, ErrMalformedCommand
	}

	action := models.ActionBuy
	if match[1] == LabelSell {
		action = models.ActionSell
	}

	amount, err := ParseAmount(match[3])
	if err != nil {
		return models.TradeIntent{}, err
	}

	return models.TradeIntent{
		Action: action,
		Symbol: match[2],
		Amount: amount,
	}, nil
}

// ParseAmount reads a non-negative number with an optional K/M/B suffix (any case).
func ParseAmount(s string) (decimal.Decimal, error) {
	text := strings.ToUpper(strings.TrimSpace(s))
	if text == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrMalformedAmount)
	}

	multiplier := decimal.NewFromInt(1)
	if m, ok := unitMultipliers[text[len(text)-1]]; ok {
		multiplier = m
		text = text[:len(text)-1]
	}

	if !numberPattern.MatchString(text) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	n, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	return n.Mul(multiplier), nil
}

// Format renders an intent back into chat command form
func Format(intent models.TradeIntent) string {
	label := LabelBuy
	if intent.Action == models.ActionSell {
		label = LabelSell
	}
	return fmt.Sprintf("[%s] %s %s", label, intent.Symbol, intent.Amount.String())
}
