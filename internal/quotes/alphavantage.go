// Package quotes provides market prices for the portfolio recalculator.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/investverse/internal/models"
	"golang.org/x/time/rate"
)

var (
	// ErrQuoteNotFound means the provider has no price for the symbol
	ErrQuoteNotFound = errors.New("quote not found")
	// ErrRateLimited means Alpha Vantage answered with its request quota notice
	ErrRateLimited = errors.New("alpha vantage rate limit reached")
	// ErrAPIKeyMissing is returned by NewAlphaVantage when no key is configured
	ErrAPIKeyMissing = errors.New("alpha vantage api key not set")
)

// DefaultAlphaVantageURL is the public Alpha Vantage query endpoint
const DefaultAlphaVantageURL = "https://www.alphavantage.co/query"

// Provider resolves the current quote of a symbol
type Provider interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
}

// AlphaVantage fetches GLOBAL_QUOTE data, paced by a token bucket sized to
// the configured requests per minute
type AlphaVantage struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// AlphaVantageOptions configures an AlphaVantage provider
type AlphaVantageOptions struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
	Timeout           time.Duration
}

// NewAlphaVantage creates a new Alpha Vantage provider
func NewAlphaVantage(opts AlphaVantageOptions, logger zerolog.Logger) (*AlphaVantage, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrAPIKeyMissing
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultAlphaVantageURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}

	return &AlphaVantage{
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With().Str("component", "alphavantage").Logger(),
	}, nil
}

type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
	Information string            `json:"Information"`
}

// GetQuote returns the latest price for symbol
func (a *AlphaVantage) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return models.Quote{}, ErrQuoteNotFound
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return models.Quote{}, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to build quote request: %w", err)
	}
	req.Header.Set("User-Agent", "investverse/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Quote{}, fmt.Errorf("alphavantage http %d for %s", resp.StatusCode, symbol)
	}

	var body globalQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Quote{}, fmt.Errorf("failed to decode quote for %s: %w", symbol, err)
	}
	if body.Note != "" || body.Information != "" {
		a.logger.Warn().Str("symbol", symbol).Msg("Alpha Vantage rate limit note received")
		return models.Quote{}, ErrRateLimited
	}

	return parseGlobalQuote(symbol, body.GlobalQuote)
}

func parseGlobalQuote(symbol string, gq map[string]string) (models.Quote, error) {
	if len(gq) == 0 {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrQuoteNotFound, symbol)
	}

	price, err := decimal.NewFromString(gq["05. price"])
	if err != nil || !price.IsPositive() {
		return models.Quote{}, fmt.Errorf("%w: %s has no usable price", ErrQuoteNotFound, symbol)
	}

	quote := models.Quote{
		Symbol: symbol,
		Price:  price,
		AsOf:   time.Now(),
	}
	if s := gq["01. symbol"]; s != "" {
		quote.Symbol = s
	}
	if change, err := decimal.NewFromString(gq["09. change"]); err == nil {
		quote.Change = change
	}
	if pct, err := decimal.NewFromString(strings.TrimSuffix(gq["10. change percent"], "%")); err == nil {
		quote.ChangePercent = pct
	}
	if day, err := time.Parse("2006-01-02", gq["07. latest trading day"]); err == nil {
		quote.AsOf = day
	}
	return quote, nil
}
