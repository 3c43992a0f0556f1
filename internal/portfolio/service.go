package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/trogers1052/investverse/internal/command"
	"github.com/trogers1052/investverse/internal/models"
)

// HoldingsStore persists holdings per portfolio
type HoldingsStore interface {
	LoadHoldings(ctx context.Context, portfolioID string) ([]models.Holding, error)
	SaveHoldings(ctx context.Context, portfolioID string, holdings []models.Holding) error
}

// TransactionJournal records executed trades
type TransactionJournal interface {
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetTransactionsByPortfolio(ctx context.Context, portfolioID string, limit int) ([]*models.Transaction, error)
}

// EventPublisher announces executed trades
type EventPublisher interface {
	PublishTradeExecuted(ctx context.Context, t *models.Transaction, snapshot *models.PortfolioSnapshot) error
}

// Execution is the outcome of a successful trade
type Execution struct {
	Transaction models.Transaction      `json:"transaction"`
	Snapshot    models.PortfolioSnapshot `json:"snapshot"`
}

// Service runs trades and valuations against stored portfolios. Calls for the
// same portfolio id are serialised; different portfolios proceed in parallel.
type Service struct {
	store     HoldingsStore
	journal   TransactionJournal
	publisher EventPublisher
	recalc    *Recalculator
	locks     *keyedLocks
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a new Service. journal and publisher may be nil.
func NewService(store HoldingsStore, journal TransactionJournal, publisher EventPublisher, quotes QuoteProvider, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		journal:   journal,
		publisher: publisher,
		recalc:    NewRecalculator(quotes),
		locks:     newKeyedLocks(),
		logger:    logger.With().Str("component", "portfolio").Logger(),
		now:       time.Now,
	}
}

// ExecuteCommand parses text and executes it. A parse failure is returned
// unwrapped so callers can fall back to treating text as plain chat.
func (s *Service) ExecuteCommand(ctx context.Context, portfolioID, text string) (*Execution, error) {
	intent, err := command.Parse(text)
	if err != nil {
		return nil, err
	}
	return s.ExecuteTrade(ctx, portfolioID, intent)
}

// ExecuteTrade applies intent to the portfolio and persists the new holdings
func (s *Service) ExecuteTrade(ctx context.Context, portfolioID string, intent models.TradeIntent) (*Execution, error) {
	unlock := s.locks.Lock(portfolioID)
	defer unlock()

	holdings, err := s.store.LoadHoldings(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	result, err := s.recalc.Recalculate(ctx, holdings, &intent)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("portfolio_id", portfolioID).
			Str("symbol", intent.Symbol).
			Str("action", string(intent.Action)).
			Str("kind", ErrorKind(err)).
			Msg("Trade rejected")
		return nil, err
	}

	if err := s.store.SaveHoldings(ctx, portfolioID, result.Holdings); err != nil {
		return nil, fmt.Errorf("failed to save holdings: %w", err)
	}

	now := s.now()
	tx := models.Transaction{
		PortfolioID: portfolioID,
		Symbol:      result.Fill.Symbol,
		Action:      result.Fill.Action,
		Amount:      result.Fill.Amount,
		Shares:      result.Fill.Shares,
		Price:       result.Fill.Price,
		ExecutedAt:  now,
	}
	snapshot := result.Snapshot
	snapshot.PortfolioID = portfolioID
	snapshot.GeneratedAt = now

	// Holdings are the source of truth; a missing journal row or event is logged only.
	if s.journal != nil {
		if err := s.journal.CreateTransaction(ctx, &tx); err != nil {
			s.logger.Error().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to record transaction")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishTradeExecuted(ctx, &tx, &snapshot); err != nil {
			s.logger.Error().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to publish trade event")
		}
	}

	s.logger.Info().
		Str("portfolio_id", portfolioID).
		Str("symbol", tx.Symbol).
		Str("action", string(tx.Action)).
		Str("amount", tx.Amount.String()).
		Str("shares", tx.Shares.StringFixed(6)).
		Str("price", tx.Price.String()).
		Msg("Trade executed")

	return &Execution{Transaction: tx, Snapshot: snapshot}, nil
}

// Snapshot values the stored holdings without changing them
func (s *Service) Snapshot(ctx context.Context, portfolioID string) (*models.PortfolioSnapshot, error) {
	unlock := s.locks.Lock(portfolioID)
	defer unlock()

	holdings, err := s.store.LoadHoldings(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	result, err := s.recalc.Recalculate(ctx, holdings, nil)
	if err != nil {
		return nil, err
	}

	snapshot := result.Snapshot
	snapshot.PortfolioID = portfolioID
	snapshot.GeneratedAt = s.now()

	if stale := snapshot.StaleSymbols(); len(stale) > 0 {
		s.logger.Warn().Str("portfolio_id", portfolioID).Strs("symbols", stale).Msg("Quotes unavailable for holdings")
	}
	return &snapshot, nil
}

// History returns the most recent executed trades
func (s *Service) History(ctx context.Context, portfolioID string, limit int) ([]*models.Transaction, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.GetTransactionsByPortfolio(ctx, portfolioID, limit)
}
