package database

import (
	"context"
	"fmt"
	"time"

	"github.com/trogers1052/investverse/internal/models"
)

const defaultHistoryLimit = 50

// CreateTransaction inserts a new portfolio transaction record
func (db *DB) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO portfolio_transactions (
			portfolio_id, symbol, action, amount, shares, price, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	executedAt := t.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now()
	}

	err := db.conn.QueryRowContext(ctx, query,
		t.PortfolioID, t.Symbol, string(t.Action), t.Amount, t.Shares, t.Price, executedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	t.ExecutedAt = executedAt
	return nil
}

// GetTransactionsByPortfolio retrieves the most recent transactions of a portfolio
func (db *DB) GetTransactionsByPortfolio(ctx context.Context, portfolioID string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query := `
		SELECT id, portfolio_id, symbol, action, amount, shares, price, executed_at
		FROM portfolio_transactions
		WHERE portfolio_id = $1
		ORDER BY executed_at DESC, id DESC
		LIMIT $2
	`
	rows, err := db.conn.QueryContext(ctx, query, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		var action string
		err := rows.Scan(&t.ID, &t.PortfolioID, &t.Symbol, &action, &t.Amount, &t.Shares, &t.Price, &t.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Action = models.TradeAction(action)
		txs = append(txs, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return txs, nil
}
