package database

import (
	"context"
	"fmt"
	"time"

	"github.com/trogers1052/investverse/internal/models"
)

// LoadHoldings retrieves all holdings of a portfolio ordered by symbol
func (db *DB) LoadHoldings(ctx context.Context, portfolioID string) ([]models.Holding, error) {
	query := `
		SELECT symbol, shares, average_cost, updated_at
		FROM holdings
		WHERE portfolio_id = $1
		ORDER BY symbol
	`
	rows, err := db.conn.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.Symbol, &h.Shares, &h.AverageCost, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holdings: %w", err)
	}

	return holdings, nil
}

// SaveHoldings replaces the holdings of a portfolio in a single transaction.
// Holdings with no shares are not written.
func (db *DB) SaveHoldings(ctx context.Context, portfolioID string, holdings []models.Holding) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE portfolio_id = $1`, portfolioID); err != nil {
		return fmt.Errorf("failed to delete existing holdings: %w", err)
	}

	now := time.Now()
	for _, h := range holdings {
		if !h.Shares.IsPositive() {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO holdings (portfolio_id, symbol, shares, average_cost, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, portfolioID, h.Symbol, h.Shares, h.AverageCost, now)
		if err != nil {
			return fmt.Errorf("failed to insert holding %s: %w", h.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
