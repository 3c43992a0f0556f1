package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/investverse/internal/models"
)

// CreateGroup inserts an investment group, assigning an id and timestamp when missing
func (db *DB) CreateGroup(ctx context.Context, g *models.InvestmentGroup) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO investment_groups (id, name, host, entry_fee, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := db.conn.ExecContext(ctx, query, g.ID, g.Name, g.Host, g.EntryFee, g.Category, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group with its member count. A missing group returns nil, nil.
func (db *DB) GetGroup(ctx context.Context, id string) (*models.InvestmentGroup, error) {
	query := `
		SELECT g.id, g.name, g.host, g.entry_fee, g.category, g.created_at,
			(SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id)
		FROM investment_groups g
		WHERE g.id = $1
	`
	var g models.InvestmentGroup
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.Name, &g.Host, &g.EntryFee, &g.Category, &g.CreatedAt, &g.MemberCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// ListGroups retrieves groups oldest first, filtered by category unless category is empty
func (db *DB) ListGroups(ctx context.Context, category string) ([]*models.InvestmentGroup, error) {
	query := `
		SELECT g.id, g.name, g.host, g.entry_fee, g.category, g.created_at, COUNT(m.user_id)
		FROM investment_groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		WHERE $1::text = '' OR g.category = $1::text
		GROUP BY g.id
		ORDER BY g.created_at ASC, g.id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.InvestmentGroup
	for rows.Next() {
		var g models.InvestmentGroup
		err := rows.Scan(&g.ID, &g.Name, &g.Host, &g.EntryFee, &g.Category, &g.CreatedAt, &g.MemberCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	return groups, nil
}

// AddGroupMember records m. It reports false when the user had already joined.
func (db *DB) AddGroupMember(ctx context.Context, m *models.GroupMember) (bool, error) {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}

	query := `
		INSERT INTO group_members (group_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`
	result, err := db.conn.ExecContext(ctx, query, m.GroupID, m.UserID, m.JoinedAt)
	if err != nil {
		return false, fmt.Errorf("failed to add group member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}
