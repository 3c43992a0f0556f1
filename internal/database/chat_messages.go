package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/investverse/internal/models"
)

// CreateChatMessage inserts a chat message, assigning an id and timestamp when missing
func (db *DB) CreateChatMessage(ctx context.Context, m *models.ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO chat_messages (id, group_id, content, sender_name, is_investment_command, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := db.conn.ExecContext(ctx, query,
		m.ID, m.GroupID, m.Content, m.SenderName, m.IsInvestmentCommand, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	return nil
}

// ChatMessageExists checks if a message with the given id was already stored
func (db *DB) ChatMessageExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM chat_messages WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check chat message existence: %w", err)
	}
	return exists, nil
}

// GetChatHistory retrieves up to limit messages of a group, oldest first
func (db *DB) GetChatHistory(ctx context.Context, groupID string, limit int) ([]*models.ChatMessage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query := `
		SELECT id, group_id, content, sender_name, is_investment_command, created_at
		FROM chat_messages
		WHERE group_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := db.conn.QueryContext(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		err := rows.Scan(&m.ID, &m.GroupID, &m.Content, &m.SenderName, &m.IsInvestmentCommand, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}

	return messages, nil
}
