package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/investverse/internal/command"
	"github.com/trogers1052/investverse/internal/models"
	"github.com/trogers1052/investverse/internal/portfolio"
)

// ChatRepository defines the chat message storage used by the consumer
type ChatRepository interface {
	CreateChatMessage(ctx context.Context, m *models.ChatMessage) error
	ChatMessageExists(ctx context.Context, id string) (bool, error)
}

// TradeExecutor applies a parsed trade to a portfolio
type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, portfolioID string, intent models.TradeIntent) (*portfolio.Execution, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// ChatConsumer reads group chat messages from Kafka, stores them, and
// executes the ones that are trade commands against the group's portfolio.
// Messages without a group id go to defaultGroupID, or are rejected when it is empty.
type ChatConsumer struct {
	reader         messageReader
	repo           ChatRepository
	executor       TradeExecutor
	defaultGroupID string
	logger         zerolog.Logger
}

// NewChatConsumer creates a new Kafka consumer for chat messages
func NewChatConsumer(brokers []string, topic, groupID, defaultGroupID string, repo ChatRepository, executor TradeExecutor, logger zerolog.Logger) *ChatConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &ChatConsumer{
		reader:         reader,
		repo:           repo,
		executor:       executor,
		defaultGroupID: defaultGroupID,
		logger:         logger.With().Str("component", "chat_consumer").Logger(),
	}
}

// Start begins consuming messages until ctx is cancelled
func (c *ChatConsumer) Start(ctx context.Context) error {
	c.logger.Info().Str("topic", c.reader.Config().Topic).Msg("Starting chat consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Chat consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.logger.Error().Err(err).Msg("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error().
					Err(err).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("Error processing message")
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *ChatConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.ChatEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal chat event: %w", err)
	}

	if event.EventType != models.EventChatMessage {
		c.logger.Debug().Str("event_type", event.EventType).Msg("Ignoring event")
		return nil
	}

	m := event.Data
	if m.GroupID == "" {
		if c.defaultGroupID == "" {
			return fmt.Errorf("chat message %q has no group id", m.ID)
		}
		m.GroupID = c.defaultGroupID
	}

	if m.ID != "" {
		exists, err := c.repo.ChatMessageExists(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("failed to check for duplicate message: %w", err)
		}
		if exists {
			c.logger.Debug().Str("message_id", m.ID).Msg("Message already stored, skipping")
			return nil
		}
	}

	intent, parseErr := command.Parse(m.Content)
	m.IsInvestmentCommand = parseErr == nil

	if parseErr != nil {
		// Not every message is a command; malformed amounts are worth surfacing.
		if errors.Is(parseErr, command.ErrMalformedAmount) {
			c.logger.Warn().
				Str("group_id", m.GroupID).
				Str("content", m.Content).
				Str("kind", portfolio.ErrorKind(parseErr)).
				Msg("Command with malformed amount stored as chat")
		}
		return c.saveMessage(ctx, &m)
	}

	// The message is stored only once the trade has run or been rejected, so a
	// message whose trade failed internally is not marked as seen and can be retried.
	exec, err := c.executor.ExecuteTrade(ctx, m.GroupID, intent)
	if err != nil {
		kind := portfolio.ErrorKind(err)
		if kind == portfolio.KindInternal {
			return fmt.Errorf("failed to execute %s: %w", intent, err)
		}
		c.logger.Warn().
			Str("portfolio_id", m.GroupID).
			Str("message_id", m.ID).
			Str("sender", m.SenderName).
			Str("kind", kind).
			Msg("Trade command rejected")
		return c.saveMessage(ctx, &m)
	}

	c.logger.Info().
		Str("portfolio_id", m.GroupID).
		Str("message_id", m.ID).
		Str("sender", m.SenderName).
		Str("command", intent.String()).
		Str("total_value", exec.Snapshot.TotalValue.StringFixed(2)).
		Msg("Trade command executed")

	return c.saveMessage(ctx, &m)
}

func (c *ChatConsumer) saveMessage(ctx context.Context, m *models.ChatMessage) error {
	if err := c.repo.CreateChatMessage(ctx, m); err != nil {
		return fmt.Errorf("failed to save chat message: %w", err)
	}
	return nil
}

// Close closes the Kafka consumer
func (c *ChatConsumer) Close() error {
	return c.reader.Close()
}
