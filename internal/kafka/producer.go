package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/investverse/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing portfolio events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		now:    time.Now,
	}
}

// PublishTradeExecuted publishes a TRADE_EXECUTED event for the fill followed
// by a PORTFOLIO_UPDATED event carrying the new totals. Both are keyed by symbol.
func (p *Producer) PublishTradeExecuted(ctx context.Context, t *models.Transaction, snapshot *models.PortfolioSnapshot) error {
	now := p.now()
	executed := models.PortfolioEvent{
		EventType:   models.EventTradeExecuted,
		PortfolioID: t.PortfolioID,
		Symbol:      t.Symbol,
		Transaction: t,
		Timestamp:   now,
	}
	updated := portfolioUpdated(snapshot, t.Symbol, now)
	return p.publish(ctx, t.Symbol, executed, updated)
}

// PublishPortfolioUpdated publishes the totals of a snapshot
func (p *Producer) PublishPortfolioUpdated(ctx context.Context, snapshot *models.PortfolioSnapshot) error {
	return p.publish(ctx, snapshot.PortfolioID, portfolioUpdated(snapshot, "", p.now()))
}

func portfolioUpdated(snapshot *models.PortfolioSnapshot, symbol string, ts time.Time) models.PortfolioEvent {
	return models.PortfolioEvent{
		EventType:      models.EventPortfolioUpdated,
		PortfolioID:    snapshot.PortfolioID,
		Symbol:         symbol,
		TotalValue:     snapshot.TotalValue,
		TotalCost:      snapshot.TotalCost,
		TotalReturnPct: snapshot.TotalReturnPct,
		StaleSymbols:   snapshot.StaleSymbols(),
		Timestamp:      ts,
	}
}

func (p *Producer) publish(ctx context.Context, key string, events ...models.PortfolioEvent) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: data,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
