// Package events publishes game lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	TypeGameCompleted = "game.completed"
	TypeGameCancelled = "game.cancelled"
)

// GameEvent describes a settled round.
type GameEvent struct {
	Type          string          `json:"type"`
	GameID        uuid.UUID       `json:"game_id"`
	Stake         decimal.Decimal `json:"stake"`
	TotalPot      decimal.Decimal `json:"total_pot"`
	Prize         decimal.Decimal `json:"prize"`
	WinnerUserID  *uuid.UUID      `json:"winner_user_id,omitempty"`
	WinningCardID *int            `json:"winning_card_id,omitempty"`
	Players       int             `json:"players"`
	Called        []int           `json:"called_numbers"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type Publisher interface {
	PublishGameEvent(ctx context.Context, ev GameEvent) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
	}}
}

// New returns a Kafka publisher, or a no-op one when no brokers are configured.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 || topic == "" {
		return NopPublisher{}
	}
	return NewKafkaPublisher(brokers, topic)
}

func encode(ev GameEvent) (kafka.Message, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal game event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.GameID.String()),
		Value: b,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}, nil
}

func (p *KafkaPublisher) PublishGameEvent(ctx context.Context, ev GameEvent) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write game event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NopPublisher struct{}

func (NopPublisher) PublishGameEvent(context.Context, GameEvent) error { return nil }
func (NopPublisher) Close() error { return nil }
