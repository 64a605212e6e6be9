package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/domain/bingo"
)

const (
	checkpointKey = "bingo:engine:snapshot"
	checkpointTTL = 24 * time.Hour
)

// Snapshot is everything needed to resume a round after a restart.
type Snapshot struct {
	Seq           uint64          `json:"seq"`
	Phase         Phase           `json:"phase"`
	GameID        uuid.UUID       `json:"game_id"`
	Stake         decimal.Decimal `json:"stake"`
	Pot           decimal.Decimal `json:"pot"`
	SecondsLeft   int             `json:"seconds_left"`
	DrawSeed      uint64          `json:"draw_seed"`
	Called        []int           `json:"called"`
	Participants  []Seat          `json:"participants"`
	PendingWinner *Winner         `json:"pending_winner,omitempty"`
	SavedAt       time.Time       `json:"saved_at"`
}

// Seat is a confirmed participant of the current round.
type Seat struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	CardID int       `json:"card_id"`
}

type Winner struct {
	UserID  uuid.UUID       `json:"user_id"`
	Name    string          `json:"name"`
	CardID  int             `json:"card_id"`
	Prize   decimal.Decimal `json:"prize"`
	Pattern bingo.Win       `json:"pattern"`
}

type Checkpointer interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load returns nil without error when no snapshot exists.
	Load(ctx context.Context) (*Snapshot, error)
}

// RedisCheckpointer keeps the latest snapshot under a single key.
type RedisCheckpointer struct {
	client *redis.Client
	key    string
}

func NewRedisCheckpointer(client *redis.Client) *RedisCheckpointer {
	return &RedisCheckpointer{client: client, key: checkpointKey}
}

func (c *RedisCheckpointer) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, checkpointTTL).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (c *RedisCheckpointer) Load(ctx context.Context) (*Snapshot, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// NopCheckpointer is used when Redis is not configured. Rounds in flight are
// lost on restart.
type NopCheckpointer struct{}

func (NopCheckpointer) Save(context.Context, Snapshot) error { return nil }

func (NopCheckpointer) Load(context.Context) (*Snapshot, error) { return nil, nil }
