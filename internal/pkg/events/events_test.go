package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestNewWithoutBrokersIsNop(t *testing.T) {
	if _, ok := New(nil, "bingo.games").(NopPublisher); !ok {
		t.Fatalf("expected NopPublisher without brokers")
	}
	if _, ok := New([]string{"localhost:9092"}, "").(NopPublisher); !ok {
		t.Fatalf("expected NopPublisher without topic")
	}
	if _, ok := New([]string{"localhost:9092"}, "bingo.games").(*KafkaPublisher); !ok {
		t.Fatalf("expected KafkaPublisher with brokers and topic")
	}
}

func TestEncodeKeysByGame(t *testing.T) {
	gameID := uuid.New()
	msg, err := encode(GameEvent{
		Type:   TypeGameCompleted,
		GameID: gameID,
		Prize:  decimal.NewFromInt(16),
		Called: []int{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(msg.Key) != gameID.String() {
		t.Fatalf("expected key %s, got %s", gameID, msg.Key)
	}
	if msg.Time.IsZero() {
		t.Fatalf("expected message time to be set")
	}

	var decoded GameEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Type != TypeGameCompleted || !decoded.Prize.Equal(decimal.NewFromInt(16)) {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}
