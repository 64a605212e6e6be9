package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/domain/bingo"
)

type EventType string

const (
	EventPhaseChange   EventType = "phaseChange"
	EventTimerUpdate   EventType = "timerUpdate"
	EventNumberCalled  EventType = "numberCalled"
	EventCardTaken     EventType = "cardTaken"
	EventGameCancelled EventType = "gameCancelled"
	EventBalanceUpdate EventType = "balanceUpdate"
	EventBingoRejected EventType = "bingoRejected"
	EventError         EventType = "error"
)

// Event is one outbound message for player sessions.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type PhaseChangeData struct {
	Phase       string          `json:"phase"`
	GameID      uuid.UUID       `json:"game_id"`
	Stake       decimal.Decimal `json:"stake"`
	SecondsLeft int             `json:"seconds_left"`
	Pot         decimal.Decimal `json:"pot"`
	Players     int             `json:"players"`
	TakenCards  []int           `json:"taken_cards"`
	Called      []int           `json:"called_numbers"`
	Winner      *WinnerData     `json:"winner,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

type WinnerData struct {
	UserID  uuid.UUID       `json:"user_id"`
	Name    string          `json:"name"`
	CardID  int             `json:"card_id"`
	Prize   decimal.Decimal `json:"prize"`
	Pattern bingo.Win       `json:"pattern"`
}

type TimerData struct {
	Phase       string `json:"phase"`
	SecondsLeft int    `json:"seconds_left"`
}

type NumberCalledData struct {
	Number    int    `json:"number"`
	Letter    string `json:"letter"`
	Called    []int  `json:"called_numbers"`
	Remaining int    `json:"remaining"`
}

type CardTakenData struct {
	CardID  int             `json:"card_id"`
	Players int             `json:"players"`
	Pot     decimal.Decimal `json:"pot"`
}

type GameCancelledData struct {
	GameID   uuid.UUID `json:"game_id"`
	Reason   string    `json:"reason"`
	Refunded int       `json:"refunded"`
}

type BingoRejectedData struct {
	CardID int    `json:"card_id"`
	Reason string `json:"reason"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
