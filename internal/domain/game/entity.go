package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusPlaying   Status = "playing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Closed reports whether the game can no longer change.
func (s Status) Closed() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Game is one round from selection to settlement.
type Game struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	Stake         decimal.Decimal `db:"stake" json:"stake"`
	Status        Status          `db:"status" json:"status"`
	CalledNumbers pq.Int64Array   `db:"called_numbers" json:"called_numbers"`
	WinnerUserID  *uuid.UUID      `db:"winner_user_id" json:"winner_user_id,omitempty"`
	WinningCardID *int            `db:"winning_card_id" json:"winning_card_id,omitempty"`
	TotalPot      decimal.Decimal `db:"total_pot" json:"total_pot"`
	Prize         decimal.Decimal `db:"prize" json:"prize"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	StartedAt     *time.Time      `db:"started_at" json:"started_at,omitempty"`
	FinishedAt    *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

// Called returns the called sequence as ints.
func (g *Game) Called() []int {
	out := make([]int, len(g.CalledNumbers))
	for i, n := range g.CalledNumbers {
		out[i] = int(n)
	}
	return out
}

type Participant struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	GameID    uuid.UUID       `db:"game_id" json:"game_id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	CardID    int             `db:"card_id" json:"card_id"`
	Stake     decimal.Decimal `db:"stake" json:"stake"`
	IsWinner  bool            `db:"is_winner" json:"is_winner"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Result settles a game. A nil winner means no contest.
type Result struct {
	WinnerUserID  *uuid.UUID
	WinningCardID *int
	Prize         decimal.Decimal
	Called        []int
}

// HistoryEntry is one game as seen by a participant.
type HistoryEntry struct {
	GameID     uuid.UUID       `db:"game_id" json:"game_id"`
	CardID     int             `db:"card_id" json:"card_id"`
	Stake      decimal.Decimal `db:"stake" json:"stake"`
	IsWinner   bool            `db:"is_winner" json:"is_winner"`
	Status     Status          `db:"status" json:"status"`
	TotalPot   decimal.Decimal `db:"total_pot" json:"total_pot"`
	Prize      decimal.Decimal `db:"prize" json:"prize"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	FinishedAt *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

type Stats struct {
	TotalGames     int             `db:"total_games" json:"total_games"`
	CompletedGames int             `db:"completed_games" json:"completed_games"`
	CancelledGames int             `db:"cancelled_games" json:"cancelled_games"`
	NoContestGames int             `db:"no_contest_games" json:"no_contest_games"`
	TotalPot       decimal.Decimal `db:"total_pot" json:"total_pot"`
	TotalPrizes    decimal.Decimal `db:"total_prizes" json:"total_prizes"`
	HouseFee       decimal.Decimal `db:"-" json:"house_fee"`
	Players        int             `db:"players" json:"players"`
}

type Pagination struct {
	Limit  int
	Offset int
}

// LiveGame is the public view of the round in progress.
type LiveGame struct {
	GameID      uuid.UUID       `json:"game_id"`
	Phase       string          `json:"phase"`
	Stake       decimal.Decimal `json:"stake"`
	SecondsLeft int             `json:"seconds_left"`
	Called      []int           `json:"called_numbers"`
	TakenCards  []int           `json:"taken_cards"`
	Players     int             `json:"players"`
	Pot         decimal.Decimal `json:"pot"`
}
