package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/domain/game"
	"github.com/royalbingo/bingo-api/internal/domain/wallet"
)

// Wallet is the subset of wallet.Service the engine moves money through.
type Wallet interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*wallet.Balance, error)
	Stake(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, gameID uuid.UUID, referenceID string) (*wallet.Balance, error)
	Win(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, gameID uuid.UUID) (*wallet.Balance, error)
	Refund(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, gameID uuid.UUID, reason, referenceID string) (*wallet.Balance, error)
	// GameTransactions lists every ledger row tagged with the game.
	GameTransactions(ctx context.Context, gameID uuid.UUID) ([]wallet.Transaction, error)
}

// Registry records games and participants durably.
type Registry interface {
	CreateGame(ctx context.Context, stake decimal.Decimal) (*game.Game, error)
	StartGame(ctx context.Context, gameID uuid.UUID, totalPot decimal.Decimal) error
	SaveCalledNumbers(ctx context.Context, gameID uuid.UUID, called []int) error
	AddParticipant(ctx context.Context, gameID, userID uuid.UUID, cardID int, stake decimal.Decimal) (*game.Participant, error)
	ListParticipants(ctx context.Context, gameID uuid.UUID) ([]game.Participant, error)
	CompleteGame(ctx context.Context, gameID uuid.UUID, result game.Result) error
	CancelGame(ctx context.Context, gameID uuid.UUID) error
}

// Broadcaster delivers events to connected sessions. Implementations must not
// block: the engine calls them while holding its lock so that events keep
// their order.
type Broadcaster interface {
	Broadcast(ev Event)
	Send(connID uuid.UUID, ev Event)
}
