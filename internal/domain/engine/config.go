package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/domain/bingo"
)

type Config struct {
	SelectionDuration     time.Duration
	DrawInterval          time.Duration
	WinnerDisplayDuration time.Duration

	// Tick is the countdown resolution for selection and winner display.
	Tick time.Duration

	Stake          decimal.Decimal
	MinPlayers     int
	PayoutFraction decimal.Decimal
	CardCount      int
	DeckSeed       uint64

	// WalletTimeout bounds a single wallet or registry attempt.
	WalletTimeout time.Duration

	// RetryDelay is how long the engine idles when a new game cannot be opened.
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		SelectionDuration:     60 * time.Second,
		DrawInterval:          3 * time.Second,
		WinnerDisplayDuration: 10 * time.Second,
		Tick:                  time.Second,
		Stake:                 decimal.NewFromInt(10),
		MinPlayers:            2,
		PayoutFraction:        decimal.RequireFromString("0.8"),
		CardCount:             100,
		DeckSeed:              bingo.DefaultDeckSeed,
		WalletTimeout:         5 * time.Second,
		RetryDelay:            5 * time.Second,
	}
}

func (c Config) ticks(d time.Duration) int {
	if c.Tick <= 0 {
		return 1
	}
	n := int(d / c.Tick)
	if n < 1 {
		n = 1
	}
	return n
}
