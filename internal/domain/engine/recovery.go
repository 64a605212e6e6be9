package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/royalbingo/bingo-api/internal/domain/game"
	"github.com/royalbingo/bingo-api/internal/domain/wallet"
	"github.com/royalbingo/bingo-api/internal/pkg/retry"
)

type seatKey struct {
	userID uuid.UUID
	cardID int
}

// recoverSeats reconciles a snapshot with the durable records of its game.
// A confirm writes the stake, then the participant row, then the checkpoint;
// a crash between those steps leaves a seat the snapshot does not know about
// or a stake with no seat at all. Missing seats are taken back from the
// registry and seatless stakes are refunded.
func (e *Engine) recoverSeats(snap Snapshot) []Seat {
	seats := append([]Seat(nil), snap.Participants...)
	seen := make(map[uuid.UUID]bool, len(seats))
	for _, s := range seats {
		seen[s.UserID] = true
	}

	rows, err := retry.Do(e.ctx, e.walletPolicy, "list participants", func(ctx context.Context) ([]game.Participant, error) {
		return e.registry.ListParticipants(ctx, snap.GameID)
	})
	if err != nil {
		log.Error().Err(err).Str("game_id", snap.GameID.String()).Msg("could not read participants, resuming from checkpoint only")
		return seats
	}
	for _, p := range rows {
		if seen[p.UserID] {
			continue
		}
		seen[p.UserID] = true
		seats = append(seats, Seat{UserID: p.UserID, CardID: p.CardID})
		log.Warn().
			Str("game_id", snap.GameID.String()).
			Str("user_id", p.UserID.String()).
			Int("card_id", p.CardID).
			Msg("seat missing from checkpoint restored from registry")
	}

	txs, err := retry.Do(e.ctx, e.walletPolicy, "game ledger", func(ctx context.Context) ([]wallet.Transaction, error) {
		return e.wallet.GameTransactions(ctx, snap.GameID)
	})
	if err != nil {
		log.Error().Err(err).Str("game_id", snap.GameID.String()).Msg("could not read game ledger, seatless stakes not checked")
		return seats
	}

	refunded := make(map[string]bool)
	for _, t := range txs {
		if t.Type == wallet.TransactionTypeRefund && t.ReferenceID != nil {
			refunded[*t.ReferenceID] = true
		}
	}
	unclaimed := make(map[seatKey]int, len(seats))
	for _, s := range seats {
		unclaimed[seatKey{userID: s.UserID, cardID: s.CardID}]++
	}

	for _, t := range txs {
		if t.Type != wallet.TransactionTypeStake || t.ReferenceID == nil {
			continue
		}
		ref := *t.ReferenceID
		if refunded["refund:"+ref] {
			continue
		}
		if card, ok := stakeCard(ref); ok {
			k := seatKey{userID: t.UserID, cardID: card}
			if unclaimed[k] > 0 {
				unclaimed[k]--
				continue
			}
		}
		log.Warn().
			Str("game_id", snap.GameID.String()).
			Str("user_id", t.UserID.String()).
			Str("reference_id", ref).
			Msg("refunding stake that never became a seat")
		e.refundStake(e.ctx, t.UserID, snap.GameID, t.Amount, ref)
	}
	return seats
}

// stakeCard reads the card id out of a stake reference
// (stake:<game>:<card>:<nonce>).
func stakeCard(ref string) (int, bool) {
	parts := strings.Split(ref, ":")
	if len(parts) != 4 || parts[0] != "stake" {
		return 0, false
	}
	card, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, false
	}
	return card, true
}
