package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/domain/bingo"
	"github.com/royalbingo/bingo-api/internal/domain/game"
	"github.com/royalbingo/bingo-api/internal/domain/wallet"
	"github.com/royalbingo/bingo-api/internal/pkg/events"
	"github.com/royalbingo/bingo-api/internal/pkg/metrics"
	"github.com/royalbingo/bingo-api/internal/pkg/retry"
)

// newRound opens a game row and enters selection. When the registry is
// unavailable the engine idles and tries again after RetryDelay.
func (e *Engine) newRound(reason string) {
	g, err := retry.Do(e.ctx, e.walletPolicy, "create game", func(ctx context.Context) (*game.Game, error) {
		return e.registry.CreateGame(ctx, e.cfg.Stake)
	})

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("could not open a new game")
		e.resetRoundLocked(uuid.Nil, e.cfg.Stake)
		e.phase = PhaseIdle
		e.reason = reason
		e.secondsLeft = 0
		e.scheduleLocked(e.cfg.RetryDelay)
		e.mu.Unlock()
		return
	}

	e.resetRoundLocked(g.ID, g.Stake)
	e.phase = PhaseSelection
	e.reason = reason
	e.secondsLeft = e.cfg.ticks(e.cfg.SelectionDuration)
	e.scheduleLocked(e.cfg.Tick)
	e.broadcastStateLocked()
	metrics.ConfirmedPlayers.Set(0)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.persist(snap)
}

func (e *Engine) selectionTickLocked() func() {
	e.secondsLeft--
	e.out.Broadcast(Event{Type: EventTimerUpdate, Data: TimerData{Phase: string(PhaseSelection), SecondsLeft: e.secondsLeft}})
	if e.secondsLeft > 0 {
		e.scheduleLocked(e.cfg.Tick)
		return nil
	}

	e.phase = PhaseStarting
	e.stopTimerLocked()
	gameID, confirms := e.gameID, e.confirms
	return func() {
		// Stakes already in flight settle into this round before it is judged.
		confirms.Wait()
		e.closeSelection(gameID)
	}
}

// SelectCard is a non-binding choice gated on the player's total balance.
func (e *Engine) SelectCard(ctx context.Context, connID uuid.UUID, cardID int) (*wallet.Balance, error) {
	if _, ok := e.deck.Card(cardID); !ok {
		return nil, ErrInvalidCard
	}

	e.mu.Lock()
	p, ok := e.players[connID]
	if !ok {
		e.mu.Unlock()
		return nil, ErrUnknownConnection
	}
	if e.phase != PhaseSelection {
		e.mu.Unlock()
		return nil, ErrGameNotInExpectedPhase
	}
	if seat, ok := e.participants[p.UserID]; ok && seat.CardID != cardID {
		e.mu.Unlock()
		return nil, ErrAlreadyConfirmed
	}
	if holder, ok := e.taken[cardID]; ok && holder != p.UserID {
		e.mu.Unlock()
		return nil, ErrCardAlreadyTaken
	}
	if holder, ok := e.reserved[cardID]; ok && holder != p.UserID {
		e.mu.Unlock()
		return nil, ErrCardAlreadyTaken
	}
	userID, stake := p.UserID, e.stake
	e.mu.Unlock()

	b, err := e.wallet.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b.Total.LessThan(stake) {
		return b, wallet.ErrInsufficientFunds
	}

	e.mu.Lock()
	if p, ok := e.players[connID]; ok {
		p.SelectedCardID = cardID
		p.CachedBalance = b.Total
	}
	e.mu.Unlock()
	return b, nil
}

// ConfirmCard binds a card to the player by staking. The card is reserved
// under the lock, the stake runs outside it, and the card is only marked
// taken after the stake and participant row are durable.
func (e *Engine) ConfirmCard(ctx context.Context, connID uuid.UUID, cardID int) error {
	if _, ok := e.deck.Card(cardID); !ok {
		return ErrInvalidCard
	}

	e.mu.Lock()
	p, ok := e.players[connID]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownConnection
	}
	if e.phase != PhaseSelection {
		e.mu.Unlock()
		return ErrGameNotInExpectedPhase
	}
	if seat, ok := e.participants[p.UserID]; ok {
		e.mu.Unlock()
		if seat.CardID == cardID {
			return nil
		}
		return ErrAlreadyConfirmed
	}
	if _, ok := e.taken[cardID]; ok {
		e.mu.Unlock()
		return ErrCardAlreadyTaken
	}
	if _, ok := e.reserved[cardID]; ok {
		e.mu.Unlock()
		return ErrCardAlreadyTaken
	}
	for _, holder := range e.reserved {
		if holder == p.UserID {
			e.mu.Unlock()
			return ErrConfirmInProgress
		}
	}

	e.reserved[cardID] = p.UserID
	confirms := e.confirms
	confirms.Add(1)
	defer confirms.Done()
	userID, name, gameID, stake := p.UserID, p.Name, e.gameID, e.stake
	e.mu.Unlock()

	// The money call must finish even if the client goes away.
	callCtx := context.WithoutCancel(ctx)
	stakeRef := fmt.Sprintf("stake:%s:%d:%s", gameID, cardID, uuid.NewString())

	balance, err := retry.Do(callCtx, e.walletPolicy, "stake", func(ctx context.Context) (*wallet.Balance, error) {
		return e.wallet.Stake(ctx, userID, stake, gameID, stakeRef)
	})
	if err != nil {
		e.release(gameID, cardID)
		if isTransient(err) {
			e.alert("stake", userID, gameID, stake, err)
		}
		return err
	}

	_, err = retry.Do(callCtx, e.walletPolicy, "add participant", func(ctx context.Context) (*game.Participant, error) {
		return e.registry.AddParticipant(ctx, gameID, userID, cardID, stake)
	})
	if err != nil {
		e.release(gameID, cardID)
		e.refundStake(callCtx, userID, gameID, stake, stakeRef)
		switch {
		case errors.Is(err, game.ErrCardTaken):
			return ErrCardAlreadyTaken
		case errors.Is(err, game.ErrAlreadyParticipant):
			return ErrAlreadyConfirmed
		case errors.Is(err, game.ErrInvalidTransition), errors.Is(err, game.ErrGameClosed):
			return ErrGameNotInExpectedPhase
		}
		return err
	}

	e.mu.Lock()
	if e.gameID != gameID || (e.phase != PhaseSelection && e.phase != PhaseStarting) {
		e.mu.Unlock()
		e.refundStake(callCtx, userID, gameID, stake, stakeRef)
		return ErrGameNotInExpectedPhase
	}

	delete(e.reserved, cardID)
	e.taken[cardID] = userID
	e.participants[userID] = &Seat{UserID: userID, Name: name, CardID: cardID}
	for _, pl := range e.players {
		if pl.UserID == userID {
			pl.SelectedCardID = cardID
			pl.IsCardConfirmed = true
			pl.CachedBalance = balance.Total
		}
	}
	e.out.Broadcast(Event{Type: EventCardTaken, Data: CardTakenData{
		CardID:  cardID,
		Players: len(e.participants),
		Pot:     e.potLocked(),
	}})
	e.sendToUserLocked(userID, Event{Type: EventBalanceUpdate, Data: balance})
	metrics.ConfirmedPlayers.Set(float64(len(e.participants)))
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.persist(snap)

	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Int("card_id", cardID).
		Msg("card confirmed")
	return nil
}

func (e *Engine) release(gameID uuid.UUID, cardID int) {
	e.mu.Lock()
	if e.gameID == gameID {
		delete(e.reserved, cardID)
	}
	e.mu.Unlock()
}

// refundStake returns a stake that could not be turned into a seat.
func (e *Engine) refundStake(ctx context.Context, userID, gameID uuid.UUID, amount decimal.Decimal, stakeRef string) {
	b, err := retry.Do(ctx, e.walletPolicy, "refund", func(ctx context.Context) (*wallet.Balance, error) {
		return e.wallet.Refund(ctx, userID, amount, gameID, "Card confirmation failed", "refund:"+stakeRef)
	})
	if err != nil {
		e.alert("refund", userID, gameID, amount, err)
		return
	}
	e.notifyBalance(userID, b)
}

// closeSelection decides between playing and cancellation once no stake is
// in flight.
func (e *Engine) closeSelection(gameID uuid.UUID) {
	e.mu.Lock()
	if e.gameID != gameID || e.phase != PhaseStarting {
		e.mu.Unlock()
		return
	}
	seats := e.seatsLocked()
	stake := e.stake

	if len(seats) < e.cfg.MinPlayers {
		e.phase = PhaseCancelling
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.persist(snap)

		log.Info().
			Err(ErrNotEnoughPlayers).
			Str("game_id", gameID.String()).
			Int("confirmed", len(seats)).
			Int("required", e.cfg.MinPlayers).
			Msg("cancelling game")
		e.cancelRound(gameID, stake, seats, "not_enough_players")
		return
	}
	pot := stake.Mul(decimal.NewFromInt(int64(len(seats))))
	e.mu.Unlock()

	err := retry.Exec(e.ctx, e.walletPolicy, "start game", func(ctx context.Context) error {
		return e.registry.StartGame(ctx, gameID, pot)
	})
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("could not start game, refunding stakes")
		e.mu.Lock()
		e.phase = PhaseCancelling
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.persist(snap)
		e.cancelRound(gameID, stake, seats, "start_failed")
		return
	}

	seed, err := bingo.NewSeed()
	if err != nil {
		log.Error().Err(err).Msg("crypto seed unavailable, using game id")
		seed = uint64(gameID.ID())
	}

	e.mu.Lock()
	if e.gameID != gameID || e.stopped {
		e.mu.Unlock()
		return
	}
	e.phase = PhasePlaying
	e.reason = ""
	e.pot = pot
	e.drawSeed = seed
	e.drawer = bingo.NewDrawer(seed)
	e.secondsLeft = 0
	e.scheduleLocked(e.cfg.DrawInterval)
	e.broadcastStateLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.persist(snap)

	log.Info().
		Str("game_id", gameID.String()).
		Int("players", len(seats)).
		Str("pot", pot.String()).
		Msg("game playing")
}

// cancelRound refunds every seat, closes the game row and opens the next round.
func (e *Engine) cancelRound(gameID uuid.UUID, stake decimal.Decimal, seats []Seat, reason string) {
	refunded := 0
	for _, s := range seats {
		ref := fmt.Sprintf("refund:%s:%s", gameID, s.UserID)
		b, err := retry.Do(e.ctx, e.walletPolicy, "refund", func(ctx context.Context) (*wallet.Balance, error) {
			return e.wallet.Refund(ctx, s.UserID, stake, gameID, "Game cancelled: "+reason, ref)
		})
		if err != nil {
			e.alert("refund", s.UserID, gameID, stake, err)
			continue
		}
		refunded++
		e.notifyBalance(s.UserID, b)
	}

	err := retry.Exec(e.ctx, e.walletPolicy, "cancel game", func(ctx context.Context) error {
		return e.registry.CancelGame(ctx, gameID)
	})
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to mark game cancelled")
	}
	metrics.Games.WithLabelValues("cancelled").Inc()

	e.mu.Lock()
	if e.gameID == gameID {
		e.out.Broadcast(Event{Type: EventGameCancelled, Data: GameCancelledData{
			GameID:   gameID,
			Reason:   reason,
			Refunded: refunded,
		}})
	}
	e.mu.Unlock()

	e.finalize(events.GameEvent{
		Type:     events.TypeGameCancelled,
		GameID:   gameID,
		Stake:    stake,
		TotalPot: stake.Mul(decimal.NewFromInt(int64(len(seats)))),
		Players:  len(seats),
		Called:   []int{},
		Reason:   reason,
	}, seats, nil)

	e.newRound(reason)
}
