package engine

import (
	"context"
	"sync"

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

func (e *Engine) drawLocked() func() {
	n, ok := e.drawer.Next()
	if !ok {
		e.phase = PhaseSettling
		e.stopTimerLocked()
		gameID := e.gameID
		return func() { e.finishNoContest(gameID) }
	}

	metrics.NumbersDrawn.Inc()
	e.out.Broadcast(Event{Type: EventNumberCalled, Data: NumberCalledData{
		Number:    n,
		Letter:    bingo.Letter(n),
		Called:    e.drawer.Called(),
		Remaining: e.drawer.Remaining(),
	}})
	e.scheduleLocked(e.cfg.DrawInterval)
	return nil
}

// ClaimBingo validates a claim against the called sequence. The first
// accepted claim stops the draw and pays out; later claims see a phase
// mismatch.
func (e *Engine) ClaimBingo(ctx context.Context, connID uuid.UUID, cardID int) error {
	e.mu.Lock()
	p, ok := e.players[connID]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownConnection
	}
	if e.phase != PhasePlaying {
		e.mu.Unlock()
		metrics.Claims.WithLabelValues("stale").Inc()
		return ErrGameNotInExpectedPhase
	}
	seat, ok := e.participants[p.UserID]
	if !ok || seat.CardID != cardID {
		e.mu.Unlock()
		metrics.Claims.WithLabelValues("rejected").Inc()
		return ErrNotConfirmedParticipant
	}

	card, _ := e.deck.Card(cardID)
	win, ok := bingo.CheckWin(card, e.drawer.Called())
	if !ok {
		e.mu.Unlock()
		metrics.Claims.WithLabelValues("rejected").Inc()
		return ErrInvalidClaim
	}

	e.phase = PhaseSettling
	e.stopTimerLocked()
	e.winner = &Winner{
		UserID:  seat.UserID,
		Name:    seat.Name,
		CardID:  cardID,
		Prize:   e.pot.Mul(e.cfg.PayoutFraction).Round(2),
		Pattern: win,
	}
	gameID := e.gameID
	snap := e.snapshotLocked()
	e.mu.Unlock()

	metrics.Claims.WithLabelValues("accepted").Inc()
	e.persist(snap)

	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", seat.UserID.String()).
		Int("card_id", cardID).
		Str("pattern", string(win.Pattern)).
		Msg("bingo accepted")

	e.settle(gameID)
	return nil
}

// settle pays the pending winner and moves on to winner display. A restart
// during settle pays again under the same reference, which the ledger
// turns into a no-op.
func (e *Engine) settle(gameID uuid.UUID) {
	e.mu.Lock()
	if e.gameID != gameID || e.winner == nil {
		e.mu.Unlock()
		return
	}
	w := *e.winner
	called := e.calledLocked()
	seats := e.seatsLocked()
	pot, stake := e.pot, e.stake
	e.mu.Unlock()

	b, err := retry.Do(e.ctx, e.payoutPolicy, "win", func(ctx context.Context) (*wallet.Balance, error) {
		return e.wallet.Win(ctx, w.UserID, w.Prize, gameID)
	})
	if err != nil {
		e.alert("win", w.UserID, gameID, w.Prize, err)
	} else {
		e.notifyBalance(w.UserID, b)
	}

	cardID, winnerID := w.CardID, w.UserID
	err = retry.Exec(e.ctx, e.walletPolicy, "complete game", func(ctx context.Context) error {
		return e.registry.CompleteGame(ctx, gameID, game.Result{
			WinnerUserID:  &winnerID,
			WinningCardID: &cardID,
			Prize:         w.Prize,
			Called:        called,
		})
	})
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Bool("operator_alert", true).Msg("failed to record game winner")
	}
	metrics.Games.WithLabelValues("won").Inc()

	e.mu.Lock()
	if e.gameID != gameID || e.stopped {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseWinnerDisplay
	e.secondsLeft = e.cfg.ticks(e.cfg.WinnerDisplayDuration)
	e.scheduleLocked(e.cfg.Tick)
	e.broadcastStateLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.persist(snap)

	e.finalize(events.GameEvent{
		Type:          events.TypeGameCompleted,
		GameID:        gameID,
		Stake:         stake,
		TotalPot:      pot,
		Prize:         w.Prize,
		WinnerUserID:  &winnerID,
		WinningCardID: &cardID,
		Players:       len(seats),
		Called:        called,
	}, seats, &w)
}

// finishNoContest closes a game whose draw domain ran out without a winner.
// Stakes are kept and no win is recorded.
func (e *Engine) finishNoContest(gameID uuid.UUID) {
	e.mu.Lock()
	if e.gameID != gameID {
		e.mu.Unlock()
		return
	}
	called := e.calledLocked()
	seats := e.seatsLocked()
	pot, stake := e.pot, e.stake
	e.mu.Unlock()

	err := retry.Exec(e.ctx, e.walletPolicy, "complete game", func(ctx context.Context) error {
		return e.registry.CompleteGame(ctx, gameID, game.Result{Prize: decimal.Zero, Called: called})
	})
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to close exhausted game")
	}
	metrics.Games.WithLabelValues("no_contest").Inc()

	log.Info().Str("game_id", gameID.String()).Int("numbers_called", len(called)).Msg("draw exhausted without a winner")

	e.finalize(events.GameEvent{
		Type:     events.TypeGameCompleted,
		GameID:   gameID,
		Stake:    stake,
		TotalPot: pot,
		Prize:    decimal.Zero,
		Players:  len(seats),
		Called:   called,
		Reason:   "no_contest",
	}, seats, nil)

	e.newRound("no_contest")
}

func (e *Engine) displayTickLocked() func() {
	e.secondsLeft--
	e.out.Broadcast(Event{Type: EventTimerUpdate, Data: TimerData{Phase: string(PhaseWinnerDisplay), SecondsLeft: e.secondsLeft}})
	if e.secondsLeft > 0 {
		e.scheduleLocked(e.cfg.Tick)
		return nil
	}
	e.stopTimerLocked()
	return func() { e.newRound("") }
}

// restore resumes the round described by snap, after reconciling it with
// the registry and the ledger.
func (e *Engine) restore(snap Snapshot) {
	seats := e.recoverSeats(snap)

	e.mu.Lock()
	e.resetRoundLocked(snap.GameID, snap.Stake)
	e.seq = snap.Seq
	e.pot = snap.Pot
	e.drawSeed = snap.DrawSeed
	for _, s := range seats {
		seat := s
		e.participants[s.UserID] = &seat
		e.taken[s.CardID] = s.UserID
	}
	if snap.Phase == PhasePlaying || snap.Phase == PhaseSettling {
		e.drawer = bingo.RestoreDrawer(snap.DrawSeed, snap.Called)
	}
	if snap.PendingWinner != nil {
		w := *snap.PendingWinner
		e.winner = &w
	}
	e.confirms = &sync.WaitGroup{}
	e.phase = snap.Phase
	gameID := snap.GameID
	e.mu.Unlock()

	log.Info().
		Str("game_id", gameID.String()).
		Str("phase", string(snap.Phase)).
		Int("participants", len(seats)).
		Int("called", len(snap.Called)).
		Msg("resuming game from checkpoint")

	switch snap.Phase {
	case PhaseSelection:
		e.mu.Lock()
		e.secondsLeft = snap.SecondsLeft
		if e.secondsLeft < 1 {
			e.secondsLeft = 1
		}
		e.scheduleLocked(e.cfg.Tick)
		e.mu.Unlock()
	case PhaseStarting:
		e.closeSelection(gameID)
	case PhaseCancelling:
		e.cancelRound(gameID, snap.Stake, seats, "not_enough_players")
	case PhasePlaying:
		e.mu.Lock()
		e.scheduleLocked(e.cfg.DrawInterval)
		e.mu.Unlock()
	case PhaseSettling:
		if e.winner != nil {
			e.settle(gameID)
		} else {
			e.finishNoContest(gameID)
		}
	default:
		e.newRound("")
	}
}
