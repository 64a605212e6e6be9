package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/domain/bingo"
	"github.com/royalbingo/bingo-api/internal/domain/game"
	"github.com/royalbingo/bingo-api/internal/domain/wallet"
	"github.com/royalbingo/bingo-api/internal/pkg/archive"
	"github.com/royalbingo/bingo-api/internal/pkg/events"
	"github.com/royalbingo/bingo-api/internal/pkg/metrics"
	"github.com/royalbingo/bingo-api/internal/pkg/retry"
)

// Phase is the engine state. Starting, cancelling and settling are short
// internal states between the three phases players see.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseSelection     Phase = "selection"
	PhaseStarting      Phase = "starting"
	PhaseCancelling    Phase = "cancelling"
	PhasePlaying       Phase = "playing"
	PhaseSettling      Phase = "settling"
	PhaseWinnerDisplay Phase = "winner_display"
)

// Public maps the engine state to the phase shown to players.
func (p Phase) Public() string {
	switch p {
	case PhaseStarting, PhaseCancelling, PhaseIdle:
		return string(PhaseSelection)
	case PhaseSettling:
		return string(PhasePlaying)
	default:
		return string(p)
	}
}

// Player is a live session as the engine sees it.
type Player struct {
	ConnID          uuid.UUID
	UserID          uuid.UUID
	Name            string
	SelectedCardID  int
	IsCardConfirmed bool
	CachedBalance   decimal.Decimal
}

type Deps struct {
	Wallet       Wallet
	Registry     Registry
	Broadcaster  Broadcaster
	Checkpointer Checkpointer
	Publisher    events.Publisher
	Archive      archive.Archive
}

// Engine owns the single authoritative round. All state below mu is only
// touched with mu held; wallet, registry and checkpoint calls never are.
type Engine struct {
	cfg         Config
	deck        *bingo.Deck
	wallet      Wallet
	registry    Registry
	out         Broadcaster
	checkpoints Checkpointer
	publisher   events.Publisher
	archive     archive.Archive

	walletPolicy retry.Policy
	payoutPolicy retry.Policy
	afterFunc    func(time.Duration, func()) *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu           sync.Mutex
	stopped      bool
	gen          uint64
	timer        *time.Timer
	seq          uint64
	phase        Phase
	reason       string
	gameID       uuid.UUID
	stake        decimal.Decimal
	pot          decimal.Decimal
	secondsLeft  int
	drawSeed     uint64
	drawer       *bingo.Drawer
	players      map[uuid.UUID]*Player
	participants map[uuid.UUID]*Seat
	taken        map[int]uuid.UUID
	reserved     map[int]uuid.UUID
	confirms     *sync.WaitGroup
	winner       *Winner

	persistMu     sync.Mutex
	persistedSeq  uint64
	persistedGame uuid.UUID
	persistedDraw int
}

func New(cfg Config, deps Deps) *Engine {
	if deps.Checkpointer == nil {
		deps.Checkpointer = NopCheckpointer{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Archive == nil {
		deps.Archive = archive.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:          cfg,
		deck:         bingo.NewDeck(cfg.CardCount, cfg.DeckSeed),
		wallet:       deps.Wallet,
		registry:     deps.Registry,
		out:          deps.Broadcaster,
		checkpoints:  deps.Checkpointer,
		publisher:    deps.Publisher,
		archive:      deps.Archive,
		walletPolicy: retry.Default(cfg.WalletTimeout, isTransient),
		afterFunc:    time.AfterFunc,
		ctx:          ctx,
		cancel:       cancel,
		phase:        PhaseIdle,
		players:      make(map[uuid.UUID]*Player),
		confirms:     &sync.WaitGroup{},
	}
	e.payoutPolicy = e.walletPolicy
	e.payoutPolicy.MaxTries = 8
	e.payoutPolicy.MaxElapsed = 2 * time.Minute
	e.resetRoundLocked(uuid.Nil, cfg.Stake)
	return e
}

func isTransient(err error) bool {
	return errors.Is(err, wallet.ErrStorage) ||
		errors.Is(err, game.ErrStorage) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Deck returns the fixed card set.
func (e *Engine) Deck() *bingo.Deck {
	return e.deck
}

// Start resumes from the last checkpoint or opens a fresh round.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.deck.Verify(); err != nil {
		return err
	}

	snap, err := e.checkpoints.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not load engine checkpoint, starting fresh")
		snap = nil
	}
	if snap != nil && snap.GameID != uuid.Nil {
		e.restore(*snap)
		return nil
	}

	e.newRound("")
	return nil
}

// Stop halts timers and waits for background publishing.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.stopTimerLocked()
	e.mu.Unlock()

	e.cancel()
	e.bg.Wait()
}

// Join registers a connection and sends it the current state.
func (e *Engine) Join(connID, userID uuid.UUID, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := &Player{ConnID: connID, UserID: userID, Name: name}
	if seat, ok := e.participants[userID]; ok {
		p.SelectedCardID = seat.CardID
		p.IsCardConfirmed = true
	}
	e.players[connID] = p
	e.out.Send(connID, Event{Type: EventPhaseChange, Data: e.stateLocked()})
}

// Leave forgets a connection. A confirmed seat stays in the round.
func (e *Engine) Leave(connID uuid.UUID) {
	e.mu.Lock()
	delete(e.players, connID)
	e.mu.Unlock()
}

// Player returns a copy of the session state for connID.
func (e *Engine) Player(connID uuid.UUID) (Player, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[connID]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Balance reads the wallet for the player behind connID.
func (e *Engine) Balance(ctx context.Context, connID uuid.UUID) (*wallet.Balance, error) {
	e.mu.Lock()
	p, ok := e.players[connID]
	var userID uuid.UUID
	if ok {
		userID = p.UserID
	}
	e.mu.Unlock()
	if !ok {
		return nil, ErrUnknownConnection
	}

	b, err := e.wallet.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if p, ok := e.players[connID]; ok {
		p.CachedBalance = b.Total
	}
	e.mu.Unlock()
	return b, nil
}

// Live reports the current round for the HTTP API.
func (e *Engine) Live() game.LiveGame {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.stateLocked()
	return game.LiveGame{
		GameID:      s.GameID,
		Phase:       s.Phase,
		Stake:       s.Stake,
		SecondsLeft: s.SecondsLeft,
		Called:      s.Called,
		TakenCards:  s.TakenCards,
		Players:     s.Players,
		Pot:         s.Pot,
	}
}

func (e *Engine) resetRoundLocked(gameID uuid.UUID, stake decimal.Decimal) {
	e.gameID = gameID
	e.stake = stake
	e.pot = decimal.Zero
	e.drawSeed = 0
	e.drawer = nil
	e.winner = nil
	e.participants = make(map[uuid.UUID]*Seat)
	e.taken = make(map[int]uuid.UUID)
	e.reserved = make(map[int]uuid.UUID)
	e.confirms = &sync.WaitGroup{}
	for _, p := range e.players {
		p.SelectedCardID = 0
		p.IsCardConfirmed = false
	}
}

func (e *Engine) potLocked() decimal.Decimal {
	if e.phase == PhaseSelection || e.phase == PhaseStarting || e.phase == PhaseCancelling {
		return e.stake.Mul(decimal.NewFromInt(int64(len(e.participants))))
	}
	return e.pot
}

func (e *Engine) calledLocked() []int {
	if e.drawer == nil {
		return []int{}
	}
	return e.drawer.Called()
}

func (e *Engine) takenLocked() []int {
	cards := make([]int, 0, len(e.taken))
	for id := range e.taken {
		cards = append(cards, id)
	}
	sort.Ints(cards)
	return cards
}

func (e *Engine) stateLocked() PhaseChangeData {
	d := PhaseChangeData{
		Phase:       e.phase.Public(),
		GameID:      e.gameID,
		Stake:       e.stake,
		SecondsLeft: e.secondsLeft,
		Pot:         e.potLocked(),
		Players:     len(e.participants),
		TakenCards:  e.takenLocked(),
		Called:      e.calledLocked(),
		Reason:      e.reason,
	}
	if e.winner != nil && e.phase == PhaseWinnerDisplay {
		d.Winner = &WinnerData{
			UserID:  e.winner.UserID,
			Name:    e.winner.Name,
			CardID:  e.winner.CardID,
			Prize:   e.winner.Prize,
			Pattern: e.winner.Pattern,
		}
	}
	return d
}

func (e *Engine) broadcastStateLocked() {
	e.out.Broadcast(Event{Type: EventPhaseChange, Data: e.stateLocked()})
}

func (e *Engine) sendToUserLocked(userID uuid.UUID, ev Event) {
	for connID, p := range e.players {
		if p.UserID == userID {
			e.out.Send(connID, ev)
		}
	}
}

func (e *Engine) notifyBalance(userID uuid.UUID, b *wallet.Balance) {
	if b == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.players {
		if p.UserID == userID {
			p.CachedBalance = b.Total
		}
	}
	e.sendToUserLocked(userID, Event{Type: EventBalanceUpdate, Data: b})
}

func (e *Engine) seatsLocked() []Seat {
	seats := make([]Seat, 0, len(e.participants))
	for _, s := range e.participants {
		seats = append(seats, *s)
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].CardID < seats[j].CardID })
	return seats
}

// scheduleLocked replaces the phase timer. Every timer carries its own generation
// so a tick that lost the race with Stop is ignored.
func (e *Engine) scheduleLocked(d time.Duration) {
	e.stopTimerLocked()
	gen := e.gen
	e.timer = e.afterFunc(d, func() { e.onTimer(gen) })
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

func (e *Engine) onTimer(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.stopped {
		e.mu.Unlock()
		return
	}

	var next func()
	switch e.phase {
	case PhaseSelection:
		next = e.selectionTickLocked()
	case PhasePlaying:
		next = e.drawLocked()
	case PhaseWinnerDisplay:
		next = e.displayTickLocked()
	case PhaseIdle:
		reason := e.reason
		e.stopTimerLocked()
		next = func() { e.newRound(reason) }
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.persist(snap)
	if next != nil {
		next()
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	e.seq++
	snap := Snapshot{
		Seq:          e.seq,
		Phase:        e.phase,
		GameID:       e.gameID,
		Stake:        e.stake,
		Pot:          e.pot,
		SecondsLeft:  e.secondsLeft,
		DrawSeed:     e.drawSeed,
		Called:       e.calledLocked(),
		Participants: e.seatsLocked(),
		SavedAt:      time.Now().UTC(),
	}
	if e.winner != nil {
		w := *e.winner
		snap.PendingWinner = &w
	}
	return snap
}

// persist writes a snapshot and the called numbers. Snapshots older than the
// last written one are skipped.
func (e *Engine) persist(snap Snapshot) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	if snap.Seq <= e.persistedSeq {
		return
	}
	e.persistedSeq = snap.Seq

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.WalletTimeout)
	defer cancel()

	if err := e.checkpoints.Save(ctx, snap); err != nil {
		metrics.CheckpointFailures.Inc()
		log.Error().Err(err).Str("game_id", snap.GameID.String()).Msg("failed to save engine checkpoint")
	}

	if snap.Phase != PhasePlaying {
		return
	}
	if snap.GameID != e.persistedGame {
		e.persistedGame = snap.GameID
		e.persistedDraw = 0
	}
	if len(snap.Called) <= e.persistedDraw {
		return
	}
	if err := e.registry.SaveCalledNumbers(ctx, snap.GameID, snap.Called); err != nil {
		log.Error().Err(err).Str("game_id", snap.GameID.String()).Msg("failed to save called numbers")
		return
	}
	e.persistedDraw = len(snap.Called)
}

// alert marks a money movement that failed after all retries.
func (e *Engine) alert(op string, userID, gameID uuid.UUID, amount decimal.Decimal, err error) {
	metrics.WalletFailures.WithLabelValues(op).Inc()
	log.Error().
		Err(err).
		Str("operation", op).
		Str("user_id", userID.String()).
		Str("game_id", gameID.String()).
		Str("amount", amount.String()).
		Bool("operator_alert", true).
		Msg("wallet call failed after retries, manual settlement required")
}

type archiveDocument struct {
	Event        events.GameEvent `json:"event"`
	Participants []Seat           `json:"participants"`
	Winner       *Winner          `json:"winner,omitempty"`
}

// finalize publishes and archives a settled round in the background.
func (e *Engine) finalize(ev events.GameEvent, seats []Seat, winner *Winner) {
	ev.OccurredAt = time.Now().UTC()
	doc := archiveDocument{Event: ev, Participants: seats, Winner: winner}

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := e.publisher.PublishGameEvent(ctx, ev); err != nil {
			log.Warn().Err(err).Str("game_id", ev.GameID.String()).Msg("failed to publish game event")
		}
		if err := e.archive.StoreGame(ctx, ev.GameID, ev.OccurredAt, doc); err != nil {
			log.Warn().Err(err).Str("game_id", ev.GameID.String()).Msg("failed to archive game")
		}
	}()
}
