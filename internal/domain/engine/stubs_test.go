package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/domain/game"
	"github.com/royalbingo/bingo-api/internal/domain/wallet"
)

type stubWallet struct {
	mu            sync.Mutex
	totals        map[uuid.UUID]decimal.Decimal
	refs          map[string]bool
	stakes        int
	wins          int
	refunds       int
	stakeFailures int
	gates         map[uuid.UUID]chan struct{}
	ledger        []wallet.Transaction
}

func newStubWallet() *stubWallet {
	return &stubWallet{
		totals: make(map[uuid.UUID]decimal.Decimal),
		refs:   make(map[string]bool),
		gates:  make(map[uuid.UUID]chan struct{}),
	}
}

func (w *stubWallet) balanceLocked(userID uuid.UUID) *wallet.Balance {
	t := w.totals[userID]
	return &wallet.Balance{GameBalance: t, Total: t}
}

func (w *stubWallet) total(userID uuid.UUID) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totals[userID]
}

func (w *stubWallet) counts() (stakes, wins, refunds int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stakes, w.wins, w.refunds
}

func (w *stubWallet) recordLocked(typ wallet.TransactionType, userID uuid.UUID, amount decimal.Decimal, gameID uuid.UUID, ref string) {
	g, r := gameID, ref
	w.ledger = append(w.ledger, wallet.Transaction{
		ID: uuid.New(), UserID: userID, Type: typ, Amount: amount, GameID: &g, ReferenceID: &r, CreatedAt: time.Now(),
	})
}

func (w *stubWallet) GameTransactions(_ context.Context, gameID uuid.UUID) ([]wallet.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []wallet.Transaction
	for _, t := range w.ledger {
		if t.GameID != nil && *t.GameID == gameID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (w *stubWallet) GetBalance(_ context.Context, userID uuid.UUID) (*wallet.Balance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balanceLocked(userID), nil
}

func (w *stubWallet) Stake(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, gameID uuid.UUID, ref string) (*wallet.Balance, error) {
	w.mu.Lock()
	gate := w.gates[userID]
	w.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stakeFailures > 0 {
		w.stakeFailures--
		return nil, fmt.Errorf("%w: connection reset", wallet.ErrStorage)
	}
	if w.refs[ref] {
		return w.balanceLocked(userID), nil
	}
	if w.totals[userID].LessThan(amount) {
		return nil, wallet.ErrInsufficientFunds
	}
	w.totals[userID] = w.totals[userID].Sub(amount)
	w.refs[ref] = true
	w.stakes++
	w.recordLocked(wallet.TransactionTypeStake, userID, amount, gameID, ref)
	return w.balanceLocked(userID), nil
}

func (w *stubWallet) Win(_ context.Context, userID uuid.UUID, amount decimal.Decimal, gameID uuid.UUID) (*wallet.Balance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ref := "win:" + gameID.String()
	if w.refs[ref] {
		return w.balanceLocked(userID), nil
	}
	w.refs[ref] = true
	w.totals[userID] = w.totals[userID].Add(amount)
	w.wins++
	w.recordLocked(wallet.TransactionTypeWin, userID, amount, gameID, ref)
	return w.balanceLocked(userID), nil
}

func (w *stubWallet) Refund(_ context.Context, userID uuid.UUID, amount decimal.Decimal, gameID uuid.UUID, _, ref string) (*wallet.Balance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.refs[ref] {
		return w.balanceLocked(userID), nil
	}
	w.refs[ref] = true
	w.totals[userID] = w.totals[userID].Add(amount)
	w.refunds++
	w.recordLocked(wallet.TransactionTypeRefund, userID, amount, gameID, ref)
	return w.balanceLocked(userID), nil
}

type stubRegistry struct {
	mu        sync.Mutex
	games     map[uuid.UUID]*game.Game
	cards     map[uuid.UUID]map[int]uuid.UUID
	started   []uuid.UUID
	cancelled []uuid.UUID
	completed map[uuid.UUID]game.Result
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		games:     make(map[uuid.UUID]*game.Game),
		cards:     make(map[uuid.UUID]map[int]uuid.UUID),
		completed: make(map[uuid.UUID]game.Result),
	}
}

func (r *stubRegistry) CreateGame(_ context.Context, stake decimal.Decimal) (*game.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := &game.Game{ID: uuid.New(), Stake: stake, Status: game.StatusWaiting, CreatedAt: time.Now()}
	r.games[g.ID] = g
	r.cards[g.ID] = make(map[int]uuid.UUID)
	return g, nil
}

func (r *stubRegistry) StartGame(_ context.Context, gameID uuid.UUID, pot decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[gameID].Status = game.StatusPlaying
	r.games[gameID].TotalPot = pot
	r.started = append(r.started, gameID)
	return nil
}

func (r *stubRegistry) SaveCalledNumbers(context.Context, uuid.UUID, []int) error {
	return nil
}

func (r *stubRegistry) AddParticipant(_ context.Context, gameID, userID uuid.UUID, cardID int, stake decimal.Decimal) (*game.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.games[gameID].Status != game.StatusWaiting {
		return nil, game.ErrInvalidTransition
	}
	if _, ok := r.cards[gameID][cardID]; ok {
		return nil, game.ErrCardTaken
	}
	r.cards[gameID][cardID] = userID
	return &game.Participant{ID: uuid.New(), GameID: gameID, UserID: userID, CardID: cardID, Stake: stake}, nil
}

func (r *stubRegistry) ListParticipants(_ context.Context, gameID uuid.UUID) ([]game.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []game.Participant
	for card, user := range r.cards[gameID] {
		out = append(out, game.Participant{GameID: gameID, UserID: user, CardID: card})
	}
	return out, nil
}

func (r *stubRegistry) CompleteGame(_ context.Context, gameID uuid.UUID, result game.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[gameID].Status = game.StatusCompleted
	r.completed[gameID] = result
	return nil
}

func (r *stubRegistry) CancelGame(_ context.Context, gameID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[gameID].Status = game.StatusCancelled
	r.cancelled = append(r.cancelled, gameID)
	return nil
}

func (r *stubRegistry) result(gameID uuid.UUID) (game.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.completed[gameID]
	return res, ok
}

type recorder struct {
	mu     sync.Mutex
	all    []Event
	direct map[uuid.UUID][]Event
}

func newRecorder() *recorder {
	return &recorder{direct: make(map[uuid.UUID][]Event)}
}

func (r *recorder) Broadcast(ev Event) {
	r.mu.Lock()
	r.all = append(r.all, ev)
	r.mu.Unlock()
}

func (r *recorder) Send(connID uuid.UUID, ev Event) {
	r.mu.Lock()
	r.direct[connID] = append(r.direct[connID], ev)
	r.mu.Unlock()
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.all {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// memCheckpointer keeps the last snapshot. While frozen it drops saves, so
// a restart sees the state from before the freeze.
type memCheckpointer struct {
	mu     sync.Mutex
	snap   *Snapshot
	frozen bool
}

func (c *memCheckpointer) Save(_ context.Context, snap Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return nil
	}
	c.snap = &snap
	return nil
}

func (c *memCheckpointer) freeze(on bool) {
	c.mu.Lock()
	c.frozen = on
	c.mu.Unlock()
}

func (c *memCheckpointer) Load(context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return nil, nil
	}
	cp := *c.snap
	return &cp, nil
}

type harness struct {
	e        *Engine
	wallet   *stubWallet
	registry *stubRegistry
	out      *recorder
	cp       *memCheckpointer
}

// testConfig uses hour-long timers so only the test advances the clock.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tick = time.Hour
	cfg.SelectionDuration = 3 * time.Hour
	cfg.DrawInterval = time.Hour
	cfg.WinnerDisplayDuration = 2 * time.Hour
	cfg.WalletTimeout = time.Second
	cfg.RetryDelay = time.Hour
	return cfg
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		wallet:   newStubWallet(),
		registry: newStubRegistry(),
		out:      newRecorder(),
		cp:       &memCheckpointer{},
	}
	h.start(t)
	return h
}

// start builds a fresh engine over the harness stubs, resuming from
// whatever the checkpointer holds.
func (h *harness) start(t *testing.T) {
	t.Helper()
	h.e = h.build()
	if err := h.e.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(h.e.Stop)
}

func (h *harness) build() *Engine {
	e := New(testConfig(), Deps{
		Wallet:       h.wallet,
		Registry:     h.registry,
		Broadcaster:  h.out,
		Checkpointer: h.cp,
	})
	e.walletPolicy.InitialInterval = time.Millisecond
	e.payoutPolicy.InitialInterval = time.Millisecond
	return e
}

// join adds a connected player with the given funds.
func (h *harness) join(funds int64) (connID, userID uuid.UUID) {
	connID, userID = uuid.New(), uuid.New()
	h.wallet.mu.Lock()
	h.wallet.totals[userID] = decimal.NewFromInt(funds)
	h.wallet.mu.Unlock()
	h.e.Join(connID, userID, "player-"+userID.String()[:4])
	return connID, userID
}

// fire delivers the pending phase tick.
func (h *harness) fire() {
	h.e.mu.Lock()
	gen := h.e.gen
	h.e.mu.Unlock()
	h.e.onTimer(gen)
}

func (h *harness) phase() Phase {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return h.e.phase
}

func (h *harness) gameID() uuid.UUID {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return h.e.gameID
}

// toPlaying confirms cards 1..n for n fresh players and ends selection.
func (h *harness) toPlaying(t *testing.T, n int) []uuid.UUID {
	t.Helper()
	conns := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		conn, _ := h.join(20)
		if err := h.e.ConfirmCard(context.Background(), conn, i+1); err != nil {
			t.Fatalf("confirm card %d failed: %v", i+1, err)
		}
		conns[i] = conn
	}
	for i := 0; i < 3; i++ {
		h.fire()
	}
	if h.phase() != PhasePlaying {
		t.Fatalf("expected playing, got %s", h.phase())
	}
	return conns
}
