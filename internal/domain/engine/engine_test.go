package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/domain/bingo"
	"github.com/royalbingo/bingo-api/internal/domain/wallet"
)

func TestStartOpensSelection(t *testing.T) {
	h := newHarness(t)

	if h.phase() != PhaseSelection {
		t.Fatalf("expected selection, got %s", h.phase())
	}
	if h.gameID() == uuid.Nil {
		t.Fatal("expected a game id")
	}
	live := h.e.Live()
	if live.SecondsLeft != 3 {
		t.Fatalf("expected 3 seconds left, got %d", live.SecondsLeft)
	}
}

func TestConfirmCardStakesOnce(t *testing.T) {
	h := newHarness(t)
	conn, user := h.join(20)

	if err := h.e.ConfirmCard(context.Background(), conn, 7); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if err := h.e.ConfirmCard(context.Background(), conn, 7); err != nil {
		t.Fatalf("repeat confirm should succeed, got %v", err)
	}
	if err := h.e.ConfirmCard(context.Background(), conn, 8); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}

	stakes, _, _ := h.wallet.counts()
	if stakes != 1 {
		t.Fatalf("expected 1 stake, got %d", stakes)
	}
	if got := h.wallet.total(user); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected balance 10, got %s", got)
	}
	p, _ := h.e.Player(conn)
	if !p.IsCardConfirmed || p.SelectedCardID != 7 {
		t.Fatalf("expected confirmed card 7, got %+v", p)
	}
	if h.out.count(EventCardTaken) != 1 {
		t.Fatalf("expected 1 cardTaken, got %d", h.out.count(EventCardTaken))
	}
}

func TestConfirmSameCardConcurrently(t *testing.T) {
	h := newHarness(t)

	const n = 10
	conns := make([]uuid.UUID, n)
	for i := range conns {
		conns[i], _ = h.join(20)
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.e.ConfirmCard(context.Background(), conns[i], 5)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrCardAlreadyTaken):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly 1 confirmation, got %d", won)
	}
	stakes, _, refunds := h.wallet.counts()
	if stakes != 1 || refunds != 0 {
		t.Fatalf("expected 1 stake and no refunds, got %d/%d", stakes, refunds)
	}
}

func TestConfirmInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.join(5)

	if _, err := h.e.SelectCard(context.Background(), conn, 3); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected select to be refused, got %v", err)
	}
	if err := h.e.ConfirmCard(context.Background(), conn, 3); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(h.e.Live().TakenCards) != 0 {
		t.Fatal("card should stay free")
	}

	other, _ := h.join(20)
	if err := h.e.ConfirmCard(context.Background(), other, 3); err != nil {
		t.Fatalf("card should be available, got %v", err)
	}
}

func TestConfirmRejectsUnknownCard(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.join(20)

	if err := h.e.ConfirmCard(context.Background(), conn, 0); !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("expected ErrInvalidCard, got %v", err)
	}
	if err := h.e.ConfirmCard(context.Background(), conn, 101); !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("expected ErrInvalidCard, got %v", err)
	}
	if err := h.e.ConfirmCard(context.Background(), uuid.New(), 1); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestConfirmRetriesTransientStakeFailure(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.join(20)
	h.wallet.mu.Lock()
	h.wallet.stakeFailures = 2
	h.wallet.mu.Unlock()

	if err := h.e.ConfirmCard(context.Background(), conn, 1); err != nil {
		t.Fatalf("expected confirm to survive transient failures, got %v", err)
	}
	stakes, _, _ := h.wallet.counts()
	if stakes != 1 {
		t.Fatalf("expected 1 stake, got %d", stakes)
	}
}

func TestSelectionCancelsWithoutEnoughPlayers(t *testing.T) {
	h := newHarness(t)
	conn, user := h.join(20)
	first := h.gameID()

	if err := h.e.ConfirmCard(context.Background(), conn, 1); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		h.fire()
	}

	if got := h.wallet.total(user); !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected stake refunded to 20, got %s", got)
	}
	if h.out.count(EventGameCancelled) != 1 {
		t.Fatalf("expected gameCancelled broadcast")
	}
	if len(h.registry.cancelled) != 1 || h.registry.cancelled[0] != first {
		t.Fatalf("expected game %s cancelled, got %v", first, h.registry.cancelled)
	}
	if h.phase() != PhaseSelection || h.gameID() == first {
		t.Fatalf("expected a new selection round, got %s on %s", h.phase(), h.gameID())
	}
	if p, _ := h.e.Player(conn); p.IsCardConfirmed {
		t.Fatal("confirmation should reset with the new round")
	}
}

func TestSelectionStartsPlaying(t *testing.T) {
	h := newHarness(t)
	h.toPlaying(t, 2)

	live := h.e.Live()
	if !live.Pot.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected pot 20, got %s", live.Pot)
	}
	if live.Players != 2 {
		t.Fatalf("expected 2 players, got %d", live.Players)
	}
	if len(h.registry.started) != 1 {
		t.Fatalf("expected game started once, got %d", len(h.registry.started))
	}

	conn, _ := h.join(20)
	if err := h.e.ConfirmCard(context.Background(), conn, 9); !errors.Is(err, ErrGameNotInExpectedPhase) {
		t.Fatalf("expected ErrGameNotInExpectedPhase, got %v", err)
	}
}

func TestSelectionWaitsForInFlightStake(t *testing.T) {
	h := newHarness(t)
	a, _ := h.join(20)
	b, userB := h.join(20)

	if err := h.e.ConfirmCard(context.Background(), a, 1); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	gate := make(chan struct{})
	h.wallet.mu.Lock()
	h.wallet.gates[userB] = gate
	h.wallet.mu.Unlock()

	confirmed := make(chan error, 1)
	go func() { confirmed <- h.e.ConfirmCard(context.Background(), b, 2) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		h.e.mu.Lock()
		_, reserved := h.e.reserved[2]
		h.e.mu.Unlock()
		if reserved {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("card 2 was never reserved")
		}
		time.Sleep(time.Millisecond)
	}

	h.fire()
	h.fire()
	closed := make(chan struct{})
	go func() {
		h.fire()
		close(closed)
	}()

	close(gate)
	if err := <-confirmed; err != nil {
		t.Fatalf("in-flight confirm failed: %v", err)
	}
	<-closed

	if h.phase() != PhasePlaying {
		t.Fatalf("expected playing with both seats, got %s", h.phase())
	}
	if live := h.e.Live(); live.Players != 2 {
		t.Fatalf("expected 2 players, got %d", live.Players)
	}
}

func TestStaleTimerIgnored(t *testing.T) {
	h := newHarness(t)

	h.e.mu.Lock()
	stale := h.e.gen
	h.e.mu.Unlock()
	h.fire()
	h.e.onTimer(stale)

	if left := h.e.Live().SecondsLeft; left != 2 {
		t.Fatalf("expected one tick applied, got %d seconds left", left)
	}
}

// rowOf returns the numbers of a card row.
func rowOf(t *testing.T, d *bingo.Deck, cardID, row int) []int {
	t.Helper()
	card, ok := d.Card(cardID)
	if !ok {
		t.Fatalf("missing card %d", cardID)
	}
	return card.Grid[row][:]
}

func (h *harness) setCalled(called []int) {
	h.e.mu.Lock()
	h.e.drawer = bingo.RestoreDrawer(h.e.drawSeed, called)
	h.e.mu.Unlock()
}

func TestFirstClaimWins(t *testing.T) {
	h := newHarness(t)
	conns := h.toPlaying(t, 2)
	gameID := h.gameID()

	called := append(rowOf(t, h.e.Deck(), 1, 0), rowOf(t, h.e.Deck(), 2, 0)...)
	h.setCalled(called)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.e.ClaimBingo(context.Background(), conns[i], i+1)
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			if winner != -1 {
				t.Fatal("two claims accepted")
			}
			winner = i
		case errors.Is(err, ErrGameNotInExpectedPhase):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if winner == -1 {
		t.Fatal("no claim accepted")
	}

	_, wins, _ := h.wallet.counts()
	if wins != 1 {
		t.Fatalf("expected 1 win, got %d", wins)
	}
	p, _ := h.e.Player(conns[winner])
	if got := h.wallet.total(p.UserID); !got.Equal(decimal.NewFromInt(26)) {
		t.Fatalf("expected winner balance 26, got %s", got)
	}
	res, ok := h.registry.result(gameID)
	if !ok || res.WinnerUserID == nil || *res.WinnerUserID != p.UserID {
		t.Fatalf("expected registry winner %s, got %+v", p.UserID, res)
	}
	if !res.Prize.Equal(decimal.NewFromInt(16)) {
		t.Fatalf("expected prize 16, got %s", res.Prize)
	}
	if h.phase() != PhaseWinnerDisplay {
		t.Fatalf("expected winner display, got %s", h.phase())
	}

	h.fire()
	h.fire()
	if h.phase() != PhaseSelection || h.gameID() == gameID {
		t.Fatalf("expected next round after display, got %s", h.phase())
	}
}

func TestInvalidClaimChangesNothing(t *testing.T) {
	h := newHarness(t)
	conns := h.toPlaying(t, 2)
	h.fire()
	before := h.e.Live()

	if err := h.e.ClaimBingo(context.Background(), conns[0], 1); !errors.Is(err, ErrInvalidClaim) {
		t.Fatalf("expected ErrInvalidClaim, got %v", err)
	}
	if err := h.e.ClaimBingo(context.Background(), conns[0], 2); !errors.Is(err, ErrNotConfirmedParticipant) {
		t.Fatalf("expected ErrNotConfirmedParticipant, got %v", err)
	}
	spectator, _ := h.join(20)
	if err := h.e.ClaimBingo(context.Background(), spectator, 1); !errors.Is(err, ErrNotConfirmedParticipant) {
		t.Fatalf("expected ErrNotConfirmedParticipant for spectator, got %v", err)
	}
	if err := h.e.ClaimBingo(context.Background(), uuid.New(), 1); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}

	after := h.e.Live()
	if after.Phase != before.Phase || len(after.Called) != len(before.Called) || !after.Pot.Equal(before.Pot) {
		t.Fatalf("state changed: before %+v after %+v", before, after)
	}
	if _, wins, _ := h.wallet.counts(); wins != 0 {
		t.Fatalf("expected no wins, got %d", wins)
	}
}

func TestExhaustedDrawIsNoContest(t *testing.T) {
	h := newHarness(t)
	h.toPlaying(t, 2)
	gameID := h.gameID()

	for i := 0; i < bingo.MaxNumber; i++ {
		h.fire()
	}
	if called := h.e.Live().Called; len(called) != bingo.MaxNumber {
		t.Fatalf("expected %d numbers called, got %d", bingo.MaxNumber, len(called))
	}
	if h.out.count(EventNumberCalled) != bingo.MaxNumber {
		t.Fatalf("expected %d numberCalled events, got %d", bingo.MaxNumber, h.out.count(EventNumberCalled))
	}

	h.fire()

	res, ok := h.registry.result(gameID)
	if !ok {
		t.Fatal("expected the exhausted game to be completed")
	}
	if res.WinnerUserID != nil || len(res.Called) != bingo.MaxNumber {
		t.Fatalf("expected no winner and full sequence, got %+v", res)
	}
	stakes, wins, refunds := h.wallet.counts()
	if stakes != 2 || wins != 0 || refunds != 0 {
		t.Fatalf("expected stakes kept, got stakes=%d wins=%d refunds=%d", stakes, wins, refunds)
	}
	if h.phase() != PhaseSelection || h.gameID() == gameID {
		t.Fatalf("expected a new round, got %s", h.phase())
	}
}

func TestRestoreResumesPlaying(t *testing.T) {
	h := newHarness(t)
	conns := h.toPlaying(t, 2)
	for i := 0; i < 5; i++ {
		h.fire()
	}
	before := h.e.Live()
	p, _ := h.e.Player(conns[0])
	h.e.Stop()

	h.start(t)

	if h.phase() != PhasePlaying {
		t.Fatalf("expected playing after restore, got %s", h.phase())
	}
	after := h.e.Live()
	if after.GameID != before.GameID || after.Players != 2 || !after.Pot.Equal(before.Pot) {
		t.Fatalf("expected round %+v, got %+v", before, after)
	}
	for i, n := range before.Called {
		if after.Called[i] != n {
			t.Fatalf("called sequence diverged at %d", i)
		}
	}

	conn := uuid.New()
	h.e.Join(conn, p.UserID, "back")
	rejoined, _ := h.e.Player(conn)
	if !rejoined.IsCardConfirmed || rejoined.SelectedCardID != 1 {
		t.Fatalf("expected seat restored on rejoin, got %+v", rejoined)
	}

	h.fire()
	if got := len(h.e.Live().Called); got != len(before.Called)+1 {
		t.Fatalf("expected draw to continue, got %d numbers", got)
	}
}

func TestRestorePaysPendingWinner(t *testing.T) {
	h := &harness{
		wallet:   newStubWallet(),
		registry: newStubRegistry(),
		out:      newRecorder(),
		cp:       &memCheckpointer{},
	}
	ctx := context.Background()
	g, _ := h.registry.CreateGame(ctx, decimal.NewFromInt(10))
	_ = h.registry.StartGame(ctx, g.ID, decimal.NewFromInt(20))

	winner, loser := uuid.New(), uuid.New()
	h.cp.snap = &Snapshot{
		Seq:      12,
		Phase:    PhaseSettling,
		GameID:   g.ID,
		Stake:    decimal.NewFromInt(10),
		Pot:      decimal.NewFromInt(20),
		DrawSeed: 42,
		Called:   []int{1, 2, 3},
		Participants: []Seat{
			{UserID: winner, Name: "w", CardID: 1},
			{UserID: loser, Name: "l", CardID: 2},
		},
		PendingWinner: &Winner{UserID: winner, Name: "w", CardID: 1, Prize: decimal.NewFromInt(16)},
	}

	h.start(t)

	if _, wins, _ := h.wallet.counts(); wins != 1 {
		t.Fatalf("expected pending prize paid once, got %d", wins)
	}
	if got := h.wallet.total(winner); !got.Equal(decimal.NewFromInt(16)) {
		t.Fatalf("expected winner credited 16, got %s", got)
	}
	res, ok := h.registry.result(g.ID)
	if !ok || res.WinnerUserID == nil || *res.WinnerUserID != winner {
		t.Fatalf("expected registry winner, got %+v", res)
	}
	if h.phase() != PhaseWinnerDisplay {
		t.Fatalf("expected winner display, got %s", h.phase())
	}
}

func TestRestoreCancellingRefunds(t *testing.T) {
	h := &harness{
		wallet:   newStubWallet(),
		registry: newStubRegistry(),
		out:      newRecorder(),
		cp:       &memCheckpointer{},
	}
	g, _ := h.registry.CreateGame(context.Background(), decimal.NewFromInt(10))
	user := uuid.New()
	h.cp.snap = &Snapshot{
		Seq:          3,
		Phase:        PhaseCancelling,
		GameID:       g.ID,
		Stake:        decimal.NewFromInt(10),
		Participants: []Seat{{UserID: user, CardID: 4}},
	}

	h.start(t)

	if got := h.wallet.total(user); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected stake refunded, got %s", got)
	}
	if len(h.registry.cancelled) != 1 {
		t.Fatalf("expected game cancelled, got %v", h.registry.cancelled)
	}
	if h.phase() != PhaseSelection || h.gameID() == g.ID {
		t.Fatalf("expected a fresh round, got %s", h.phase())
	}
}

func TestPhasePublic(t *testing.T) {
	cases := map[Phase]string{
		PhaseIdle:          "selection",
		PhaseStarting:      "selection",
		PhaseCancelling:    "selection",
		PhaseSelection:     "selection",
		PhasePlaying:       "playing",
		PhaseSettling:      "playing",
		PhaseWinnerDisplay: "winner_display",
	}
	for phase, want := range cases {
		if got := phase.Public(); got != want {
			t.Fatalf("expected %s for %s, got %s", want, phase, got)
		}
	}
}
