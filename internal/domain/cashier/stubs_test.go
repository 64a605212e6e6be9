package cashier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/domain/wallet"
)

type memoryRepo struct {
	mu          sync.Mutex
	deposits    map[uuid.UUID]*Deposit
	withdrawals map[uuid.UUID]*Withdrawal
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		deposits:    make(map[uuid.UUID]*Deposit),
		withdrawals: make(map[uuid.UUID]*Withdrawal),
	}
}

func (r *memoryRepo) CreateDeposit(_ context.Context, d *Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.deposits {
		if existing.ConfirmationCode == d.ConfirmationCode {
			return ErrDuplicateCode
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	cp := *d
	r.deposits[d.ID] = &cp
	return nil
}

func (r *memoryRepo) GetDeposit(_ context.Context, id uuid.UUID) (*Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deposits[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (r *memoryRepo) GetDepositByCode(_ context.Context, code string) (*Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deposits {
		if d.ConfirmationCode == code {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

// UpdateDeposit holds the repo lock for the whole mutation, like a row lock.
func (r *memoryRepo) UpdateDeposit(_ context.Context, id uuid.UUID, fn DepositMutator) (*Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deposits[id]
	if !ok {
		return nil, ErrDepositNotFound
	}
	cp := *d
	if err := fn(&cp); err != nil {
		return nil, err
	}
	r.deposits[id] = &cp
	out := cp
	return &out, nil
}

func (r *memoryRepo) ListDeposits(_ context.Context, f ListFilter) ([]Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Deposit
	for _, d := range r.deposits {
		if f.UserID != nil && d.UserID.UUID != *f.UserID {
			continue
		}
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepo) CreateWithdrawal(_ context.Context, w *Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.ID = uuid.New()
	w.CreatedAt = time.Now()
	cp := *w
	r.withdrawals[w.ID] = &cp
	return nil
}

func (r *memoryRepo) GetWithdrawal(_ context.Context, id uuid.UUID) (*Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.withdrawals[id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, nil
}

func (r *memoryRepo) UpdateWithdrawal(_ context.Context, id uuid.UUID, fn WithdrawalMutator) (*Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.withdrawals[id]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	cp := *w
	if err := fn(&cp); err != nil {
		return nil, err
	}
	r.withdrawals[id] = &cp
	out := cp
	return &out, nil
}

func (r *memoryRepo) ListWithdrawals(_ context.Context, f ListFilter) ([]Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Withdrawal
	for _, w := range r.withdrawals {
		if f.UserID != nil && w.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && w.Status != *f.Status {
			continue
		}
		out = append(out, *w)
	}
	return out, nil
}

// fakeWallet tracks withdrawable balances and applied references.
type fakeWallet struct {
	mu           sync.Mutex
	withdrawable map[uuid.UUID]decimal.Decimal
	game         map[uuid.UUID]decimal.Decimal
	refs         map[string]bool
	deposits     int
	withdrawals  int
	failNext     int
	// readDelay holds GetBalance open to widen check-then-act windows.
	readDelay time.Duration
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		withdrawable: make(map[uuid.UUID]decimal.Decimal),
		game:         make(map[uuid.UUID]decimal.Decimal),
		refs:         make(map[string]bool),
	}
}

func (f *fakeWallet) balance(userID uuid.UUID) *wallet.Balance {
	g, w := f.game[userID], f.withdrawable[userID]
	return &wallet.Balance{GameBalance: g, WithdrawableBalance: w, Total: g.Add(w)}
}

func (f *fakeWallet) GetBalance(_ context.Context, userID uuid.UUID) (*wallet.Balance, error) {
	f.mu.Lock()
	delay := f.readDelay
	f.mu.Unlock()
	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance(userID), nil
}

func (f *fakeWallet) Deposit(_ context.Context, userID uuid.UUID, amount decimal.Decimal, _, ref string) (*wallet.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, fmt.Errorf("%w: connection reset", wallet.ErrStorage)
	}
	if !f.refs[ref] {
		f.refs[ref] = true
		f.deposits++
		f.game[userID] = f.game[userID].Add(amount)
	}
	return f.balance(userID), nil
}

func (f *fakeWallet) Withdraw(_ context.Context, userID uuid.UUID, amount decimal.Decimal, _, ref string) (*wallet.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refs[ref] {
		return f.balance(userID), nil
	}
	if f.withdrawable[userID].LessThan(amount) {
		return nil, wallet.ErrInsufficientFunds
	}
	f.refs[ref] = true
	f.withdrawals++
	f.withdrawable[userID] = f.withdrawable[userID].Sub(amount)
	return f.balance(userID), nil
}

type auditEntry struct {
	action   string
	entityID uuid.UUID
	reason   string
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAuditor) LogAction(_ context.Context, _ uuid.UUID, action, _ string, entityID uuid.UUID, reason string, _, _ interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{action: action, entityID: entityID, reason: reason})
}

func (a *fakeAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.action
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts)
}

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	wallet   *fakeWallet
	audit    *fakeAuditor
	notifier *recordingNotifier
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMemoryRepo(),
		wallet:   newFakeWallet(),
		audit:    &fakeAuditor{},
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(f.repo, f.wallet, f.notifier, f.audit, Config{
		MinDeposit:    decimal.NewFromInt(20),
		MinWithdrawal: decimal.NewFromInt(50),
	})
	f.svc.policy.InitialInterval = time.Millisecond
	return f
}
