package wallet_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/domain/wallet"
)

// memoryRepo is an in-process ledger store with one lock per user.
type memoryRepo struct {
	mu      sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
	wallets map[uuid.UUID]wallet.Wallet
	txs     []wallet.Transaction
	failOn  wallet.TransactionType
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		locks:   make(map[uuid.UUID]*sync.Mutex),
		wallets: make(map[uuid.UUID]wallet.Wallet),
	}
}

func (r *memoryRepo) userLock(userID uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	return l
}

func (r *memoryRepo) EnsureWallet(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[userID]; !ok {
		r.wallets[userID] = wallet.Wallet{UserID: userID, UpdatedAt: time.Now()}
	}
	return nil
}

func (r *memoryRepo) GetWallet(_ context.Context, userID uuid.UUID) (*wallet.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil, wallet.ErrWalletNotFound
	}
	return &w, nil
}

func (r *memoryRepo) Apply(_ context.Context, userID uuid.UUID, op wallet.Operation, fn wallet.Mutator) (*wallet.Wallet, *wallet.Transaction, error) {
	l := r.userLock(userID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	current, ok := r.wallets[userID]
	if !ok {
		r.mu.Unlock()
		return nil, nil, wallet.ErrWalletNotFound
	}
	lifetime := decimal.Zero
	for _, t := range r.txs {
		if t.UserID != userID {
			continue
		}
		if op.ReferenceID != "" && t.Type == op.Type && t.ReferenceID != nil && *t.ReferenceID == op.ReferenceID {
			r.mu.Unlock()
			if !t.Amount.Equal(op.Amount) {
				return nil, nil, wallet.ErrReferenceConflict
			}
			existing := t
			return &current, &existing, nil
		}
		if t.Type == wallet.TransactionTypeDeposit {
			lifetime = lifetime.Add(t.Amount)
		}
	}
	r.mu.Unlock()

	next, err := fn(current, lifetime)
	if err != nil {
		return nil, nil, err
	}
	if op.Type == r.failOn {
		return nil, nil, wallet.ErrStorage
	}

	t := wallet.Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          op.Type,
		Amount:        op.Amount,
		BalanceBefore: current.Total(),
		BalanceAfter:  next.Total(),
		Description:   op.Description,
		GameID:        op.GameID,
		CreatedAt:     time.Now(),
	}
	if op.ReferenceID != "" {
		ref := op.ReferenceID
		t.ReferenceID = &ref
	}

	r.mu.Lock()
	r.wallets[userID] = next
	r.txs = append(r.txs, t)
	r.mu.Unlock()

	return &next, &t, nil
}

func (r *memoryRepo) ListTransactions(_ context.Context, userID uuid.UUID, p wallet.Pagination) ([]wallet.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wallet.Transaction, 0)
	for _, t := range r.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if p.Offset >= len(out) {
		return []wallet.Transaction{}, nil
	}
	out = out[p.Offset:]
	if p.Limit > 0 && p.Limit < len(out) {
		out = out[:p.Limit]
	}
	return out, nil
}

func (r *memoryRepo) SearchTransactions(_ context.Context, f wallet.SearchFilters) ([]wallet.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wallet.Transaction, 0)
	for _, t := range r.txs {
		if f.UserID != nil && t.UserID != *f.UserID {
			continue
		}
		if f.Type != nil && t.Type != *f.Type {
			continue
		}
		if f.GameID != nil && (t.GameID == nil || *t.GameID != *f.GameID) {
			continue
		}
		out = append(out, t)
	}
	if f.Offset >= len(out) {
		return []wallet.Transaction{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memoryRepo) LedgerTotal(_ context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, t := range r.txs {
		if t.UserID == userID {
			total = total.Add(t.Signed())
		}
	}
	return total, nil
}

func (r *memoryRepo) count(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.txs {
		if t.UserID == userID {
			n++
		}
	}
	return n
}
