package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const queryTimeout = 3 * time.Second

// Mutator computes the next wallet state from the locked one. A returned
// error aborts the unit of work without any write.
type Mutator func(w Wallet, lifetimeDeposits decimal.Decimal) (Wallet, error)

type Repository interface {
	EnsureWallet(ctx context.Context, userID uuid.UUID) error
	GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error)
	// Apply locks the wallet, runs fn and persists the new balances together
	// with exactly one ledger row. Replaying an operation whose reference was
	// already recorded returns the stored row and changes nothing.
	Apply(ctx context.Context, userID uuid.UUID, op Operation, fn Mutator) (*Wallet, *Transaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, pagination Pagination) ([]Transaction, error)
	SearchTransactions(ctx context.Context, filters SearchFilters) ([]Transaction, error)
	// LedgerTotal replays the signed ledger for a user.
	LedgerTotal(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

// PostgresRepository is the ledger store backed by user_wallets and
// wallet_transactions.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO user_wallets (user_id, game_balance, withdrawable_balance)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("%w: ensure wallet: %v", ErrStorage, err)
	}
	return nil
}

func (r *PostgresRepository) GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var w Wallet
	err := r.db.GetContext(ctx2, &w, `
		SELECT user_id, game_balance, withdrawable_balance, updated_at
		FROM user_wallets
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get wallet: %v", ErrStorage, err)
	}
	return &w, nil
}

func (r *PostgresRepository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func (r *PostgresRepository) lockWallet(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := tx.GetContext(ctx, &w, `
		SELECT user_id, game_balance, withdrawable_balance, updated_at
		FROM user_wallets
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lock wallet: %v", ErrStorage, err)
	}
	return &w, nil
}

func (r *PostgresRepository) getTransactionByRef(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, txType TransactionType, referenceID string) (*Transaction, error) {
	if referenceID == "" {
		return nil, nil
	}

	var t Transaction
	err := tx.GetContext(ctx, &t, `
		SELECT id, user_id, type, amount, balance_before, balance_after, description, game_id, reference_id, created_at
		FROM wallet_transactions
		WHERE user_id = $1 AND type = $2 AND reference_id = $3
		LIMIT 1
	`, userID, string(txType), referenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup reference: %v", ErrStorage, err)
	}
	return &t, nil
}

func (r *PostgresRepository) lifetimeDeposits(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0)
		FROM wallet_transactions
		WHERE user_id = $1 AND type = $2
	`, userID, string(TransactionTypeDeposit))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: sum deposits: %v", ErrStorage, err)
	}
	return total, nil
}

func (r *PostgresRepository) updateBalance(ctx context.Context, tx *sqlx.Tx, w Wallet) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_wallets
		SET game_balance = $1, withdrawable_balance = $2, updated_at = now()
		WHERE user_id = $3
	`, w.GameBalance, w.WithdrawableBalance, w.UserID)
	if err != nil {
		return fmt.Errorf("%w: update wallet: %v", ErrStorage, err)
	}
	return nil
}

func (r *PostgresRepository) insertTransaction(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO wallet_transactions (user_id, type, amount, balance_before, balance_after, description, game_id, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, t.UserID, string(t.Type), t.Amount, t.BalanceBefore, t.BalanceAfter, t.Description, t.GameID, t.ReferenceID).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("%w: insert transaction: %v", ErrStorage, err)
	}
	return nil
}

func (r *PostgresRepository) Apply(ctx context.Context, userID uuid.UUID, op Operation, fn Mutator) (*Wallet, *Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.beginTx(ctx2)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: begin tx: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	current, err := r.lockWallet(ctx2, tx, userID)
	if err != nil {
		return nil, nil, err
	}

	existing, err := r.getTransactionByRef(ctx2, tx, userID, op.Type, op.ReferenceID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		if !existing.Amount.Equal(op.Amount) {
			return nil, nil, ErrReferenceConflict
		}
		return current, existing, nil
	}

	lifetime := decimal.Zero
	if op.Type == TransactionTypeDeposit || op.Type == TransactionTypeWin {
		if lifetime, err = r.lifetimeDeposits(ctx2, tx, userID); err != nil {
			return nil, nil, err
		}
	}

	next, err := fn(*current, lifetime)
	if err != nil {
		return nil, nil, err
	}
	if next.GameBalance.IsNegative() || next.WithdrawableBalance.IsNegative() {
		return nil, nil, ErrInsufficientFunds
	}

	if err := r.updateBalance(ctx2, tx, next); err != nil {
		return nil, nil, err
	}

	t := &Transaction{
		UserID:        userID,
		Type:          op.Type,
		Amount:        op.Amount,
		BalanceBefore: current.Total(),
		BalanceAfter:  next.Total(),
		Description:   op.Description,
		GameID:        op.GameID,
	}
	if op.ReferenceID != "" {
		ref := op.ReferenceID
		t.ReferenceID = &ref
	}
	if err := r.insertTransaction(ctx2, tx, t); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("%w: commit tx: %v", ErrStorage, err)
	}

	next.UpdatedAt = time.Now()
	return &next, t, nil
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, userID uuid.UUID, pagination Pagination) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	limit := pagination.Limit
	if limit <= 0 {
		limit = 50
	}

	transactions := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &transactions, `
		SELECT id, user_id, type, amount, balance_before, balance_after, description, game_id, reference_id, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, pagination.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", ErrStorage, err)
	}
	return transactions, nil
}

func (r *PostgresRepository) SearchTransactions(ctx context.Context, filters SearchFilters) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	base := `
		SELECT id, user_id, type, amount, balance_before, balance_after, description, game_id, reference_id, created_at
		FROM wallet_transactions
		WHERE 1=1`
	args := make([]interface{}, 0, 8)
	idx := 1

	if filters.UserID != nil {
		base += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, *filters.UserID)
		idx++
	}
	if filters.Type != nil && *filters.Type != "" {
		base += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, string(*filters.Type))
		idx++
	}
	if filters.GameID != nil {
		base += fmt.Sprintf(" AND game_id = $%d", idx)
		args = append(args, *filters.GameID)
		idx++
	}
	if filters.DateFrom != nil {
		base += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *filters.DateFrom)
		idx++
	}
	if filters.DateTo != nil {
		base += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *filters.DateTo)
		idx++
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	base = strings.TrimSpace(base) + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, filters.Offset)

	transactions := make([]Transaction, 0)
	if err := r.db.SelectContext(ctx2, &transactions, base, args...); err != nil {
		return nil, fmt.Errorf("%w: search transactions: %v", ErrStorage, err)
	}
	return transactions, nil
}

func (r *PostgresRepository) LedgerTotal(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total decimal.Decimal
	err := r.db.GetContext(ctx2, &total, `
		SELECT COALESCE(SUM(CASE WHEN type IN ('deposit', 'win', 'refund', 'admin_add') THEN amount ELSE -amount END), 0)
		FROM wallet_transactions
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: ledger total: %v", ErrStorage, err)
	}
	return total, nil
}
