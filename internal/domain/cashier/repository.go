package cashier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DepositMutator changes a locked deposit in place. Returning an error rolls
// the change back.
type DepositMutator func(d *Deposit) error

// WithdrawalMutator changes a locked withdrawal in place
type WithdrawalMutator func(w *Withdrawal) error

// ListFilter narrows deposit and withdrawal listings
type ListFilter struct {
	UserID *uuid.UUID
	Status *Status
	Limit  int
	Offset int
}

// Repository defines cashier data access
type Repository interface {
	CreateDeposit(ctx context.Context, d *Deposit) error
	GetDeposit(ctx context.Context, id uuid.UUID) (*Deposit, error)
	GetDepositByCode(ctx context.Context, code string) (*Deposit, error)
	UpdateDeposit(ctx context.Context, id uuid.UUID, fn DepositMutator) (*Deposit, error)
	ListDeposits(ctx context.Context, filter ListFilter) ([]Deposit, error)

	CreateWithdrawal(ctx context.Context, w *Withdrawal) error
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, id uuid.UUID, fn WithdrawalMutator) (*Withdrawal, error)
	ListWithdrawals(ctx context.Context, filter ListFilter) ([]Withdrawal, error)
}

type PostgresRepository struct {
	db *sqlx.DB
}

// NewRepository creates cashier repository
func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const (
	depositColumns    = `id, user_id, amount, payment_method, confirmation_code, status, created_at, resolved_at`
	withdrawalColumns = `id, user_id, amount, payment_method, account_number, status, created_at, resolved_at`
)

// Deposits

func (r *PostgresRepository) CreateDeposit(ctx context.Context, d *Deposit) error {
	query := `
		INSERT INTO deposits (user_id, amount, payment_method, confirmation_code, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query, d.UserID, d.Amount, d.PaymentMethod, d.ConfirmationCode, d.Status).
		Scan(&d.ID, &d.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("cashier create deposit: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetDeposit(ctx context.Context, id uuid.UUID) (*Deposit, error) {
	var d Deposit
	err := r.db.GetContext(ctx, &d, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cashier get deposit: %w", err)
	}
	return &d, nil
}

func (r *PostgresRepository) GetDepositByCode(ctx context.Context, code string) (*Deposit, error) {
	var d Deposit
	err := r.db.GetContext(ctx, &d, `SELECT `+depositColumns+` FROM deposits WHERE confirmation_code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cashier get deposit by code: %w", err)
	}
	return &d, nil
}

// UpdateDeposit locks the row, runs fn and writes back user, status and
// resolution time.
func (r *PostgresRepository) UpdateDeposit(ctx context.Context, id uuid.UUID, fn DepositMutator) (*Deposit, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cashier begin: %w", err)
	}
	defer tx.Rollback()

	var d Deposit
	err = tx.GetContext(ctx, &d, `SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDepositNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cashier lock deposit: %w", err)
	}

	if err := fn(&d); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE deposits SET user_id = $2, status = $3, resolved_at = $4 WHERE id = $1`,
		d.ID, d.UserID, d.Status, d.ResolvedAt)
	if err != nil {
		return nil, fmt.Errorf("cashier update deposit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("cashier commit: %w", err)
	}
	return &d, nil
}

func (r *PostgresRepository) ListDeposits(ctx context.Context, filter ListFilter) ([]Deposit, error) {
	query, args := listQuery(`SELECT `+depositColumns+` FROM deposits`, filter)
	var out []Deposit
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("cashier list deposits: %w", err)
	}
	return out, nil
}

// Withdrawals

func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, w *Withdrawal) error {
	query := `
		INSERT INTO withdrawals (user_id, amount, payment_method, account_number, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query, w.UserID, w.Amount, w.PaymentMethod, w.AccountNumber, w.Status).
		Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return fmt.Errorf("cashier create withdrawal: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetWithdrawal(ctx context.Context, id uuid.UUID) (*Withdrawal, error) {
	var w Withdrawal
	err := r.db.GetContext(ctx, &w, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cashier get withdrawal: %w", err)
	}
	return &w, nil
}

func (r *PostgresRepository) UpdateWithdrawal(ctx context.Context, id uuid.UUID, fn WithdrawalMutator) (*Withdrawal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cashier begin: %w", err)
	}
	defer tx.Rollback()

	var w Withdrawal
	err = tx.GetContext(ctx, &w, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cashier lock withdrawal: %w", err)
	}

	if err := fn(&w); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE withdrawals SET status = $2, resolved_at = $3 WHERE id = $1`,
		w.ID, w.Status, w.ResolvedAt)
	if err != nil {
		return nil, fmt.Errorf("cashier update withdrawal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("cashier commit: %w", err)
	}
	return &w, nil
}

func (r *PostgresRepository) ListWithdrawals(ctx context.Context, filter ListFilter) ([]Withdrawal, error) {
	query, args := listQuery(`SELECT `+withdrawalColumns+` FROM withdrawals`, filter)
	var out []Withdrawal
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("cashier list withdrawals: %w", err)
	}
	return out, nil
}

func listQuery(base string, filter ListFilter) (string, []interface{}) {
	query := base + ` WHERE 1=1`
	args := []interface{}{}
	argN := 1

	if filter.UserID != nil {
		query += fmt.Sprintf(` AND user_id = $%d`, argN)
		args = append(args, *filter.UserID)
		argN++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(` AND status = $%d`, argN)
		args = append(args, *filter.Status)
		argN++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argN, argN+1)
	args = append(args, limit, filter.Offset)
	return query, args
}
