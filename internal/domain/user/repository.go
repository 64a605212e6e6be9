package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines user data access interface
type Repository interface {
	// UpsertTelegram inserts the account or refreshes its Telegram profile
	// fields, then loads the stored row back into u.
	UpsertTelegram(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	SetBanned(ctx context.Context, id uuid.UUID, banned bool) error
	SetRole(ctx context.Context, id uuid.UUID, role Role) error
	List(ctx context.Context, filter ListFilter) ([]User, error)
}

// ListFilter narrows the admin user listing
type ListFilter struct {
	Search     string
	BannedOnly bool
	Limit      int
	Offset     int
}

// repository implements Repository
type repository struct {
	db *sqlx.DB
}

// NewRepository creates new user repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const userColumns = `id, telegram_id, username, first_name, role, is_banned, created_at, updated_at`

func (r *repository) UpsertTelegram(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (telegram_id, username, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    updated_at = NOW()
		RETURNING ` + userColumns

	if err := r.db.GetContext(ctx, u, query, u.TelegramID, u.Username, u.FirstName); err != nil {
		return fmt.Errorf("user repository upsert: %w", err)
	}
	return nil
}

// GetByID returns user by ID, nil if absent
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByTelegramID returns user by Telegram account id, nil if absent
func (r *repository) GetByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
}

func (r *repository) getOne(ctx context.Context, query string, arg interface{}) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user repository get: %w", err)
	}
	return &u, nil
}

func (r *repository) SetBanned(ctx context.Context, id uuid.UUID, banned bool) error {
	return r.exec(ctx, `UPDATE users SET is_banned = $2, updated_at = NOW() WHERE id = $1`, id, banned)
}

func (r *repository) SetRole(ctx context.Context, id uuid.UUID, role Role) error {
	return r.exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
}

func (r *repository) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("user repository update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List returns users newest first
func (r *repository) List(ctx context.Context, filter ListFilter) ([]User, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	args := []interface{}{}
	argN := 1

	if filter.Search != "" {
		query += fmt.Sprintf(" AND (username ILIKE $%d OR first_name ILIKE $%d)", argN, argN)
		args = append(args, "%"+filter.Search+"%")
		argN++
	}
	if filter.BannedOnly {
		query += " AND is_banned = true"
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, filter.Limit, filter.Offset)

	var users []User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("user repository list: %w", err)
	}
	return users, nil
}
