package user

import (
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the system
type Role string

const (
	RolePlayer Role = "player"
	RoleAdmin  Role = "admin"
)

// IsValidRole checks if role is valid for an account
func IsValidRole(role string) bool {
	return role == string(RolePlayer) || role == string(RoleAdmin)
}

// User is a player account keyed by Telegram identity (matches users table)
type User struct {
	ID         uuid.UUID `db:"id" json:"id"`
	TelegramID int64     `db:"telegram_id" json:"telegram_id"`
	Username   string    `db:"username" json:"username"`
	FirstName  string    `db:"first_name" json:"first_name"`
	Role       Role      `db:"role" json:"role"`
	IsBanned   bool      `db:"is_banned" json:"is_banned"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// IsAdmin returns true if user is an admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
