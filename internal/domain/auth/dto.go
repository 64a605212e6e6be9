package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/royalbingo/bingo-api/internal/domain/user"
)

// TelegramLoginRequest for POST /auth/telegram
type TelegramLoginRequest struct {
	InitData string `json:"init_data" validate:"required,max=4096"`
}

// RefreshRequest for POST /auth/refresh and /auth/logout
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthResponse returned after login and refresh
type AuthResponse struct {
	User   UserResponse   `json:"user"`
	Tokens TokensResponse `json:"tokens"`
}

// UserResponse represents user in API response
type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	Role       string    `json:"role"`
	CreatedAt  string    `json:"created_at"`
}

// TokensResponse represents tokens in API response
type TokensResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // seconds until access token expires
	TokenType    string `json:"token_type"`
}

// NewUserResponse creates UserResponse from user entity
func NewUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		TelegramID: u.TelegramID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		Role:       string(u.Role),
		CreatedAt:  u.CreatedAt.Format(time.RFC3339),
	}
}
