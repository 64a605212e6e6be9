package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/royalbingo/bingo-api/internal/domain/user"
	"github.com/royalbingo/bingo-api/internal/pkg/jwt"
	"github.com/royalbingo/bingo-api/internal/pkg/telegram"
)

// InitDataVerifier validates Mini App launch data
type InitDataVerifier interface {
	Verify(raw string) (*telegram.InitData, error)
}

// WalletProvisioner creates the wallet row for a new player
type WalletProvisioner interface {
	EnsureWallet(ctx context.Context, userID uuid.UUID) error
}

// Service handles authentication business logic
type Service struct {
	userRepo   user.Repository
	verifier   InitDataVerifier
	wallets    WalletProvisioner
	jwtService *jwt.Service
	refresh    RefreshStore
	adminIDs   map[int64]bool
}

// NewService creates auth service. Telegram accounts listed in adminTelegramIDs
// are promoted to admin on login.
func NewService(userRepo user.Repository, verifier InitDataVerifier, wallets WalletProvisioner, jwtService *jwt.Service, refresh RefreshStore, adminTelegramIDs []int64) *Service {
	admins := make(map[int64]bool, len(adminTelegramIDs))
	for _, id := range adminTelegramIDs {
		admins[id] = true
	}
	return &Service{
		userRepo:   userRepo,
		verifier:   verifier,
		wallets:    wallets,
		jwtService: jwtService,
		refresh:    refresh,
		adminIDs:   admins,
	}
}

// TelegramLogin exchanges signed init data for tokens, creating the player
// and wallet on first sight.
func (s *Service) TelegramLogin(ctx context.Context, initData string) (*AuthResponse, error) {
	data, err := s.verifier.Verify(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInitData, err)
	}

	// 1. Find or create user
	u := &user.User{
		TelegramID: data.User.ID,
		Username:   data.User.DisplayName(),
		FirstName:  data.User.FirstName,
	}
	if err := s.userRepo.UpsertTelegram(ctx, u); err != nil {
		return nil, err
	}

	// Check if banned
	if u.IsBanned {
		return nil, ErrUserBanned
	}

	// 2. Bootstrap operators
	if s.adminIDs[u.TelegramID] && u.Role != user.RoleAdmin {
		if err := s.userRepo.SetRole(ctx, u.ID, user.RoleAdmin); err != nil {
			return nil, err
		}
		u.Role = user.RoleAdmin
		log.Info().Str("user_id", u.ID.String()).Int64("telegram_id", u.TelegramID).Msg("Promoted configured admin")
	}

	// 3. Ensure wallet
	if err := s.wallets.EnsureWallet(ctx, u.ID); err != nil {
		return nil, err
	}

	// 4. Generate tokens
	return s.generateTokens(ctx, u)
}

// Refresh refreshes access token using refresh token
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenRequired
	}

	// 1. Validate refresh token (we store hash(refresh))
	refreshHash := jwt.HashRefreshToken(refreshToken)
	userID, err := s.refresh.Lookup(ctx, refreshHash)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			return nil, err
		}
		return nil, fmt.Errorf("refresh lookup: %w", err)
	}

	// 2. Get user
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || u == nil {
		return nil, ErrUserNotFound
	}

	// 3. Delete old refresh token (token rotation)
	_ = s.refresh.Delete(ctx, refreshHash)

	if u.IsBanned {
		return nil, ErrUserBanned
	}

	// 4. Generate new tokens
	return s.generateTokens(ctx, u)
}

// Logout invalidates refresh token
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil // Nothing to logout
	}
	return s.refresh.Delete(ctx, jwt.HashRefreshToken(refreshToken))
}

// GetCurrentUser returns current user by ID
func (s *Service) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || u == nil {
		return nil, ErrUserNotFound
	}

	resp := NewUserResponse(u)
	return &resp, nil
}

// generateTokens creates access and refresh tokens
func (s *Service) generateTokens(ctx context.Context, u *user.User) (*AuthResponse, error) {
	accessToken, err := s.jwtService.GenerateAccessToken(u.ID, string(u.Role), u.Username, u.IsBanned)
	if err != nil {
		return nil, err
	}

	refreshToken, err := jwt.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	if err := s.refresh.Save(ctx, jwt.HashRefreshToken(refreshToken), u.ID, s.jwtService.GetRefreshTTL()); err != nil {
		return nil, err
	}

	return &AuthResponse{
		User: NewUserResponse(u),
		Tokens: TokensResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshToken, // return raw refresh to client
			ExpiresIn:    int(s.jwtService.GetAccessTTL().Seconds()),
			TokenType:    "Bearer",
		},
	}, nil
}
