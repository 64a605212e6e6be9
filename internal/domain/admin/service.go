package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/royalbingo/bingo-api/internal/domain/user"
)

// Service handles operator tooling: user moderation, audit trail, stats
type Service struct {
	repo  Repository
	users user.Repository
}

// NewService creates admin service
func NewService(repo Repository, users user.Repository) *Service {
	return &Service{repo: repo, users: users}
}

// ListUsers returns players for the moderation table
func (s *Service) ListUsers(ctx context.Context, filter user.ListFilter) ([]user.User, error) {
	return s.users.List(ctx, filter)
}

// SetBanned bans or unbans a player. Banned players keep their balance but
// cannot log in or refresh tokens.
func (s *Service) SetBanned(ctx context.Context, adminID, userID uuid.UUID, banned bool, reason string) error {
	if adminID == userID {
		return ErrCannotManageSelf
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return user.ErrUserNotFound
	}

	if err := s.users.SetBanned(ctx, userID, banned); err != nil {
		return err
	}

	action := ActionUserUnban
	if banned {
		action = ActionUserBan
	}
	s.LogAction(ctx, adminID, action, "user", userID, reason,
		map[string]bool{"is_banned": u.IsBanned}, map[string]bool{"is_banned": banned})
	return nil
}

// SetRole promotes or demotes a user
func (s *Service) SetRole(ctx context.Context, adminID, userID uuid.UUID, role string) error {
	if adminID == userID {
		return ErrCannotManageSelf
	}
	if !user.IsValidRole(role) {
		return user.ErrInvalidRole
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return user.ErrUserNotFound
	}

	if err := s.users.SetRole(ctx, userID, user.Role(role)); err != nil {
		return err
	}

	s.LogAction(ctx, adminID, ActionUserRole, "user", userID, "",
		map[string]string{"role": string(u.Role)}, map[string]string{"role": role})
	return nil
}

// GetDashboardStats returns dashboard counters
func (s *Service) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	return s.repo.GetDashboardStats(ctx)
}

// ListAuditLogs returns audit logs
func (s *Service) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]*AuditLog, int, error) {
	return s.repo.ListAuditLogs(ctx, filter)
}

// LogAction creates an audit log entry. A failed write is logged and does
// not fail the action that triggered it.
func (s *Service) LogAction(ctx context.Context, adminID uuid.UUID, action, entityType string, entityID uuid.UUID, reason string, oldValue, newValue interface{}) {
	entry := &AuditLog{
		ID:         uuid.New(),
		AdminID:    uuid.NullUUID{UUID: adminID, Valid: adminID != uuid.Nil},
		Action:     action,
		EntityType: entityType,
		EntityID:   uuid.NullUUID{UUID: entityID, Valid: entityID != uuid.Nil},
		OldValue:   marshalOrNil(oldValue),
		NewValue:   marshalOrNil(newValue),
		Reason:     sql.NullString{String: reason, Valid: reason != ""},
		CreatedAt:  time.Now(),
	}

	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to create audit log")
	}
}

func marshalOrNil(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
