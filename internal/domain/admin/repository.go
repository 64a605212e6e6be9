package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines admin data access
type Repository interface {
	CreateAuditLog(ctx context.Context, log *AuditLog) error
	ListAuditLogs(ctx context.Context, filter AuditFilter) ([]*AuditLog, int, error)
	GetDashboardStats(ctx context.Context) (*DashboardStats, error)
}

// AuditFilter for filtering audit logs
type AuditFilter struct {
	AdminID    *uuid.UUID
	Action     *string
	EntityType *string
	EntityID   *uuid.UUID
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates admin repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// Audit logs

func (r *repository) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, admin_id, action, entity_type, entity_id, old_value, new_value, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.AdminID,
		log.Action,
		log.EntityType,
		log.EntityID,
		log.OldValue,
		log.NewValue,
		log.Reason,
		log.CreatedAt,
	)
	return err
}

func (r *repository) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]*AuditLog, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	add := func(clause string, v interface{}) {
		where += fmt.Sprintf(clause, argNum)
		args = append(args, v)
		argNum++
	}
	if filter.AdminID != nil {
		add(` AND admin_id = $%d`, *filter.AdminID)
	}
	if filter.Action != nil {
		add(` AND action = $%d`, *filter.Action)
	}
	if filter.EntityType != nil {
		add(` AND entity_type = $%d`, *filter.EntityType)
	}
	if filter.EntityID != nil {
		add(` AND entity_id = $%d`, *filter.EntityID)
	}
	if filter.FromDate != nil {
		add(` AND created_at >= $%d`, *filter.FromDate)
	}
	if filter.ToDate != nil {
		add(` AND created_at < $%d`, *filter.ToDate)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`+where, args...); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, admin_id, action, entity_type, entity_id, old_value, new_value, reason, created_at
		FROM audit_logs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, limit, offset)

	var logs []*AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// Analytics

func (r *repository) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}

	err := r.db.GetContext(ctx, &stats.Players, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE created_at >= CURRENT_DATE) AS new_today,
		       COUNT(*) FILTER (WHERE created_at >= CURRENT_DATE - INTERVAL '7 days') AS new_this_week,
		       COUNT(*) FILTER (WHERE is_banned) AS banned
		FROM users
	`)
	if err != nil {
		return nil, fmt.Errorf("player stats: %w", err)
	}

	err = r.db.GetContext(ctx, &stats.Money, `
		SELECT
			(SELECT COALESCE(SUM(game_balance), 0) FROM user_wallets) AS game_float,
			(SELECT COALESCE(SUM(withdrawable_balance), 0) FROM user_wallets) AS withdrawable_float,
			(SELECT COALESCE(SUM(amount), 0) FROM deposits WHERE status = 'confirmed') AS deposits_confirmed,
			(SELECT COALESCE(SUM(amount), 0) FROM withdrawals WHERE status = 'approved') AS withdrawals_paid,
			(SELECT COUNT(*) FROM deposits WHERE status = 'pending') AS pending_deposits,
			(SELECT COUNT(*) FROM withdrawals WHERE status = 'pending') AS pending_withdrawals
	`)
	if err != nil {
		return nil, fmt.Errorf("money stats: %w", err)
	}

	return stats, nil
}
