package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/royalbingo/bingo-api/internal/domain/user"
	"github.com/royalbingo/bingo-api/internal/middleware"
	"github.com/royalbingo/bingo-api/internal/pkg/response"
	"github.com/royalbingo/bingo-api/internal/pkg/validator"
)

// Handler handles admin HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates admin handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

// ListUsers handles GET /admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	users, err := h.service.ListUsers(r.Context(), user.ListFilter{
		Search:     r.URL.Query().Get("q"),
		BannedOnly: r.URL.Query().Get("banned") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		log.Error().Err(err).Msg("list users failed")
		response.InternalError(w)
		return
	}
	if users == nil {
		users = []user.User{}
	}
	response.OK(w, users)
}

// BanUser handles PATCH /admin/users/{id}/ban
func (h *Handler) BanUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	var req BanUserRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	adminID := middleware.GetUserID(r.Context())
	if err := h.service.SetBanned(r.Context(), adminID, userID, req.IsBanned, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"id": userID, "is_banned": req.IsBanned})
}

// SetRole handles PATCH /admin/users/{id}/role
func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	var req SetRoleRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	adminID := middleware.GetUserID(r.Context())
	if err := h.service.SetRole(r.Context(), adminID, userID, req.Role); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"id": userID, "role": req.Role})
}

// Dashboard handles GET /admin/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetDashboardStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("dashboard stats failed")
		response.InternalError(w)
		return
	}
	response.OK(w, stats)
}

// AuditLogs handles GET /admin/audit
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	filter := AuditFilter{Limit: limit, Offset: offset}
	if a := r.URL.Query().Get("action"); a != "" {
		filter.Action = &a
	}
	if et := r.URL.Query().Get("entity_type"); et != "" {
		filter.EntityType = &et
	}
	if id, err := uuid.Parse(r.URL.Query().Get("entity_id")); err == nil {
		filter.EntityID = &id
	}

	logs, total, err := h.service.ListAuditLogs(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("list audit logs failed")
		response.InternalError(w)
		return
	}
	if logs == nil {
		logs = []*AuditLog{}
	}
	response.Page(w, logs, total, limit, offset)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, user.ErrInvalidRole):
		response.BadRequest(w, "Invalid role")
	case errors.Is(err, ErrCannotManageSelf):
		response.Forbidden(w, err.Error())
	default:
		log.Error().Err(err).Msg("admin action failed")
		response.InternalError(w)
	}
}

// Routes returns the operator router mounted at /api/admin. Every route
// requires an admin token.
func (h *Handler) Routes(authMiddleware, adminOnly func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware, adminOnly)
	r.Get("/dashboard", h.Dashboard)
	r.Get("/audit", h.AuditLogs)
	return r
}

// UserRoutes returns the moderation router mounted at /api/admin/users
func (h *Handler) UserRoutes(authMiddleware, adminOnly func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware, adminOnly)
	r.Get("/", h.ListUsers)
	r.Patch("/{id}/ban", h.BanUser)
	r.Patch("/{id}/role", h.SetRole)
	return r
}
