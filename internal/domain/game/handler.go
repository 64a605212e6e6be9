package game

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/royalbingo/bingo-api/internal/middleware"
	"github.com/royalbingo/bingo-api/internal/pkg/response"
)

// LiveSource exposes the round currently held in memory.
type LiveSource interface {
	Live() LiveGame
}

type Handler struct {
	svc  *Service
	live LiveSource
}

func NewHandler(svc *Service, live LiveSource) *Handler {
	return &Handler{svc: svc, live: live}
}

// History handles GET /games/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := pagination(r)
	entries, err := h.svc.History(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, entries)
}

// Current handles GET /games/current
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		response.NotFound(w, "no game in progress")
		return
	}
	response.OK(w, h.live.Live())
}

// GetByID handles GET /games/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	gameID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid game id")
		return
	}

	details, err := h.svc.GetGame(r.Context(), gameID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, details)
}

// List handles GET /admin/games
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	games, err := h.svc.ListGames(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, games)
}

// Stats handles GET /admin/games/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, stats)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrGameNotFound):
		response.NotFound(w, "game not found")
	default:
		response.InternalError(w)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/current", h.Current)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/history", h.History)
		r.Get("/{id}", h.GetByID)
	})
	return r
}

func (h *Handler) AdminRoutes(authMiddleware, adminOnly func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminOnly)
	r.Get("/", h.List)
	r.Get("/stats", h.Stats)
	return r
}
