package wallet

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/middleware"
	"github.com/royalbingo/bingo-api/internal/pkg/response"
	"github.com/royalbingo/bingo-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

type adjustRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"money"`
	Direction string          `json:"direction" validate:"required,oneof=add subtract"`
	Reason    string          `json:"reason" validate:"max=255"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Balance handles GET /wallet/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, balance)
}

// Transactions handles GET /wallet/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := pagination(r)
	txs, err := h.svc.GetTransactionHistory(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, txs)
}

// Adjust handles POST /admin/wallets/{userId}/adjust
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	var req adjustRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	balance, err := h.svc.AdminAdjust(r.Context(), userID, req.Amount, Direction(req.Direction), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, balance)
}

// Search handles GET /admin/wallets/transactions
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := SearchFilters{}
	filters.Limit, filters.Offset = pagination(r)

	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "invalid user_id")
			return
		}
		filters.UserID = &id
	}
	if v := q.Get("game_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "invalid game_id")
			return
		}
		filters.GameID = &id
	}
	if v := q.Get("type"); v != "" {
		t := TransactionType(v)
		if !t.Valid() {
			response.BadRequest(w, "invalid type")
			return
		}
		filters.Type = &t
	}
	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(w, "from must be RFC3339")
			return
		}
		filters.DateFrom = &ts
	}
	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(w, "to must be RFC3339")
			return
		}
		filters.DateTo = &ts
	}

	txs, err := h.svc.SearchTransactions(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, txs)
}

// Reconcile handles GET /admin/wallets/{userId}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	rec, err := h.svc.Reconcile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, rec)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		response.BadRequest(w, "amount must be a positive value with at most two decimals")
	case errors.Is(err, ErrMissingReference):
		response.BadRequest(w, "reference_id is required")
	case errors.Is(err, ErrInvalidDirection):
		response.BadRequest(w, "direction must be add or subtract")
	case errors.Is(err, ErrWalletNotFound):
		response.NotFound(w, "wallet not found")
	case errors.Is(err, ErrInsufficientFunds):
		response.Error(w, http.StatusConflict, "INSUFFICIENT_BALANCE", "insufficient wallet balance")
	case errors.Is(err, ErrInsufficientForSubtraction):
		response.Error(w, http.StatusConflict, "INSUFFICIENT_BALANCE", "wallet balance is lower than the subtraction")
	case errors.Is(err, ErrReferenceConflict):
		response.Conflict(w, "reference_id already used with a different amount")
	default:
		response.InternalError(w)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	return r
}

func (h *Handler) AdminRoutes(authMiddleware, adminOnly func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminOnly)
	r.Get("/transactions", h.Search)
	r.Post("/{userId}/adjust", h.Adjust)
	r.Get("/{userId}/reconcile", h.Reconcile)
	return r
}
