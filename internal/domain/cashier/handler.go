package cashier

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/royalbingo/bingo-api/internal/middleware"
	"github.com/royalbingo/bingo-api/internal/pkg/response"
	"github.com/royalbingo/bingo-api/internal/pkg/validator"
)

// Handler handles cashier HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates cashier handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func listFilter(r *http.Request) ListFilter {
	f := ListFilter{Limit: 50}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
		f.Limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		f.Offset = o
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := Status(s)
		f.Status = &status
	}
	return f
}

// CreateDeposit handles POST /deposits
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req CreateDepositRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	d, err := h.service.CreateDeposit(r.Context(), DepositRequest{
		UserID: middleware.GetUserID(r.Context()),
		Name:   middleware.GetName(r.Context()),
		Amount: req.Amount,
		Method: req.PaymentMethod,
		Code:   req.ConfirmationCode,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, d)
}

// MyDeposits handles GET /deposits
func (h *Handler) MyDeposits(w http.ResponseWriter, r *http.Request) {
	f := listFilter(r)
	userID := middleware.GetUserID(r.Context())
	f.UserID = &userID

	out, err := h.service.ListDeposits(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []Deposit{}
	}
	response.OK(w, out)
}

// CreateWithdrawal handles POST /withdrawals
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req CreateWithdrawalRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	wd, err := h.service.RequestWithdrawal(r.Context(), WithdrawalRequest{
		UserID:  middleware.GetUserID(r.Context()),
		Name:    middleware.GetName(r.Context()),
		Amount:  req.Amount,
		Method:  req.PaymentMethod,
		Account: req.AccountNumber,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, wd)
}

// MyWithdrawals handles GET /withdrawals
func (h *Handler) MyWithdrawals(w http.ResponseWriter, r *http.Request) {
	f := listFilter(r)
	userID := middleware.GetUserID(r.Context())
	f.UserID = &userID

	out, err := h.service.ListWithdrawals(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []Withdrawal{}
	}
	response.OK(w, out)
}

// ListDeposits handles GET /admin/deposits
func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListDeposits(r.Context(), listFilter(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []Deposit{}
	}
	response.OK(w, out)
}

// RegisterPayment handles POST /admin/deposits/register
func (h *Handler) RegisterPayment(w http.ResponseWriter, r *http.Request) {
	var req RegisterPaymentRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	d, err := h.service.RegisterPayment(r.Context(), middleware.GetUserID(r.Context()), req.Amount, req.PaymentMethod, req.ConfirmationCode)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, d)
}

// ConfirmDeposit handles POST /admin/deposits/{id}/confirm
func (h *Handler) ConfirmDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	d, err := h.service.ConfirmDeposit(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, d)
}

// RejectDeposit handles POST /admin/deposits/{id}/reject
func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	req, ok := decodeResolve(w, r)
	if !ok {
		return
	}
	d, err := h.service.RejectDeposit(r.Context(), middleware.GetUserID(r.Context()), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, d)
}

// ListWithdrawals handles GET /admin/withdrawals
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListWithdrawals(r.Context(), listFilter(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []Withdrawal{}
	}
	response.OK(w, out)
}

// ApproveWithdrawal handles POST /admin/withdrawals/{id}/approve
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	wd, err := h.service.ApproveWithdrawal(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, wd)
}

// RejectWithdrawal handles POST /admin/withdrawals/{id}/reject
func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	req, ok := decodeResolve(w, r)
	if !ok {
		return
	}
	wd, err := h.service.RejectWithdrawal(r.Context(), middleware.GetUserID(r.Context()), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, wd)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid ID")
		return uuid.Nil, false
	}
	return id, true
}

// decodeResolve accepts an empty body
func decodeResolve(w http.ResponseWriter, r *http.Request) (ResolveRequest, bool) {
	var req ResolveRequest
	if r.ContentLength != 0 {
		if err := response.DecodeJSON(r.Body, &req); err != nil {
			response.BadRequest(w, "Invalid JSON body")
			return req, false
		}
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return req, false
	}
	return req, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBelowMinimum):
		response.Error(w, http.StatusUnprocessableEntity, "BELOW_MINIMUM", "Amount is below the minimum")
	case errors.Is(err, ErrInvalidCode):
		response.BadRequest(w, "Confirmation code must contain letters or digits")
	case errors.Is(err, ErrDuplicateCode):
		response.Error(w, http.StatusConflict, "DUPLICATE_CODE", "This transaction code was already used")
	case errors.Is(err, ErrAmountMismatch):
		response.Error(w, http.StatusConflict, "AMOUNT_MISMATCH", err.Error())
	case errors.Is(err, ErrNotPending):
		response.Conflict(w, "Request already resolved")
	case errors.Is(err, ErrInsufficientBalance):
		response.Error(w, http.StatusConflict, "INSUFFICIENT_BALANCE", "Insufficient withdrawable balance")
	case errors.Is(err, ErrDepositNotFound):
		response.NotFound(w, "Deposit not found")
	case errors.Is(err, ErrWithdrawalNotFound):
		response.NotFound(w, "Withdrawal not found")
	default:
		log.Error().Err(err).Msg("cashier request failed")
		response.InternalError(w)
	}
}

// DepositRoutes returns the player deposit router mounted at /api/v1/deposits
func (h *Handler) DepositRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.CreateDeposit)
	r.Get("/", h.MyDeposits)
	return r
}

// WithdrawalRoutes returns the player withdrawal router mounted at
// /api/v1/withdrawals
func (h *Handler) WithdrawalRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.CreateWithdrawal)
	r.Get("/", h.MyWithdrawals)
	return r
}

// DepositAdminRoutes returns the operator deposit router mounted at
// /api/admin/deposits
func (h *Handler) DepositAdminRoutes(authMiddleware, adminOnly func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware, adminOnly)
	r.Get("/", h.ListDeposits)
	r.Post("/register", h.RegisterPayment)
	r.Post("/{id}/confirm", h.ConfirmDeposit)
	r.Post("/{id}/reject", h.RejectDeposit)
	return r
}

// WithdrawalAdminRoutes returns the operator withdrawal router mounted at
// /api/admin/withdrawals
func (h *Handler) WithdrawalAdminRoutes(authMiddleware, adminOnly func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware, adminOnly)
	r.Get("/", h.ListWithdrawals)
	r.Post("/{id}/approve", h.ApproveWithdrawal)
	r.Post("/{id}/reject", h.RejectWithdrawal)
	return r
}
