package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/royalbingo/bingo-api/internal/domain/bingo"
	"github.com/royalbingo/bingo-api/internal/domain/engine"
	"github.com/royalbingo/bingo-api/internal/domain/wallet"
	"github.com/royalbingo/bingo-api/internal/middleware"
	"github.com/royalbingo/bingo-api/internal/pkg/response"
)

// WebSocket constants
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	intentTimeout  = 15 * time.Second
)

// Game is what a player session can ask of the engine.
type Game interface {
	Deck() *bingo.Deck
	Join(connID, userID uuid.UUID, name string)
	Leave(connID uuid.UUID)
	SelectCard(ctx context.Context, connID uuid.UUID, cardID int) (*wallet.Balance, error)
	ConfirmCard(ctx context.Context, connID uuid.UUID, cardID int) error
	ClaimBingo(ctx context.Context, connID uuid.UUID, cardID int) error
	Balance(ctx context.Context, connID uuid.UUID) (*wallet.Balance, error)
}

// Inbound intent types
const (
	IntentSelectCard  = "selectCard"
	IntentConfirmCard = "confirmCard"
	IntentClaimBingo  = "claimBingo"
	IntentGetBalance  = "getBalance"
)

// Error codes sent in error events
const (
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeCardTaken           = "CARD_TAKEN"
	CodeGameStarted         = "GAME_STARTED"
	CodeNotParticipant      = "NOT_PARTICIPANT"
	CodeInvalidClaim        = "INVALID_CLAIM"
	CodeInvalidCard         = "INVALID_CARD"
	CodeInvalidMessage      = "INVALID_MESSAGE"
	CodeInternal            = "INTERNAL"
)

type intent struct {
	Type   string `json:"type"`
	CardID int    `json:"card_id"`
}

// Handler serves the player WebSocket and the card catalogue.
type Handler struct {
	game        Game
	hub         *Hub
	rateLimiter *RateLimiter
	upgrader    websocket.Upgrader
}

// NewHandler creates session handler
func NewHandler(game Game, hub *Hub, rateLimiter *RateLimiter, allowedOrigins []string) *Handler {
	return &Handler{
		game:        game,
		hub:         hub,
		rateLimiter: rateLimiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")

				// Allow all in development
				if len(allowedOrigins) == 0 {
					return true
				}

				for _, allowed := range allowedOrigins {
					if allowed == "*" || origin == allowed {
						return true
					}
				}

				log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
				return false
			},
		},
	}
}

// WebSocket handles WS /ws
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := newConnection(userID, middleware.GetName(r.Context()), conn)
	h.hub.Register(client)
	h.game.Join(client.ID, client.UserID, client.Name)

	go h.wsReader(client)
	go h.wsWriter(client)
}

func (h *Handler) wsReader(client *Connection) {
	defer func() {
		h.game.Leave(client.ID)
		h.hub.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", client.UserID.String()).Msg("WebSocket read error")
			}
			break
		}

		ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
		if !h.rateLimiter.Allow(ctx, client.UserID) {
			cancel()
			continue
		}
		h.handle(ctx, client, message)
		cancel()
	}
}

func (h *Handler) wsWriter(client *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle runs one inbound intent. Replies go only to the sender.
func (h *Handler) handle(ctx context.Context, client *Connection, raw []byte) {
	var in intent
	if err := json.Unmarshal(raw, &in); err != nil {
		h.replyError(client, CodeInvalidMessage, "message must be JSON with a type")
		return
	}

	switch in.Type {
	case IntentSelectCard:
		balance, err := h.game.SelectCard(ctx, client.ID, in.CardID)
		if err != nil {
			h.replyErr(client, err)
			return
		}
		h.hub.Send(client.ID, engine.Event{Type: engine.EventBalanceUpdate, Data: balance})

	case IntentConfirmCard:
		if err := h.game.ConfirmCard(ctx, client.ID, in.CardID); err != nil {
			h.replyErr(client, err)
		}

	case IntentClaimBingo:
		err := h.game.ClaimBingo(ctx, client.ID, in.CardID)
		if err == nil {
			return
		}
		if reason, ok := rejectionReason(err); ok {
			h.hub.Send(client.ID, engine.Event{Type: engine.EventBingoRejected, Data: engine.BingoRejectedData{
				CardID: in.CardID,
				Reason: reason,
			}})
			return
		}
		h.replyErr(client, err)

	case IntentGetBalance:
		balance, err := h.game.Balance(ctx, client.ID)
		if err != nil {
			h.replyErr(client, err)
			return
		}
		h.hub.Send(client.ID, engine.Event{Type: engine.EventBalanceUpdate, Data: balance})

	default:
		h.replyError(client, CodeInvalidMessage, "unknown message type")
	}
}

func rejectionReason(err error) (string, bool) {
	switch {
	case errors.Is(err, engine.ErrInvalidClaim):
		return CodeInvalidClaim, true
	case errors.Is(err, engine.ErrNotConfirmedParticipant):
		return CodeNotParticipant, true
	case errors.Is(err, engine.ErrGameNotInExpectedPhase):
		return CodeGameStarted, true
	}
	return "", false
}

func (h *Handler) replyErr(client *Connection, err error) {
	code, msg := errorCode(err)
	if code == CodeInternal {
		log.Error().Err(err).Str("user_id", client.UserID.String()).Msg("player intent failed")
	}
	h.replyError(client, code, msg)
}

func (h *Handler) replyError(client *Connection, code, msg string) {
	h.hub.Send(client.ID, engine.Event{Type: engine.EventError, Data: engine.ErrorData{Code: code, Message: msg}})
}

func errorCode(err error) (code, msg string) {
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return CodeInsufficientBalance, "insufficient balance for the stake"
	case errors.Is(err, engine.ErrCardAlreadyTaken):
		return CodeCardTaken, "card already taken"
	case errors.Is(err, engine.ErrGameNotInExpectedPhase):
		return CodeGameStarted, "game is not accepting this action now"
	case errors.Is(err, engine.ErrNotConfirmedParticipant),
		errors.Is(err, engine.ErrAlreadyConfirmed),
		errors.Is(err, engine.ErrConfirmInProgress):
		return CodeNotParticipant, err.Error()
	case errors.Is(err, engine.ErrInvalidClaim):
		return CodeInvalidClaim, "no winning pattern on this card"
	case errors.Is(err, engine.ErrInvalidCard):
		return CodeInvalidCard, "card does not exist"
	}
	return CodeInternal, "something went wrong, try again"
}

// ListCards handles GET /cards
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.game.Deck().Cards())
}

// GetCard handles GET /cards/{id}
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid card id")
		return
	}
	card, ok := h.game.Deck().Card(id)
	if !ok {
		response.NotFound(w, "card not found")
		return
	}
	response.OK(w, card)
}

// CardRoutes returns the public card catalogue router
func (h *Handler) CardRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListCards)
	r.Get("/{id}", h.GetCard)
	return r
}

// WSRoute wraps WebSocket with auth. Browsers cannot set headers on the
// upgrade request, so the token comes in ?token=.
func (h *Handler) WSRoute(authMiddleware func(http.Handler) http.Handler) http.HandlerFunc {
	protected := authMiddleware(http.HandlerFunc(h.WebSocket))
	return func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("token"); token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		protected.ServeHTTP(w, r)
	}
}
