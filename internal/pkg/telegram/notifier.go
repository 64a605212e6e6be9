package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/royalbingo/bingo-api/internal/pkg/retry"
)

const defaultAPIBase = "https://api.telegram.org"

var errBotAPI = errors.New("telegram bot api unavailable")

// Notifier posts operator messages to an admin chat.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// BotNotifier sends messages through the Bot API sendMessage method.
type BotNotifier struct {
	client  *http.Client
	baseURL string
	token   string
	chatID  int64
	policy  retry.Policy
}

func NewBotNotifier(token string, chatID int64) *BotNotifier {
	return &BotNotifier{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultAPIBase,
		token:   token,
		chatID:  chatID,
		policy:  retry.Default(5*time.Second, func(err error) bool { return errors.Is(err, errBotAPI) }),
	}
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (n *BotNotifier) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: n.chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return err
	}

	return retry.Exec(ctx, n.policy, "telegram notify", func(ctx context.Context) error {
		url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", errBotAPI, err)
		}
		defer resp.Body.Close()

		var out apiResponse
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", errBotAPI, resp.StatusCode)
		}
		if !out.OK {
			return fmt.Errorf("telegram sendMessage: %s", out.Description)
		}
		return nil
	})
}

// NopNotifier logs instead of sending. Used when no bot is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(_ context.Context, text string) error {
	log.Debug().Str("text", text).Msg("admin notification skipped, no bot configured")
	return nil
}
