package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"
	"github.com/TimoDeg/margin-hunter/internal/models"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram fans plain-text messages out to a fixed list of chat IDs via the
// Bot API. Per-chat failures are logged and never surface to the caller.
type Telegram struct {
	log     *slog.Logger
	token   string
	chatIDs []int64
	client  *http.Client

	// APIBase defaults to the public Bot API endpoint.
	APIBase string
}

func NewTelegram(log *slog.Logger, token string, chatIDs []int64, timeout time.Duration) *Telegram {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Telegram{
		log:     log,
		token:   token,
		chatIDs: chatIDs,
		client:  &http.Client{Timeout: timeout},
		APIBase: defaultAPIBase,
	}
}

// Configured reports whether a token and at least one destination are set.
func (t *Telegram) Configured() bool {
	return t.token != "" && len(t.chatIDs) > 0
}

// Broadcast delivers message to every configured chat and returns how many
// deliveries succeeded.
func (t *Telegram) Broadcast(ctx context.Context, message string) int {
	const op = "notifier.Broadcast"

	delivered := 0

	for _, chatID := range t.chatIDs {
		if err := t.sendMessage(ctx, chatID, message); err != nil {
			t.log.Error("telegram delivery failed",
				slog.String("op", op),
				slog.Int64("chat_id", chatID),
				sl.Err(err),
			)
			continue
		}
		delivered++
	}

	return delivered
}

// HandleEvent is the queue consumer entry point. Malformed events are logged
// and dropped rather than requeued; delivery failures are already handled per
// destination, so it always acks.
func (t *Telegram) HandleEvent(ctx context.Context, body []byte) error {
	const op = "notifier.HandleEvent"

	var event models.NotificationEvent

	if err := json.Unmarshal(body, &event); err != nil {
		t.log.Warn("dropping malformed notification event", slog.String("op", op), sl.Err(err))
		return nil
	}

	delivered := t.Broadcast(ctx, event.Message)

	t.log.Info("notification event processed",
		slog.String("op", op),
		slog.String("type", event.Type),
		slog.Int("delivered", delivered),
	)

	return nil
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.APIBase, t.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if !result.OK {
		return fmt.Errorf("telegram api: status %d: %s", resp.StatusCode, result.Description)
	}

	return nil
}
