package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"rsi-divergence/internal/logger"
	"rsi-divergence/internal/model"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends signals via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client

	// Telegram allows about one message per second per chat.
	limiter *rate.Limiter
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPI,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Notify(ctx context.Context, ev model.SignalEvent) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "telegram: rate limit wait")
	}

	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       FormatHTML(ev),
		"parse_mode": "HTML",
	})

	url := strings.TrimRight(t.baseURL, "/") + "/bot" + t.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "telegram: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the URL carries the bot token; keep it out of the error
		return errors.New("telegram: send failed: " + redact(err.Error(), t.botToken))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	log.WithFields(logger.Fields(ctx)).Infof("[telegram] alert sent: %s", FormatTitle(ev))
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
