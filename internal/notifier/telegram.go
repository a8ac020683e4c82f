package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client
	MaxTries uint
	Backoff  time.Duration // first retry delay

	log *zap.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, log *zap.Logger) *TelegramNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  telegramAPI,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		MaxTries: 4,
		Backoff:  time.Second,
		log:      log.Named("telegram"),
	}
}

func (t *TelegramNotifier) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.BaseURL, t.BotToken, method)
}

// Send sends an HTML message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
		// Client errors will not improve on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string) error {
	b := backoff.NewExponentialBackOff()
	if t.Backoff > 0 {
		b.InitialInterval = t.Backoff
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, t.Send(ctx, text)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(t.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			t.log.Warn("telegram send failed, retrying", zap.Duration("wait", wait), zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Notify sends subject in bold followed by the escaped body.
func (t *TelegramNotifier) Notify(ctx context.Context, subject, body string) bool {
	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(subject), html.EscapeString(body))
	if err := t.SendWithRetry(ctx, text); err != nil {
		t.log.Error("telegram notification dropped", zap.String("subject", subject), zap.Error(err))
		return false
	}
	return true
}
