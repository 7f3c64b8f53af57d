package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender delivers alerts via the Telegram Bot API.
type TelegramSender struct {
	api    string
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender builds a sender for the given bot token and chat ID
// with a 10-second HTTP timeout.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		api:    telegramAPI,
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send posts to the sendMessage endpoint with the title rendered bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.api, t.token)

	body, err := json.Marshal(telegramMessage{
		ChatID:                t.chatID,
		Text:                  fmt.Sprintf("*%s*\n%s", title, message),
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func (t *TelegramSender) Name() string {
	return "telegram"
}
