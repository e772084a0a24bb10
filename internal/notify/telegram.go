package notify

import (
	"context"
	"fmt"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts through the Telegram Bot API sendMessage method.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
}

// NewTelegramSender creates a TelegramSender for the bot token and chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{baseURL: telegramAPI, token: token, chatID: chatID}
}

// WithBaseURL points the sender at a different API root.
func (t *TelegramSender) WithBaseURL(u string) *TelegramSender {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

// Send posts the message with a bold Markdown title.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	}
	if err := postJSON(ctx, defaultClient, url, payload); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
