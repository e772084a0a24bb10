package notify

import (
	"context"
	"fmt"
)

// DiscordSender posts to a Discord webhook.
type DiscordSender struct {
	webhookURL string
}

// NewDiscordSender creates a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL}
}

// Send posts the message with a bold title. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	payload := map[string]string{
		"content":  fmt.Sprintf("**%s**\n%s", title, message),
		"username": "marketd",
	}
	if err := postJSON(ctx, defaultClient, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
