package notify

import (
	"context"
	"fmt"
	"net/http"
)

// discordMessage is the webhook request body. Discord answers 204 on success.
type discordMessage struct {
	Content string `json:"content"`
}

// DiscordSender delivers lifecycle alerts to a Discord channel webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender builds a sender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: senderTimeout},
	}
}

// Send posts the alert with the title bolded in Discord markdown.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	msg := discordMessage{Content: fmt.Sprintf("**%s**\n%s", title, message)}
	if err := postJSON(ctx, d.client, d.webhookURL, msg); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
