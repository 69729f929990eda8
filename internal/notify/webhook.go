package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type WebhookFormat string

const (
	FormatDiscord WebhookFormat = "discord"
	FormatSlack   WebhookFormat = "slack"
)

// Webhook posts alerts to a chat webhook. With no URL configured it is
// disabled and every Send is a skip.
type Webhook struct {
	URL    string
	Format WebhookFormat
	Client *http.Client
}

func NewWebhook(url string, format WebhookFormat, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if format != FormatSlack {
		format = FormatDiscord
	}
	return &Webhook{
		URL:    strings.TrimSpace(url),
		Format: format,
		Client: &http.Client{Timeout: timeout},
	}
}

func (w *Webhook) Name() string { return "webhook" }

type discordPayload struct {
	Content string `json:"content"`
}

type slackPayload struct {
	Text string `json:"text"`
}

func (w *Webhook) payload(msg Message) any {
	if w.Format == FormatSlack {
		return slackPayload{Text: "*" + msg.Subject + "*\n" + msg.Body}
	}
	return discordPayload{Content: msg.Body}
}

func (w *Webhook) Send(ctx context.Context, msg Message) Result {
	if w == nil || w.URL == "" {
		return skipped("webhook", "no webhook url configured")
	}
	body, err := json.Marshal(w.payload(msg))
	if err != nil {
		return failed(w.Name(), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return failed(w.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return failed(w.Name(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode/100 != 2 {
		return failed(w.Name(), fmt.Errorf("webhook non-2xx: %s", resp.Status))
	}
	return delivered(w.Name())
}
