package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"beacon/internal/constants"
	"beacon/internal/logger"
	"beacon/pkg/retry"
)

var severityEmoji = map[string]string{
	"error":   "🔴",
	"warning": "🟡",
	"info":    "🔵",
	"debug":   "⚪",
	"fatal":   "💥",
}

const severityEmojiDefault = "⚠️"

type chatMessage struct {
	Text string `json:"text"`
}

// ChatNotifier posts alert summaries to a Google Chat incoming webhook.
type ChatNotifier struct {
	webhookURL string
	client     *http.Client
	logger     logger.Logger
}

func NewChatNotifier(webhookURL string, log logger.Logger) *ChatNotifier {
	return &ChatNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: constants.DefaultHTTPTimeout},
		logger:     log,
	}
}

func (n *ChatNotifier) Notify(ctx context.Context, event *SentryEvent) error {
	if n.webhookURL == "" {
		n.logger.DebugwCtx(ctx, "Chat webhook URL not configured, skipping notification")
		return nil
	}

	body, err := json.Marshal(chatMessage{Text: formatAlert(event)})
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	// Transient webhook failures are retried; a 4xx means the message or URL
	// is wrong and retrying cannot help.
	return retry.Retry(ctx, retry.DefaultPolicy(), func() error {
		return n.post(ctx, body)
	})
}

func (n *ChatNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return retry.NewFatalError(fmt.Errorf("failed to build chat request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat notification failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.NewFatalError(fmt.Errorf("chat webhook returned status %d", resp.StatusCode))
	default:
		return fmt.Errorf("chat webhook returned status %d", resp.StatusCode)
	}
}

func formatAlert(event *SentryEvent) string {
	emoji, ok := severityEmoji[event.Level]
	if !ok {
		emoji = severityEmojiDefault
	}

	title := orNA(event.Title)
	webURL := orNA(event.WebURL)
	userID := "N/A"
	if event.User != nil && event.User.ID != "" {
		userID = event.User.ID
	}
	level := orUnknown(event.Level)
	platform := orUnknown(event.Platform)
	release := orUnknown(event.Release)
	project := "unknown"
	if event.Project != 0 {
		project = fmt.Sprintf("%d", event.Project)
	}

	return fmt.Sprintf(
		"%s *Sentry Alert*\n\n*Title:* %s\n*Level:* %s\n*Platform:* %s\n*Environment:* %s\n*Project:* %s\n*Release:* %s\n*User ID:* %s\n*URL:* %s",
		emoji, title, level, platform, event.Environment(), project, release, userID, webURL,
	)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
