// Package notify posts duplicate digests to a Slack-compatible incoming
// webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/DreamCats/mailtriage/internal/dedupe"
)

// maxGroupBlocks caps how many groups get their own block; the rest are
// summarised in one line.
const maxGroupBlocks = 10

// ErrNotConfigured is returned when no webhook URL is set.
var ErrNotConfigured = errors.New("webhook url not configured")

// Webhook sends messages to one incoming webhook URL.
type Webhook struct {
	url     string
	channel string
	client  *http.Client
	logger  *log.Logger
	now     func() time.Time
}

// NewWebhook creates a webhook notifier. An empty url yields a notifier whose
// posts fail with ErrNotConfigured.
func NewWebhook(url, channel string, timeout time.Duration, logger *log.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Webhook{
		url:     url,
		channel: channel,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		now:     time.Now,
	}
}

type payload struct {
	Text    string  `json:"text"`
	Channel string  `json:"channel,omitempty"`
	Blocks  []block `json:"blocks,omitempty"`
}

type block struct {
	Type string     `json:"type"`
	Text *blockText `json:"text,omitempty"`
}

type blockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PostDigest sends one message describing groups. Nothing is sent when
// groups is empty.
func (w *Webhook) PostDigest(ctx context.Context, groups []dedupe.Group) error {
	if len(groups) == 0 {
		return nil
	}
	return w.post(ctx, buildDigest(groups, w.now()))
}

// PostText sends a plain message with a header.
func (w *Webhook) PostText(ctx context.Context, title, message string) error {
	return w.post(ctx, payload{
		Text: title + ": " + message,
		Blocks: []block{
			{Type: "header", Text: &blockText{Type: "plain_text", Text: title}},
			{Type: "section", Text: &blockText{Type: "mrkdwn", Text: message}},
		},
	})
}

func (w *Webhook) post(ctx context.Context, p payload) error {
	if w.url == "" {
		return ErrNotConfigured
	}
	p.Channel = w.channel

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook error (status %d): %s", resp.StatusCode, string(respBody))
	}

	w.logger.Info("posted webhook message", "bytes", len(body))
	return nil
}

func buildDigest(groups []dedupe.Group, now time.Time) payload {
	messages := 0
	for _, g := range groups {
		messages += g.Count()
	}
	summary := fmt.Sprintf("%d duplicate groups covering %d messages", len(groups), messages)

	blocks := []block{
		{Type: "header", Text: &blockText{Type: "plain_text", Text: "Duplicate digest - " + now.Format("2006-01-02 15:04")}},
		{Type: "section", Text: &blockText{Type: "mrkdwn", Text: "*" + summary + "*"}},
		{Type: "divider"},
	}

	for i, g := range groups {
		if i == maxGroupBlocks {
			blocks = append(blocks, block{Type: "section", Text: &blockText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("_and %d more groups_", len(groups)-maxGroupBlocks),
			}})
			break
		}
		blocks = append(blocks, block{Type: "section", Text: &blockText{Type: "mrkdwn", Text: groupLine(g.Map())}})
	}

	return payload{Text: summary, Blocks: blocks}
}

func groupLine(m map[string]any) string {
	subject, _ := m["subject"].(string)
	if subject == "" {
		subject = "(no subject)"
	}
	members, _ := m["member_ids"].([]string)
	scores, _ := m["scores"].([]float64)

	parts := make([]string, len(members))
	for i, id := range members {
		parts[i] = fmt.Sprintf("%s (%.2f)", id, scores[i])
	}
	return fmt.Sprintf("*%s* x%v\nprimary `%v`, duplicates: %s", subject, m["count"], m["primary_id"], strings.Join(parts, ", "))
}
