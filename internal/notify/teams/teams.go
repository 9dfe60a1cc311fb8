// Package teams posts incident notifications to Microsoft Teams via
// incoming webhooks, rendered as Adaptive Cards.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/intake/internal/kb"
	"github.com/linnemanlabs/intake/internal/ticket"
)

const (
	maxDescriptionLen = 500
	maxSources        = 3
	httpTimeout       = 10 * time.Second
)

// Notification is everything the card renders for one created incident.
type Notification struct {
	Record   *ticket.Record
	Ticket   *ticket.Ticket
	Sources  []kb.Source
	Fallback bool
}

// Notifier sends incident cards to a Teams webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Teams notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// Send posts the notification to the configured Teams webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, note *Notification) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(note))
	if err != nil {
		return fmt.Errorf("teams: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("teams: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("teams: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("teams: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(note *Notification) map[string]any {
	return map[string]any{
		"type": "message",
		"attachments": []map[string]any{{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content": map[string]any{
				"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
				"type":    "AdaptiveCard",
				"version": "1.4",
				"body":    buildBody(note),
				"actions": buildActions(note),
			},
		}},
	}
}

func buildBody(note *Notification) []map[string]any {
	body := []map[string]any{
		titleBlock(note),
		factSet(note),
		descriptionBlock(note.Ticket),
	}
	if block := sourcesBlock(note.Sources); block != nil {
		body = append(body, block)
	}
	return body
}

func titleBlock(note *Notification) map[string]any {
	return map[string]any{
		"type":   "TextBlock",
		"size":   "Large",
		"weight": "Bolder",
		"color":  priorityColor(note.Ticket.Priority),
		"text":   fmt.Sprintf("New Incident: %s", note.Record.Number),
		"wrap":   true,
	}
}

func factSet(note *Notification) map[string]any {
	facts := []map[string]any{
		{"title": "Priority", "value": fmt.Sprintf("P%d", note.Ticket.Priority)},
		{"title": "Category", "value": note.Ticket.Category},
		{"title": "Urgency / Impact", "value": fmt.Sprintf("%d / %d", note.Ticket.Urgency, note.Ticket.Impact)},
		{"title": "Caller", "value": note.Ticket.CallerID},
	}
	if note.Fallback {
		facts = append(facts, map[string]any{"title": "Classification", "value": "degraded fallback"})
	}
	return map[string]any{
		"type":  "FactSet",
		"facts": facts,
	}
}

func descriptionBlock(t *ticket.Ticket) map[string]any {
	text := truncate(t.ShortDescription, maxDescriptionLen)
	if text == "" {
		text = "(no description)"
	}
	return map[string]any{
		"type": "TextBlock",
		"text": text,
		"wrap": true,
	}
}

// sourcesBlock lists up to three knowledge-base articles with scores.
func sourcesBlock(sources []kb.Source) map[string]any {
	if len(sources) == 0 {
		return nil
	}
	if len(sources) > maxSources {
		sources = sources[:maxSources]
	}
	text := "**Knowledge base:**"
	for _, s := range sources {
		if s.URL != "" {
			text += fmt.Sprintf("\n- [%s](%s) (%.2f)", s.Title, s.URL, s.Score)
		} else {
			text += fmt.Sprintf("\n- %s (%.2f)", s.Title, s.Score)
		}
	}
	return map[string]any{
		"type":     "TextBlock",
		"text":     text,
		"wrap":     true,
		"isSubtle": true,
	}
}

func buildActions(note *Notification) []map[string]any {
	if note.Record.URL == "" {
		return nil
	}
	return []map[string]any{{
		"type":  "Action.OpenUrl",
		"title": "Open in ServiceNow",
		"url":   note.Record.URL,
	}}
}

// priorityColor maps the incident priority to an Adaptive Card colour band.
func priorityColor(priority int) string {
	switch priority {
	case 1:
		return "Attention"
	case 2:
		return "Warning"
	case 3:
		return "Accent"
	default:
		return "Default"
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
