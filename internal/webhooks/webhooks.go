// Package webhooks posts backup event notifications. The payload shape is
// chosen from the URL: Slack block kit for hooks.slack.com, Discord embeds
// for discord.com webhook URLs, and a flat JSON object otherwise.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"termbackup/internal/logging"
)

const defaultTimeout = 10 * time.Second

// discordGreen is the embed accent color.
const discordGreen = 65280

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier delivers webhook notifications. Delivery failures are logged and
// never returned; a notification must not fail the backup it reports on.
type Notifier struct {
	client HTTPDoer
	logger *slog.Logger
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the HTTP client, primarily for tests.
func WithHTTPClient(client HTTPDoer) Option {
	return func(n *Notifier) { n.client = client }
}

// NewNotifier returns a Notifier logging delivery problems to logger.
func NewNotifier(logger *slog.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	n := &Notifier{
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send posts one event to the webhook URL.
func (n *Notifier) Send(ctx context.Context, webhookURL, event, profile string, details map[string]any) {
	payload, err := json.Marshal(buildPayload(webhookURL, event, profile, details))
	if err != nil {
		n.logger.Warn("webhook payload encoding failed", logging.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		n.logger.Warn("webhook request failed", logging.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook notification failed", logging.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		n.logger.Warn("webhook returned error status", logging.Int("status", resp.StatusCode))
	}
}

func buildPayload(url, event, profile string, details map[string]any) map[string]any {
	switch {
	case strings.Contains(url, "hooks.slack.com"):
		return slackPayload(event, profile, details)
	case strings.Contains(url, "discord.com/api/webhooks"):
		return discordPayload(event, profile, details)
	}

	payload := map[string]any{
		"event":   event,
		"profile": profile,
	}
	for key, value := range details {
		payload[key] = value
	}
	return payload
}

func slackPayload(event, profile string, details map[string]any) map[string]any {
	parts := []string{
		"*" + eventTitle(event) + "*",
		fmt.Sprintf("Profile: `%s`", profile),
	}
	for _, key := range sortedKeys(details) {
		parts = append(parts, fmt.Sprintf("%s: `%v`", key, details[key]))
	}
	return map[string]any{
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": strings.Join(parts, "\n")},
			},
		},
	}
}

func discordPayload(event, profile string, details map[string]any) map[string]any {
	fields := make([]map[string]any, 0, len(details))
	for _, key := range sortedKeys(details) {
		fields = append(fields, map[string]any{
			"name":   key,
			"value":  fmt.Sprintf("%v", details[key]),
			"inline": true,
		})
	}
	return map[string]any{
		"embeds": []map[string]any{
			{
				"title":       eventTitle(event),
				"description": "Profile: " + profile,
				"fields":      fields,
				"color":       discordGreen,
			},
		},
	}
}

// eventTitle turns an event name like backup_complete into "Backup Complete".
func eventTitle(event string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(event, "_", " "))
}

func sortedKeys(details map[string]any) []string {
	keys := make([]string, 0, len(details))
	for key := range details {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
