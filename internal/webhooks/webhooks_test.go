package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func capturePayload(t *testing.T, url string, details map[string]any) map[string]any {
	t.Helper()
	var captured []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Error(err)
		}
		captured = body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// The payload shape keys off the configured URL, but delivery goes to
	// the test server.
	payload := buildPayload(url, "backup_complete", "dotfiles", details)
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(server.URL, "application/json", strings.NewReader(string(data)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	var decoded map[string]any
	if err := json.Unmarshal(captured, &decoded); err != nil {
		t.Fatal(err)
	}
	return decoded
}

func TestSlackPayload(t *testing.T) {
	payload := capturePayload(t, "https://hooks.slack.com/services/T00/B00/xyz",
		map[string]any{"backup_id": "abc123"})
	blocks, ok := payload["blocks"].([]any)
	if !ok || len(blocks) != 1 {
		t.Fatalf("expected one slack block, got %v", payload)
	}
	section := blocks[0].(map[string]any)
	text := section["text"].(map[string]any)["text"].(string)
	if !strings.Contains(text, "*Backup Complete*") {
		t.Fatalf("title missing from slack text: %s", text)
	}
	if !strings.Contains(text, "Profile: `dotfiles`") || !strings.Contains(text, "backup_id: `abc123`") {
		t.Fatalf("details missing from slack text: %s", text)
	}
}

func TestDiscordPayload(t *testing.T) {
	payload := capturePayload(t, "https://discord.com/api/webhooks/123/token",
		map[string]any{"file_count": 7})
	embeds, ok := payload["embeds"].([]any)
	if !ok || len(embeds) != 1 {
		t.Fatalf("expected one discord embed, got %v", payload)
	}
	embed := embeds[0].(map[string]any)
	if embed["title"] != "Backup Complete" {
		t.Fatalf("embed title = %v", embed["title"])
	}
	if embed["description"] != "Profile: dotfiles" {
		t.Fatalf("embed description = %v", embed["description"])
	}
	fields := embed["fields"].([]any)
	if len(fields) != 1 {
		t.Fatalf("expected one field, got %d", len(fields))
	}
	field := fields[0].(map[string]any)
	if field["name"] != "file_count" || field["value"] != "7" {
		t.Fatalf("unexpected field: %v", field)
	}
}

func TestGenericPayload(t *testing.T) {
	payload := capturePayload(t, "https://example.com/hook",
		map[string]any{"backup_id": "abc123"})
	if payload["event"] != "backup_complete" || payload["profile"] != "dotfiles" {
		t.Fatalf("unexpected generic payload: %v", payload)
	}
	if payload["backup_id"] != "abc123" {
		t.Fatalf("details should be merged into the generic payload: %v", payload)
	}
}

func TestSendPostsToURL(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(nil)
	n.Send(context.Background(), server.URL, "backup_complete", "dotfiles", nil)

	if gotContentType != "application/json" {
		t.Fatalf("content type = %q", gotContentType)
	}
	var decoded map[string]any
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["event"] != "backup_complete" {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}

func TestSendSwallowsErrors(t *testing.T) {
	n := NewNotifier(nil)
	// Unreachable URL must not panic or return an error.
	n.Send(context.Background(), "http://127.0.0.1:1/hook", "backup_complete", "dotfiles", nil)
}

func TestEventTitle(t *testing.T) {
	cases := map[string]string{
		"backup_complete": "Backup Complete",
		"backup_failed":   "Backup Failed",
		"prune":           "Prune",
	}
	for event, want := range cases {
		if got := eventTitle(event); got != want {
			t.Errorf("eventTitle(%q) = %q, want %q", event, got, want)
		}
	}
}
