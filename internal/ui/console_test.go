package ui_test

import (
	"bytes"
	"strings"
	"testing"

	"termbackup/internal/ui"
)

func TestStatusLineFormatsBadge(t *testing.T) {
	var buf bytes.Buffer
	console := ui.NewPlainConsole(&buf)

	console.StatusLine("Token", ui.OK, "valid")

	got := buf.String()
	if !strings.Contains(got, "Token:") {
		t.Fatalf("expected label in output, got %q", got)
	}
	if !strings.Contains(got, "[OK] valid") {
		t.Fatalf("expected badge in output, got %q", got)
	}
}

func TestHeaderIncludesRule(t *testing.T) {
	var buf bytes.Buffer
	console := ui.NewPlainConsole(&buf)

	console.Header("Backups")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and rule, got %d lines", len(lines))
	}
	if lines[0] != "== Backups ==" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if len(lines[1]) != len(lines[0]) {
		t.Fatalf("rule length %d does not match header length %d", len(lines[1]), len(lines[0]))
	}
}

func TestBytesFormatsBinaryUnits(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{-1, "0 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tc := range cases {
		if got := ui.Bytes(tc.in); got != tc.want {
			t.Fatalf("Bytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := ui.RenderTable(
		[]string{"ID", "SIZE"},
		[][]string{{"abc123"}},
		[]ui.Alignment{ui.AlignLeft, ui.AlignRight},
	)
	if !strings.Contains(out, "abc123") {
		t.Fatalf("expected row value in rendered table, got %q", out)
	}
	if !strings.Contains(out, "ID") || !strings.Contains(out, "SIZE") {
		t.Fatalf("expected headers in rendered table, got %q", out)
	}
}

func TestRenderTableEmptyHeaders(t *testing.T) {
	if out := ui.RenderTable(nil, nil, nil); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestConfirm(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"Y\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tc := range cases {
		var out bytes.Buffer
		got, err := ui.Confirm(strings.NewReader(tc.input), &out, "Delete backup?")
		if err != nil {
			t.Fatalf("Confirm(%q) returned error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("Confirm(%q) = %v, want %v", tc.input, got, tc.want)
		}
		if !strings.Contains(out.String(), "Delete backup?") {
			t.Fatalf("expected question in prompt output, got %q", out.String())
		}
	}
}
