package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		" DEBUG ": slog.LevelDebug,
		"trace":   LevelTrace,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelTrace, "text")
	l.Log(context.Background(), LevelTrace, "wire dump")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Fatalf("expected TRACE level name, got %q", buf.String())
	}
}

func TestWithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, slog.LevelInfo, "json")

	ctx := WithRequestID(context.Background(), "req-123")
	WithContext(ctx, base).Info("hello")

	if !strings.Contains(buf.String(), `"request_id":"req-123"`) {
		t.Fatalf("expected request_id in output, got %q", buf.String())
	}
	if RequestID(context.Background()) != "" {
		t.Fatalf("expected empty request id for bare context")
	}
}
