package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContextAddsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "json"))
	defer slog.SetDefault(prev)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = core.ContextWithTenant(ctx, "acme")
	ctx = core.ContextWithPrincipal(ctx, "ops@acme")

	WithFields(ctx, "kind", "orders").Info("commit started")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	for key, want := range map[string]string{
		"request_id": "req-1",
		"tenant":     "acme",
		"principal":  "ops@acme",
		"kind":       "orders",
		"msg":        "commit started",
	} {
		if got := line[key]; got != want {
			t.Errorf("%s = %v, want %q", key, got, want)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "text")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info line written at warn level: %s", buf.String())
	}
	log.Warn("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Errorf("warn line missing: %s", buf.String())
	}
}
