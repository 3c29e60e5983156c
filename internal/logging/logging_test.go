package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

// captureLogger returns a redacting logger writing JSON into buf.
func captureLogger(buf *bytes.Buffer) *slog.Logger {
	base := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(&RedactingHandler{base: base})
}

func logged(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	return m
}

func TestRedactsSensitiveKeys(t *testing.T) {
	tests := []struct {
		key string
	}{
		{"authorization"},
		{"x-api-key"},
		{"api_key"},
		{"provider_token"},
		{"client_secret"},
		{"password"},
		{"prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			var buf bytes.Buffer
			logger := captureLogger(&buf)
			logger.Info("msg", slog.String(tt.key, "sk-live-supersecret"))

			m := logged(t, &buf)
			if m[tt.key] != "[REDACTED]" {
				t.Errorf("%s = %v, want [REDACTED]", tt.key, m[tt.key])
			}
		})
	}
}

func TestCredentialIDsStayLoggable(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf)
	logger.Info("msg",
		slog.String("key_id", "cred-123"),
		slog.String("credential_id", "cred-456"))

	m := logged(t, &buf)
	if m["key_id"] != "cred-123" || m["credential_id"] != "cred-456" {
		t.Errorf("opaque credential references were redacted: %v", m)
	}
}

func TestPlainAttrsPassThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf)
	logger.Info("msg", slog.String("model", "gpt-4o"), slog.Int("batch_index", 3))

	m := logged(t, &buf)
	if m["model"] != "gpt-4o" {
		t.Errorf("model = %v", m["model"])
	}
	if m["batch_index"].(float64) != 3 {
		t.Errorf("batch_index = %v", m["batch_index"])
	}
}

func TestWithAttrsRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf).With(slog.String("api_key", "sk-something-long"))
	logger.Info("msg")

	m := logged(t, &buf)
	if m["api_key"] != "[REDACTED]" {
		t.Errorf("api_key via WithAttrs = %v, want [REDACTED]", m["api_key"])
	}
}

func TestEnabledDelegates(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	h := &RedactingHandler{base: base}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}
