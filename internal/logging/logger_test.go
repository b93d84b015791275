package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/sumitkushwahji/time-traceability-backend/internal/config"
)

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}, "1.2.3", "ingestd")

	logger.Info("pass finished", "files", 3)
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	for k, want := range map[string]any{"msg": "pass finished", "app": "ingestd", "version": "1.2.3", "env": "prod"} {
		if rec[k] != want {
			t.Errorf("%s = %v, want %v", k, rec[k], want)
		}
	}
	if rec["files"] != float64(3) {
		t.Errorf("files = %v, want 3", rec["files"])
	}
}

func TestNew_DevUsesTextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}, "dev", "ingestd")

	logger.Debug("visible at debug")

	out := buf.String()
	if !strings.Contains(out, "visible at debug") {
		t.Errorf("output = %q, want message", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("output = %q, want non-JSON dev format", out)
	}
}
