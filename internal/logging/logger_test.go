package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"dentalcore/internal/config"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, config.LogConfig{Level: slog.LevelInfo, Format: "json"}).Info("patient registered", "patient_id", 7)
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["msg"] != "patient registered" || line["patient_id"] != float64(7) {
		t.Fatalf("unexpected record %v", line)
	}
}

func TestTextFormatHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LogConfig{Level: slog.LevelWarn, Format: "text"})
	logger.Info("hidden")
	logger.Warn("shown", "op", "delete_patient")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=shown op=delete_patient") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSetupInstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	Setup(&buf, config.LogConfig{Level: slog.LevelDebug, Format: "text"})
	slog.Debug("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Fatalf("default logger not replaced: %q", buf.String())
	}
}
