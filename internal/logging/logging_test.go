package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupText(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup := Setup(Options{Level: "warn"}, &buf)
	defer cleanup()

	logger.Info("hidden")
	logger.Warn("shown", "file", "data.xlsx")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "file=data.xlsx") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup := Setup(Options{Level: "debug", Format: "json"}, &buf)
	defer cleanup()

	logger.Debug("stage", "to", "validated")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "stage" || rec["to"] != "validated" {
		t.Errorf("record = %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	if !m.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be enabled by the first handler")
	}

	slog.New(m).With("request_id", "r1").Info("done")
	if !strings.Contains(a.String(), "request_id=r1") {
		t.Errorf("first handler missed the record: %q", a.String())
	}
	if b.Len() != 0 {
		t.Errorf("error-level handler got an info record: %q", b.String())
	}
}

func TestNop(t *testing.T) {
	Nop().Error("discarded")
}
