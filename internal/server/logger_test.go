package server

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/rybkr/logarc/internal/config"
)

// TestNew_LoggerDefaultsWhenNil verifies that New falls back to
// slog.Default() when Deps.Logger is left nil.
func TestNew_LoggerDefaultsWhenNil(t *testing.T) {
	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, nil))
	original := slog.Default()
	slog.SetDefault(custom)
	t.Cleanup(func() { slog.SetDefault(original) })

	cfgMgr, err := config.NewManager(config.Default())
	if err != nil {
		t.Fatalf("config.NewManager() error: %v", err)
	}
	s := New(Deps{Workspaces: newFakeWorkspaceService(), Config: cfgMgr}, "127.0.0.1:0", testWebFS())

	s.logger.Info("test-probe", "key", "value")
	if !strings.Contains(buf.String(), "test-probe") {
		t.Errorf("server logger did not inherit slog.Default(); buffer = %q", buf.String())
	}
}

// TestNew_LoggerOverridable verifies Deps.Logger is honored and that
// supplying one leaves the global default logger untouched.
func TestNew_LoggerOverridable(t *testing.T) {
	s, _ := newTestServer(t)

	if slog.Default() == s.logger {
		t.Error("supplying Deps.Logger must not mutate slog.Default()")
	}
}

// TestInitLogger_TextFormat verifies that a text handler produces
// non-JSON output, the format this engine uses by default.
func TestInitLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Info("hello", "key", "val")
	line := buf.String()
	if strings.HasPrefix(line, "{") {
		t.Errorf("text handler produced JSON output: %q", line)
	}
	if !strings.Contains(line, "hello") {
		t.Errorf("text handler output missing message: %q", line)
	}
}

// TestInitLogger_JSONFormat verifies that a JSON handler produces valid
// JSON output, the format this engine uses for production deployments.
func TestInitLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Info("hello", "key", "val")
	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") {
		t.Errorf("JSON handler output does not start with '{': %q", line)
	}
	if !strings.Contains(line, `"hello"`) {
		t.Errorf("JSON handler output missing message field: %q", line)
	}
}

// TestInitLogger_LevelFiltering verifies that debug messages are suppressed
// when the level is set to Info.
func TestInitLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Debug("should-be-suppressed")
	logger.Info("should-appear")

	out := buf.String()
	if strings.Contains(out, "should-be-suppressed") {
		t.Error("debug message appeared despite Info level filter")
	}
	if !strings.Contains(out, "should-appear") {
		t.Error("info message was suppressed unexpectedly")
	}
}
