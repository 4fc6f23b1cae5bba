package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger_CreatesDirAndWritesJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	log, err := NewLogger(dir, "debug")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("log dir missing: %v", err)
	}

	log.Info("test_message_from_logging_test")
	_ = log.Sync()

	b, err := os.ReadFile(filepath.Join(dir, "uptime.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"test_message_from_logging_test"`) {
		t.Fatalf("log line missing: %s", b)
	}
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	log, err := NewLogger(t.TempDir(), "loud")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer func() { _ = log.Sync() }()
	if log.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("debug should be disabled at info level")
	}
}
