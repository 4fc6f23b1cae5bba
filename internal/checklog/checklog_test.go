package checklog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/uptimeworker/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAppend_CreatesDirAndAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", ".logs")
	s := New(dir, zap.NewNop())

	for _, line := range []string{"one", "two"} {
		if err := s.Append("abc", line); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := s.Read("abc")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "one\ntwo\n" {
		t.Fatalf("content = %q", got)
	}
}

func TestAppend_LogEntryRoundTrip(t *testing.T) {
	s := New(t.TempDir(), zap.NewNop())
	entry := domain.LogEntry{
		Check:   domain.Check{ID: strings.Repeat("a", 20), Protocol: domain.ProtocolHTTP, URL: "example.com"},
		Outcome: domain.ResponseOutcome(200),
		State:   domain.StateUp,
		Alert:   false,
		Time:    1700000000000,
	}
	b, _ := json.Marshal(entry)
	if err := s.Append(entry.Check.ID, string(b)); err != nil {
		t.Fatalf("append: %v", err)
	}

	content, _ := s.Read(entry.Check.ID)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"check", "outcome", "state", "alert", "time"} {
		if _, ok := fields[k]; !ok {
			t.Fatalf("missing field %q in %s", k, content)
		}
	}
	var back domain.LogEntry
	_ = json.Unmarshal([]byte(strings.TrimSpace(content)), &back)
	if back.State != domain.StateUp || *back.Outcome.ResponseCode != 200 || back.Time != entry.Time {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestCompressDecompress_ByteIdentical(t *testing.T) {
	s := New(t.TempDir(), zap.NewNop())
	var want strings.Builder
	for i := 0; i < 50; i++ {
		line := `{"state":"up","n":` + strings.Repeat("9", i%7+1) + `}`
		want.WriteString(line + "\n")
		_ = s.Append("c1", line)
	}

	if err := s.Compress("c1", "c1-1"); err != nil {
		t.Fatalf("compress: %v", err)
	}
	got, err := s.Decompress("c1-1")
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if got != want.String() {
		t.Fatalf("decompressed content differs")
	}
	if err := s.Compress("c1", "c1-1"); err == nil {
		t.Fatalf("compressing onto an existing archive should fail")
	}
}

func TestTruncate_MissingLogIsError(t *testing.T) {
	s := New(t.TempDir(), zap.NewNop())
	err := s.Truncate("does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	s := New(t.TempDir(), zap.NewNop())
	_ = s.Append("b", "x")
	_ = s.Append("a", "x")
	_ = s.Compress("a", "a-1")
	_ = os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644)

	live, _ := s.List(false)
	if strings.Join(live, ",") != "a,b" {
		t.Fatalf("live logs = %v", live)
	}
	all, _ := s.List(true)
	if strings.Join(all, ",") != "a,a-1,b" {
		t.Fatalf("all logs = %v", all)
	}
	if !s.IsCompressed("a-1") || s.IsCompressed("a") {
		t.Fatalf("IsCompressed wrong")
	}

	missing := New(filepath.Join(t.TempDir(), "nope"), nil)
	if names, err := missing.List(true); err != nil || len(names) != 0 {
		t.Fatalf("missing dir should list empty: %v %v", names, err)
	}
}

func TestRotate_ArchivesAndTruncates(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := New(t.TempDir(), zap.New(core))
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }

	_ = s.Append("full", "line1")
	_ = s.Append("full", "line2")
	_ = s.Append("empty", "x")
	_ = s.Truncate("empty")

	if err := s.Rotate(context.Background()); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	fi, err := os.Stat(filepath.Join(s.Dir(), "full.log"))
	if err != nil || fi.Size() != 0 {
		t.Fatalf("source log should be truncated: %v %v", fi, err)
	}
	got, err := s.Decompress("full-1700000000123")
	if err != nil || got != "line1\nline2\n" {
		t.Fatalf("archive content %q err %v", got, err)
	}
	if s.IsCompressed("empty-1700000000123") {
		t.Fatalf("empty log should not be archived")
	}
	if logs.FilterMessage("log_rotated").Len() != 1 {
		t.Fatalf("want one log_rotated event")
	}
}

func TestRotate_SkipsEmptyLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := New(t.TempDir(), zap.New(core))
	s.now = func() time.Time { return time.UnixMilli(7) }

	_ = s.Append("idle", "x")
	_ = s.Truncate("idle")

	for i := 0; i < 2; i++ {
		if err := s.Rotate(context.Background()); err != nil {
			t.Fatalf("rotate: %v", err)
		}
	}
	names, err := s.List(true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "idle" {
		t.Fatalf("empty log should stay alone without archives, got %v", names)
	}
	if logs.FilterMessage("log_rotated").Len() != 0 {
		t.Fatalf("no rotation should be logged for an empty log")
	}
}

func TestRotate_OneFailureDoesNotBlockOthers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := New(t.TempDir(), zap.New(core))
	s.now = func() time.Time { return time.UnixMilli(42) }

	_ = s.Append("a", "x")
	_ = s.Append("b", "y")
	// pre-existing archive makes the exclusive create for "a" fail
	_ = os.WriteFile(filepath.Join(s.Dir(), "a-42"+CompressedExt), []byte("taken"), 0o644)

	err := s.Rotate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "rotate a") {
		t.Fatalf("want combined error mentioning a, got %v", err)
	}
	if got, _ := s.Decompress("b-42"); got != "y\n" {
		t.Fatalf("b should still rotate, got %q", got)
	}
	if content, _ := s.Read("a"); content != "x\n" {
		t.Fatalf("failed log must not be truncated, got %q", content)
	}
	if logs.FilterMessage("rotation_failed").Len() != 1 {
		t.Fatalf("want one rotation_failed event")
	}
}

func TestRemove(t *testing.T) {
	s := New(t.TempDir(), zap.NewNop())
	_ = s.Append("gone", "x")
	if err := s.Remove("gone"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Read("gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("log should be gone: %v", err)
	}
	if err := s.Remove("gone"); err != nil {
		t.Fatalf("removing twice should be a no-op: %v", err)
	}
}

func TestInvalidNames(t *testing.T) {
	s := New(t.TempDir(), zap.NewNop())
	for _, name := range []string{"", "..", "a/b", `a\b`} {
		if err := s.Append(name, "x"); err == nil {
			t.Fatalf("name %q should be rejected", name)
		}
	}
}
