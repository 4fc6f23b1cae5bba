package repo_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hamed0406/uptimeworker/internal/repo"
	"github.com/hamed0406/uptimeworker/internal/repo/filestore"
	"github.com/hamed0406/uptimeworker/internal/repo/memory"
	pg "github.com/hamed0406/uptimeworker/internal/repo/postgres"
	"github.com/hamed0406/uptimeworker/internal/repo/sqlite"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.RecordStore = memory.New()
	var _ repo.RecordStore = (*filestore.Store)(nil)
	var _ repo.RecordStore = (*sqlite.Store)(nil)
	var _ repo.RecordStore = (*pg.Store)(nil)
}

func TestReadJSON_DecodeErrorWrapsKey(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_ = s.Create(ctx, "checks", "broken", []byte(`{not json`))

	var v map[string]any
	err := repo.ReadJSON(ctx, s, "checks", "broken", &v)
	if err == nil || !strings.Contains(err.Error(), "checks/broken") {
		t.Fatalf("want wrapped decode error, got %v", err)
	}
	if err := repo.ReadJSON(ctx, s, "checks", "nope", &v); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestValidKey(t *testing.T) {
	for _, bad := range [][2]string{{"checks", ""}, {"checks", ".."}, {"checks", "a/b"}, {"", "x"}, {"checks", `a\b`}} {
		if repo.ValidKey(bad[0], bad[1]) == nil {
			t.Fatalf("ValidKey(%q,%q) should fail", bad[0], bad[1])
		}
	}
	if err := repo.ValidKey("checks", "aaaaaaaaaaaaaaaaaaaa"); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
}
