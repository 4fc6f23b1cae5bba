// Package repotest holds the behaviour every repo.RecordStore backend must share.
package repotest

import (
	"context"
	"errors"
	"testing"

	"github.com/hamed0406/uptimeworker/internal/domain"
	"github.com/hamed0406/uptimeworker/internal/repo"
)

// Run exercises s against the RecordStore contract. The store must start empty
// for the "checks" collection.
func Run(t *testing.T, s repo.RecordStore) {
	t.Helper()
	ctx := context.Background()

	ids, err := s.List(ctx, domain.CollectionChecks)
	if err != nil {
		t.Fatalf("List empty: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty collection, got %v", ids)
	}

	if _, err := s.Read(ctx, domain.CollectionChecks, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("Read missing: want ErrNotFound, got %v", err)
	}
	if err := s.Update(ctx, domain.CollectionChecks, "missing", []byte(`{}`)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("Update missing: want ErrNotFound, got %v", err)
	}

	chk := domain.Check{
		ID:             "aaaaaaaaaaaaaaaaaaaa",
		UserPhone:      "5511999999999",
		Protocol:       domain.ProtocolHTTP,
		URL:            "example.com/health",
		Method:         domain.MethodGet,
		SuccessCodes:   []int{200},
		TimeoutSeconds: 3,
	}
	if err := repo.CreateJSON(ctx, s, domain.CollectionChecks, chk.ID, chk); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.CreateJSON(ctx, s, domain.CollectionChecks, chk.ID, chk); !errors.Is(err, repo.ErrExists) {
		t.Fatalf("Create duplicate: want ErrExists, got %v", err)
	}

	chk.State = domain.StateUp
	chk.LastChecked = 1700000000000
	if err := repo.UpdateJSON(ctx, s, domain.CollectionChecks, chk.ID, chk); err != nil {
		t.Fatalf("Update: %v", err)
	}

	var got domain.Check
	if err := repo.ReadJSON(ctx, s, domain.CollectionChecks, chk.ID, &got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.State != domain.StateUp || got.LastChecked != chk.LastChecked || got.URL != chk.URL {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	ids, err = s.List(ctx, domain.CollectionChecks)
	if err != nil || len(ids) != 1 || ids[0] != chk.ID {
		t.Fatalf("List: ids=%v err=%v", ids, err)
	}
	if other, _ := s.List(ctx, domain.CollectionUsers); len(other) != 0 {
		t.Fatalf("collections leaked: %v", other)
	}

	if err := s.Delete(ctx, domain.CollectionChecks, chk.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, domain.CollectionChecks, chk.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("Delete twice: want ErrNotFound, got %v", err)
	}
}
