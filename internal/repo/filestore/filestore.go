package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hamed0406/uptimeworker/internal/repo"
)

const ext = ".json"

// Store keeps one JSON file per record at <baseDir>/<collection>/<id>.json.
type Store struct {
	baseDir string
}

// New creates baseDir if needed.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) path(collection, id string) string {
	return filepath.Join(s.baseDir, collection, id+ext)
}

func (s *Store) List(ctx context.Context, collection string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, collection))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ext))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Read(ctx context.Context, collection, id string) ([]byte, error) {
	if err := repo.ValidKey(collection, id); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(collection, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	return b, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, doc []byte) error {
	if err := repo.ValidKey(collection, id); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.baseDir, collection), 0o755); err != nil {
		return fmt.Errorf("ensure collection %s: %w", collection, err)
	}
	f, err := os.OpenFile(s.path(collection, id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return repo.ErrExists
	}
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	if _, err := f.Write(doc); err != nil {
		f.Close()
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	return f.Close()
}

// Update replaces an existing record through a temp file and rename, so a
// reader never sees a half-written document.
func (s *Store) Update(ctx context.Context, collection, id string, doc []byte) error {
	if err := repo.ValidKey(collection, id); err != nil {
		return err
	}
	final := s.path(collection, id)
	if _, err := os.Stat(final); errors.Is(err, os.ErrNotExist) {
		return repo.ErrNotFound
	}

	tmp := fmt.Sprintf("%s.%d.tmp", final, time.Now().UnixNano())
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return fmt.Errorf("write temp %s/%s: %w", collection, id, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := repo.ValidKey(collection, id); err != nil {
		return err
	}
	err := os.Remove(s.path(collection, id))
	if errors.Is(err, os.ErrNotExist) {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

var _ repo.RecordStore = (*Store)(nil)
