// Package checklog keeps one append-only log per check and rotates it into
// base64 encoded gzip archives.
package checklog

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	LogExt        = ".log"
	CompressedExt = ".gz.b64"
)

var ErrNotFound = errors.New("log not found")

type Store struct {
	dir string
	log *zap.Logger
	now func() time.Time
}

func New(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log, now: time.Now}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name, ext string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid log name %q", name)
	}
	return filepath.Join(s.dir, name+ext), nil
}

// Append writes line plus a newline to <name>.log, creating the directory
// and file when needed.
func (s *Store) Append(name, line string) error {
	p, err := s.path(name, LogExt)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log %s: %w", name, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append log %s: %w", name, err)
	}
	return f.Close()
}

// List returns log names without extensions. Compressed archives are
// included only when asked for.
func (s *Store) List(includeCompressed bool) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, LogExt):
			out = append(out, strings.TrimSuffix(name, LogExt))
		case includeCompressed && strings.HasSuffix(name, CompressedExt):
			out = append(out, strings.TrimSuffix(name, CompressedExt))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Read returns the raw content of <name>.log.
func (s *Store) Read(name string) (string, error) {
	p, err := s.path(name, LogExt)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return string(b), err
}

// IsCompressed reports whether name refers to an archive rather than a live log.
func (s *Store) IsCompressed(name string) bool {
	p, err := s.path(name, CompressedExt)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Compress writes the content of <logID>.log to a new <newID>.gz.b64 archive.
// It fails if the archive already exists.
func (s *Store) Compress(logID, newID string) error {
	src, err := s.path(logID, LogExt)
	if err != nil {
		return err
	}
	dst, err := s.path(newID, CompressedExt)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, logID)
	}
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", newID, err)
	}
	if _, err := f.WriteString(base64.StdEncoding.EncodeToString(buf.Bytes())); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Decompress reads back <fileID>.gz.b64 as text.
func (s *Store) Decompress(fileID string) (string, error) {
	p, err := s.path(fileID, CompressedExt)
	if err != nil {
		return "", err
	}
	enc, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	if err != nil {
		return "", err
	}
	gz, err := base64.StdEncoding.DecodeString(string(enc))
	if err != nil {
		return "", fmt.Errorf("decode archive %s: %w", fileID, err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(gz))
	if err != nil {
		return "", fmt.Errorf("open archive %s: %w", fileID, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("inflate archive %s: %w", fileID, err)
	}
	return string(out), nil
}

// Truncate empties <logID>.log. A missing log is an error.
func (s *Store) Truncate(logID string) error {
	p, err := s.path(logID, LogExt)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_WRONLY, 0)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, logID)
	}
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Remove deletes the live log of a deleted check. Archives are kept.
func (s *Store) Remove(logID string) error {
	p, err := s.path(logID, LogExt)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Rotate archives every live log as <id>-<unixMillis> and then truncates it.
// One log failing does not stop the others; all failures are returned.
func (s *Store) Rotate(ctx context.Context) error {
	names, err := s.List(false)
	if err != nil {
		s.log.Error("rotation_list_failed", zap.Error(err))
		return err
	}
	var errs error
	for _, name := range names {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if err := s.rotateOne(name); err != nil {
			s.log.Error("rotation_failed", zap.String("log", name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("rotate %s: %w", name, err))
		}
	}
	return errs
}

func (s *Store) rotateOne(name string) error {
	p, err := s.path(name, LogExt)
	if err != nil {
		return err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return nil
	}
	archive := name + "-" + strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.Compress(name, archive); err != nil {
		return err
	}
	if err := s.Truncate(name); err != nil {
		return err
	}
	s.log.Info("log_rotated", zap.String("log", name), zap.String("archive", archive))
	return nil
}
