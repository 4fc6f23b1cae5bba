package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a (collection, id) key has no record.
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned by Create when the key is already taken.
	ErrExists = errors.New("record already exists")
)

// RecordStore persists JSON documents under a (collection, id) key. Backends
// give no transactional guarantees across keys.
type RecordStore interface {
	List(ctx context.Context, collection string) ([]string, error)
	Read(ctx context.Context, collection, id string) ([]byte, error)
	Create(ctx context.Context, collection, id string, doc []byte) error
	Update(ctx context.Context, collection, id string, doc []byte) error
	Delete(ctx context.Context, collection, id string) error
}

// ReadJSON reads a record and decodes it into v.
func ReadJSON(ctx context.Context, s RecordStore, collection, id string, v any) error {
	doc, err := s.Read(ctx, collection, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func CreateJSON(ctx context.Context, s RecordStore, collection, id string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return s.Create(ctx, collection, id, doc)
}

func UpdateJSON(ctx context.Context, s RecordStore, collection, id string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return s.Update(ctx, collection, id, doc)
}

// ValidKey rejects ids that could escape a collection when used as a path.
func ValidKey(collection, id string) error {
	for _, s := range []string{collection, id} {
		if s == "" || s == "." || s == ".." {
			return fmt.Errorf("invalid key %q/%q", collection, id)
		}
		for _, r := range s {
			if r == '/' || r == '\\' || r == 0 {
				return fmt.Errorf("invalid key %q/%q", collection, id)
			}
		}
	}
	return nil
}
