package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hamed0406/uptimeworker/internal/repo"
)

// Store keeps records in a single SQLite table keyed by (collection, id).
type Store struct {
	db *sql.DB
}

// New opens the database file and runs migrations.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; sqlite serialises anyway
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	doc        BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) List(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM records WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) Read(ctx context.Context, collection, id string) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM records WHERE collection = ? AND id = ?`, collection, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, doc []byte) error {
	if err := repo.ValidKey(collection, id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records (collection, id, doc, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, doc, now())
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return expectOne(res, repo.ErrExists)
}

func (s *Store) Update(ctx context.Context, collection, id string, doc []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET doc = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		doc, now(), collection, id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return expectOne(res, repo.ErrNotFound)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return expectOne(res, repo.ErrNotFound)
}

func expectOne(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

var _ repo.RecordStore = (*Store)(nil)
