package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeworker/internal/repo"
)

var _ repo.RecordStore = (*Store)(nil)

// Schema is applied by New; exported so tests and ops scripts share it.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
  collection TEXT        NOT NULL,
  id         TEXT        NOT NULL,
  doc        JSONB       NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (collection, id)
);`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Info("postgres_store_ready")
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) List(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM records WHERE collection = $1 ORDER BY id`, collection)
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
	err := s.pool.QueryRow(ctx,
		`SELECT doc::text FROM records WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO records (collection, id, doc)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, string(doc))
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrExists
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, doc []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET doc = $3::jsonb, updated_at = now()
		  WHERE collection = $1 AND id = $2`,
		collection, id, string(doc))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM records WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
