package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS images (
	id         INTEGER PRIMARY KEY,
	path       TEXT NOT NULL UNIQUE,
	embedding  BLOB,
	dimension  INTEGER,
	updated_at TEXT
)`

// SQLiteStore keeps one row per image path with its raw embedding blob.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// AddImage records a path without an embedding. Known paths are left untouched.
func (s *SQLiteStore) AddImage(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO images(path) VALUES(?)`, path)
	if err != nil {
		return fmt.Errorf("add image: %w", err)
	}
	return nil
}

func (s *SQLiteStore) StoreEmbedding(ctx context.Context, id string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO images(path, embedding, dimension, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at`,
		id, EncodeVector(vec), len(vec), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadAllEmbeddings(ctx context.Context) ([]CachedEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, embedding FROM images WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var entries []CachedEntry
	for rows.Next() {
		var path string
		var blob []byte
		if err := rows.Scan(&path, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", path, err)
		}
		entries = append(entries, CachedEntry{ID: path, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	return entries, nil
}

// HasEmbedding reports whether path already has a stored embedding.
func (s *SQLiteStore) HasEmbedding(ctx context.Context, path string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE path = ? AND embedding IS NOT NULL`, path).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup embedding: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of known images and how many of them are embedded.
func (s *SQLiteStore) Count(ctx context.Context) (total, embedded int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(embedding) FROM images`,
	).Scan(&total, &embedded)
	if err != nil {
		return 0, 0, fmt.Errorf("count images: %w", err)
	}
	return total, embedded, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
