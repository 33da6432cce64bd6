// Package memory implements the layered memory engine: a
// fingerprint-addressed SQLite store, embedding-based ranking, and the
// prompt recall block cut to token budgets.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tessel-ai/tessel/pkg/models"
)

// ErrNotFound is returned when no item matches the given identity.
var ErrNotFound = errors.New("memory item not found")

// StoredItem pairs an item with its embedding as persisted.
type StoredItem struct {
	Item      models.MemoryItem
	Embedding []float32
}

// Store is the persistence port of the memory engine.
type Store interface {
	Upsert(ctx context.Context, item *models.MemoryItem, embedding []float32) error
	GetByID(ctx context.Context, id string) (*models.MemoryItem, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*models.MemoryItem, error)
	Delete(ctx context.Context, id string) error
	ListLayer(ctx context.Context, layer models.MemoryLayer) ([]StoredItem, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS memory_items (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL UNIQUE,
	layer       TEXT NOT NULL,
	type        TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	tags        TEXT NOT NULL DEFAULT '[]',
	refs        TEXT NOT NULL DEFAULT '[]',
	confidence  REAL NOT NULL,
	salience    REAL NOT NULL,
	ttl_days    INTEGER NOT NULL,
	embedding   TEXT NOT NULL DEFAULT '[]',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_items_layer ON memory_items(layer);
`

// SQLStore is the SQLite-backed store.
type SQLStore struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the memory database at path.
// Use ":memory:" for an ephemeral store.
func OpenStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	// modernc.org/sqlite serializes on a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate memory db: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// NewStoreWithDB wraps an existing database handle; tests use this
// with sqlmock.
func NewStoreWithDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Close() error { return s.db.Close() }

// Upsert writes an item keyed by fingerprint. An existing row keeps
// its id and created_at; everything else is replaced.
func (s *SQLStore) Upsert(ctx context.Context, item *models.MemoryItem, embedding []float32) error {
	tags, err := json.Marshal(item.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	refs, err := json.Marshal(item.References)
	if err != nil {
		return fmt.Errorf("encode references: %w", err)
	}
	emb, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_items
			(id, fingerprint, layer, type, title, content, tags, refs,
			 confidence, salience, ttl_days, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			layer = excluded.layer,
			type = excluded.type,
			title = excluded.title,
			content = excluded.content,
			tags = excluded.tags,
			refs = excluded.refs,
			confidence = excluded.confidence,
			salience = excluded.salience,
			ttl_days = excluded.ttl_days,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
		item.ID, item.Fingerprint, string(item.Layer), item.Type, item.Title,
		item.Content, string(tags), string(refs), item.Confidence, item.Salience,
		item.TTLDays, string(emb), item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert memory item: %w", err)
	}
	return nil
}

const selectColumns = `id, fingerprint, layer, type, title, content, tags, refs,
	confidence, salience, ttl_days, embedding, created_at, updated_at`

// GetByID returns a live item by id. Tombstoned rows read as absent.
func (s *SQLStore) GetByID(ctx context.Context, id string) (*models.MemoryItem, error) {
	return s.getOne(ctx, "id", id)
}

// GetByFingerprint returns a live item by fingerprint.
func (s *SQLStore) GetByFingerprint(ctx context.Context, fingerprint string) (*models.MemoryItem, error) {
	return s.getOne(ctx, "fingerprint", fingerprint)
}

func (s *SQLStore) getOne(ctx context.Context, column, value string) (*models.MemoryItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM memory_items WHERE `+column+` = ? AND ttl_days != 0`, value)
	stored, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read memory item: %w", err)
	}
	return &stored.Item, nil
}

// Delete removes an item by id.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete memory item: %w", err)
	}
	return nil
}

// ListLayer returns all live items in one layer with their embeddings.
func (s *SQLStore) ListLayer(ctx context.Context, layer models.MemoryLayer) ([]StoredItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM memory_items WHERE layer = ? AND ttl_days != 0 ORDER BY created_at DESC`,
		string(layer))
	if err != nil {
		return nil, fmt.Errorf("list memory layer: %w", err)
	}
	defer rows.Close()

	var out []StoredItem
	for rows.Next() {
		stored, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory item: %w", err)
		}
		out = append(out, *stored)
	}
	return out, rows.Err()
}

// SweepExpired deletes tombstones and items past their TTL.
func (s *SQLStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_items
		WHERE ttl_days = 0
		   OR (ttl_days > 0 AND julianday(?) - julianday(created_at) > ttl_days)`,
		now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("sweep memory: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*StoredItem, error) {
	var (
		stored    StoredItem
		layer     string
		tags      string
		refs      string
		embedding string
	)
	err := row.Scan(
		&stored.Item.ID, &stored.Item.Fingerprint, &layer, &stored.Item.Type,
		&stored.Item.Title, &stored.Item.Content, &tags, &refs,
		&stored.Item.Confidence, &stored.Item.Salience, &stored.Item.TTLDays,
		&embedding, &stored.Item.CreatedAt, &stored.Item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	stored.Item.Layer = models.MemoryLayer(layer)
	if err := json.Unmarshal([]byte(tags), &stored.Item.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(refs), &stored.Item.References); err != nil {
		return nil, fmt.Errorf("decode references: %w", err)
	}
	if err := json.Unmarshal([]byte(embedding), &stored.Embedding); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return &stored, nil
}
