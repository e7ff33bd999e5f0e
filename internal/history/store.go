// Package history persists whole session records, most-recent-first,
// inside a bounded sqlite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	gocache "github.com/patrickmn/go-cache"
	_ "modernc.org/sqlite"

	"github.com/coverspark/coverspark/pkg/models"
)

var (
	// ErrCapacityExceeded is the soft write failure: the record did
	// not fit, nothing was lost, and later writes may succeed again.
	ErrCapacityExceeded = errors.New("history store capacity exceeded")
	ErrSessionNotFound  = errors.New("session not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    topic TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    card_count INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
`

const (
	cacheTTL     = 30 * time.Minute
	cacheCleanup = 10 * time.Minute
)

type Store struct {
	db       *sql.DB
	maxBytes int64
	// cache holds decoded *models.Session values keyed by id; payload
	// JSON with embedded images is expensive to re-parse on every
	// session switch.
	cache *gocache.Cache
}

func NewStore(dbPath string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:       db,
		maxBytes: maxBytes,
		cache:    gocache.New(cacheTTL, cacheCleanup),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert writes the full serialized session record. The write is
// rejected with ErrCapacityExceeded when it would push the store past
// its byte bound; callers keep their in-memory state and may retry via
// any later mutation.
func (s *Store) Upsert(ctx context.Context, sess *models.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	if s.maxBytes > 0 {
		var others int64
		err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM sessions WHERE id != ?`,
			sess.ID).Scan(&others)
		if err != nil {
			return fmt.Errorf("failed to measure store size: %w", err)
		}
		if others+int64(len(payload)) > s.maxBytes {
			return fmt.Errorf("%w: %s stored, record needs %s, limit %s",
				ErrCapacityExceeded,
				humanize.IBytes(uint64(others)),
				humanize.IBytes(uint64(len(payload))),
				humanize.IBytes(uint64(s.maxBytes)))
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, created_at, updated_at, card_count, payload)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   topic = excluded.topic,
		   updated_at = excluded.updated_at,
		   card_count = excluded.card_count,
		   payload = excluded.payload`,
		sess.ID, sess.Topic, sess.CreatedAt, time.Now(), len(sess.Cards), string(payload))
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	s.cache.Set(sess.ID, sess.Clone(), gocache.DefaultExpiration)
	return nil
}

// Get returns a decoded copy of the session record.
func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(*models.Session).Clone(), nil
	}

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM sessions WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}

	s.cache.Set(id, sess.Clone(), gocache.DefaultExpiration)
	return &sess, nil
}

// List returns session summaries, most recent first.
func (s *Store) List(ctx context.Context) ([]models.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, created_at, card_count
		 FROM sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []models.SessionSummary
	for rows.Next() {
		var sum models.SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Topic, &sum.CreatedAt, &sum.CardCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Delete removes a session record. Deleting an unknown id is not an
// error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.cache.Delete(id)
	return nil
}

// Size reports the total stored payload bytes.
func (s *Store) Size(ctx context.Context) (int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM sessions`).Scan(&size)
	return size, err
}
