package hub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/database"
)

// ErrNotFound is returned when no device has written the shared document yet.
var ErrNotFound = errors.New("shared document not found")

// DefaultHistoryLimit is how many past documents the hub keeps.
const DefaultHistoryLimit = 50

// Record is the stored shared document.
type Record struct {
	Revision  uint64
	Origin    string
	Body      []byte
	UpdatedAt time.Time
}

// HistoryEntry describes one past write.
type HistoryEntry struct {
	Revision  uint64    `json:"revision"`
	Origin    string    `json:"origin"`
	SizeBytes int       `json:"size_bytes"`
	StoredAt  time.Time `json:"stored_at"`
}

// Store persists the shared document in the hub database.
type Store struct {
	db           *database.DB
	historyLimit int
	now          func() time.Time
	log          zerolog.Logger
}

// NewStore creates a store over a migrated "hub" database. A non-positive
// historyLimit takes DefaultHistoryLimit.
func NewStore(db *database.DB, historyLimit int, log zerolog.Logger) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Store{
		db:           db,
		historyLimit: historyLimit,
		now:          time.Now,
		log:          log.With().Str("component", "hub_store").Logger(),
	}
}

// Load returns the current document or ErrNotFound.
func (s *Store) Load(ctx context.Context) (*Record, error) {
	var (
		rec       Record
		revision  int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT revision, origin, body, updated_at FROM shared_document WHERE id = 1",
	).Scan(&revision, &rec.Origin, &rec.Body, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shared document: %w", err)
	}
	rec.Revision = uint64(revision)
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rec, nil
}

// Save replaces the shared document and appends it to the history, trimming
// the history to the configured limit.
func (s *Store) Save(ctx context.Context, revision uint64, origin string, body []byte) (*Record, error) {
	now := s.now().UTC()
	rec := &Record{
		Revision:  revision,
		Origin:    origin,
		Body:      body,
		UpdatedAt: time.Unix(now.Unix(), 0).UTC(),
	}

	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shared_document (id, revision, origin, body, updated_at)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				revision = excluded.revision,
				origin = excluded.origin,
				body = excluded.body,
				updated_at = excluded.updated_at`,
			int64(revision), origin, body, now.Unix(),
		); err != nil {
			return fmt.Errorf("failed to write shared document: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO document_history (revision, origin, body, stored_at) VALUES (?, ?, ?, ?)",
			int64(revision), origin, body, now.Unix(),
		); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM document_history WHERE rowid NOT IN (
				SELECT rowid FROM document_history ORDER BY rowid DESC LIMIT ?
			)`, s.historyLimit,
		); err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Uint64("revision", revision).
		Str("origin", origin).
		Int("bytes", len(body)).
		Msg("Shared document stored")
	return rec, nil
}

// History lists past writes, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT revision, origin, length(body), stored_at FROM document_history ORDER BY rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			e        HistoryEntry
			revision int64
			storedAt int64
		)
		if err := rows.Scan(&revision, &e.Origin, &e.SizeBytes, &storedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Revision = uint64(revision)
		e.StoredAt = time.Unix(storedAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
