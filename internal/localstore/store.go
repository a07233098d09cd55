// Package localstore keeps the device's durable copy of the portfolio
// document in the device SQLite database.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/database"
	"github.com/aristath/hedgebook/internal/domain"
)

// DocumentKey is the row id of the portfolio document.
const DocumentKey = "portfolio"

const deviceIDKey = "device_id"

// Store is the local document cache.
type Store struct {
	db  *database.DB
	now func() time.Time
	log zerolog.Logger
}

// New creates a store over a migrated "device" database.
func New(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		now: time.Now,
		log: log.With().Str("component", "localstore").Logger(),
	}
}

// Load returns the cached document, or nil when nothing has been saved yet.
func (s *Store) Load(ctx context.Context) (*domain.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE id = ?", DocumentKey,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load local document: %w", err)
	}

	doc, err := domain.DecodeDocument([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode local document: %w", err)
	}
	return &doc, nil
}

// Save replaces the cached document.
func (s *Store) Save(ctx context.Context, doc domain.Document) error {
	body, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, revision, origin, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			revision = excluded.revision,
			origin = excluded.origin,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		DocumentKey, int64(doc.Revision), doc.Origin, string(body), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save local document: %w", err)
	}

	s.log.Debug().
		Uint64("revision", doc.Revision).
		Int("bytes", len(body)).
		Msg("Local document saved")
	return nil
}

// Clear removes the cached document.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", DocumentKey); err != nil {
		return fmt.Errorf("failed to clear local document: %w", err)
	}
	return nil
}

// DeviceID returns this device's stable identifier, creating it on first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM device_settings WHERE key = ?", deviceIDKey,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id = uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO device_settings (key, value) VALUES (?, ?)", deviceIDKey, id,
	); err != nil {
		return "", fmt.Errorf("failed to store device id: %w", err)
	}

	// another writer may have won the insert
	if err := s.db.QueryRowContext(ctx,
		"SELECT value FROM device_settings WHERE key = ?", deviceIDKey,
	).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	s.log.Info().Str("device_id", id).Msg("Generated device id")
	return id, nil
}
