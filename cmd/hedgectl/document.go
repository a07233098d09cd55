package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/config"
	"github.com/aristath/hedgebook/internal/database"
	"github.com/aristath/hedgebook/internal/domain"
	"github.com/aristath/hedgebook/internal/localstore"
	"github.com/aristath/hedgebook/internal/modules/portfolio"
	"github.com/aristath/hedgebook/pkg/logger"
)

func newLogger(w io.Writer) zerolog.Logger {
	return logger.New(logger.Config{Level: "warn", Pretty: true, Output: w})
}

// loadConfig returns the configured settings, or the defaults when no
// configuration is needed.
func loadConfig(opts *options) (*config.Config, error) {
	if opts.dataDir != "" || opts.file != "" {
		cfg := config.NewDefaultConfig()
		if opts.dataDir != "" {
			cfg.DataDir = opts.dataDir
		}
		return cfg, nil
	}
	return config.Load()
}

// loadDocument reads the document named by --file, or the local cache. An
// empty cache yields the built-in default document.
func loadDocument(ctx context.Context, opts *options, log zerolog.Logger) (domain.Document, error) {
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return domain.Document{}, fmt.Errorf("failed to read %s: %w", opts.file, err)
		}
		return domain.DecodeDocument(data)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return domain.Document{}, err
	}

	path := filepath.Join(cfg.DataDir, "device.db")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("No local cache, using the default document")
		return domain.DefaultDocument(), nil
	}

	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileLedger,
		Name:    "device",
	})
	if err != nil {
		return domain.Document{}, err
	}
	defer db.Close()

	doc, err := localstore.New(db, log).Load(ctx)
	if err != nil {
		return domain.Document{}, err
	}
	if doc == nil {
		return domain.DefaultDocument(), nil
	}
	return *doc, nil
}

// newState wraps a document in a portfolio state on the configured calendar.
func newState(doc domain.Document, opts *options) *portfolio.State {
	loc := time.UTC
	if cfg, err := loadConfig(opts); err == nil {
		loc = cfg.Location()
	}
	return portfolio.NewState(doc, portfolio.WithLocation(loc))
}

// writeDocument replaces the JSON file at path.
func writeDocument(path string, doc domain.Document) error {
	data, err := doc.Encode()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
