// Package testing provides test helpers shared across hedgebook packages.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/hedgebook/internal/database"
)

// NewTestDB creates a temporary file-backed SQLite database with its schema applied.
// The database is closed when the test ends.
//
// Supported schema names: "device", "cache", "hub". Unknown names get an empty database.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	profile := database.ProfileStandard
	switch name {
	case "cache":
		profile = database.ProfileCache
	case "hub":
		profile = database.ProfileLedger
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})
	return db
}
