// Package testutil provides shared test helpers for setting up record and media stores.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/capes/internal/media"
	"github.com/starford/capes/internal/records"
)

// MediaBaseURL is the public base URL used by TestMedia.
const MediaBaseURL = "http://localhost:5501/media"

// TestRecords creates a temporary SQLite record store that is automatically cleaned up.
func TestRecords(t *testing.T) *records.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "capes-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := records.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestMedia creates a temporary media directory with a filesystem media store.
func TestMedia(t *testing.T) (string, *media.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := media.NewFS(root, MediaBaseURL, "superheroes")
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}
