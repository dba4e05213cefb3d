// Package testutil provides shared test helpers for setting up record
// directories and databases.
package testutil

import (
	"os"
	"strconv"
	"testing"

	"github.com/starford/decisionrecords/internal/index"
	"github.com/starford/decisionrecords/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "decisionrecords-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRecords creates a temporary record directory with a storage.Provider.
func TestRecords(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteRecords writes name → content pairs into store.
func WriteRecords(t *testing.T, store storage.Provider, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := store.Write(name, []byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

// Record renders a minimal markdown record with the given status block lines.
func Record(id int, title string, status ...string) string {
	s := "# " + strconv.Itoa(id) + ". " + title + "\n\nDate: 2026-10-14\n\n## Status\n\n"
	for _, line := range status {
		s += line + "\n\n"
	}
	return s + "## Context\n\nContext.\n"
}
