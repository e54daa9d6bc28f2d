// Package testutil provides helpers shared across test packages.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/royletron/scimit/internal/repository"
)

// NewRepository opens a migrated SQLite store in t.TempDir() and registers
// cleanup. Each call gets its own database file.
func NewRepository(t *testing.T) *repository.Repository {
	t.Helper()

	repo, err := repository.New(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(repo.Close)

	return repo
}
