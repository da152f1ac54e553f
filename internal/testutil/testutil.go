// Package testutil provides shared test helpers for setting up vaults
// and record stores.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/raido/internal/records"
	"github.com/starford/raido/internal/vault"
)

// TestVault creates a temporary vault directory with a vault.FS.
func TestVault(t *testing.T) (string, *vault.FS) {
	t.Helper()
	dir := t.TempDir()
	v, err := vault.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, v
}

// TestRecords creates a record store backed by a temporary file.
func TestRecords(t *testing.T) *records.Store {
	t.Helper()
	return records.NewStore(filepath.Join(t.TempDir(), "records.json"))
}
