// Package records persists the durable transfer log: an ordered JSON
// array of transfer records, pretty-printed, rewritten in full on every
// append. The log lives outside the vault so it survives an uninstall
// of the consuming application. Appends happen only after a successful
// transfer; a failed append never rolls back the document rewrite that
// preceded it.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/starford/raido/internal/models"
)

// Store is the append-only transfer log. The in-memory cache is
// hydrated from disk on first access and is the single writer from
// then on.
type Store struct {
	path string

	mu      sync.Mutex
	loaded  bool
	entries []models.TransferRecord
}

// NewStore creates a store backed by the file at path. The file does
// not need to exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the log file location.
func (s *Store) Path() string {
	return s.path
}

// All returns a copy of every record in append order.
func (s *Store) All() ([]models.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	out := make([]models.TransferRecord, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Append adds one record and rewrites the log file.
func (s *Store) Append(rec models.TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	s.entries = append(s.entries, rec)
	if err := s.flush(); err != nil {
		// Keep cache and disk consistent: drop the unpersisted entry.
		s.entries = s.entries[:len(s.entries)-1]
		return err
	}
	return nil
}

// load hydrates the cache once. A missing file is an empty log.
func (s *Store) load() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("records: read %s: %w", s.path, err)
	}
	var entries []models.TransferRecord
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("records: parse %s: %w", s.path, err)
	}
	s.entries = entries
	s.loaded = true
	return nil
}

// flush rewrites the whole log: tmp file → fsync → rename.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("records: marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("records: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".records-tmp-*")
	if err != nil {
		return fmt.Errorf("records: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("records: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("records: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("records: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("records: rename: %w", err)
	}
	success = true
	return nil
}
