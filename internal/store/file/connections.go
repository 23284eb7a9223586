// Package file implements the connection store on a single JSON file.
//
// The whole registry is rewritten on every mutation via a temp file and
// os.Rename in the same directory, so a crash leaves either the previous
// file or the new one, never a partial write.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/teleecho/internal/store"
)

// ConnectionStore is a file-backed store.ConnectionStore.
type ConnectionStore struct {
	path    string
	mu      sync.Mutex
	records map[string]store.ConnectionRecord
}

// NewConnectionStore opens (or lazily creates) the registry at path.
func NewConnectionStore(path string) (*ConnectionStore, error) {
	s := &ConnectionStore{
		path:    path,
		records: make(map[string]store.ConnectionRecord),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Create adds a new pending record.
func (s *ConnectionStore) Create(name, token string) (*store.ConnectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[name]; exists {
		return nil, fmt.Errorf("%w: %s", store.ErrDuplicateName, name)
	}

	rec := store.ConnectionRecord{
		Name:      name,
		Token:     token,
		State:     store.StatePending,
		CreatedAt: time.Now().UnixMilli(),
	}
	s.records[name] = rec

	if err := s.save(); err != nil {
		delete(s.records, name)
		return nil, err
	}
	return &rec, nil
}

// Get returns a copy of the named record.
func (s *ConnectionStore) Get(name string) (*store.ConnectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}
	return &rec, nil
}

// GetDefault returns the sole record, if exactly one exists.
func (s *ConnectionStore) GetDefault() (*store.ConnectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch len(s.records) {
	case 0:
		return nil, fmt.Errorf("%w: no connections configured", store.ErrNotFound)
	case 1:
		for _, rec := range s.records {
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("%w (%d configured)", store.ErrAmbiguousConnection, len(s.records))
}

// Update persists a mutated record.
func (s *ConnectionStore) Update(rec *store.ConnectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.records[rec.Name]
	if !exists {
		return fmt.Errorf("%w: %s", store.ErrNotFound, rec.Name)
	}

	s.records[rec.Name] = *rec
	if err := s.save(); err != nil {
		s.records[rec.Name] = prev
		return err
	}
	return nil
}

// Remove deletes the named record.
func (s *ConnectionStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.records[name]
	if !exists {
		return fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}

	delete(s.records, name)
	if err := s.save(); err != nil {
		s.records[name] = prev
		return err
	}
	return nil
}

// List returns all records sorted by name.
func (s *ConnectionStore) List() ([]store.ConnectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]store.ConnectionRecord, 0, len(s.records))
	for _, rec := range s.records {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// --- Internal ---

func (s *ConnectionStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // first run, nothing to load
		}
		return fmt.Errorf("read connection store: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return fmt.Errorf("parse connection store %s: %w", s.path, err)
	}
	return nil
}

// save must be called with mu held.
func (s *ConnectionStore) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal connection store: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".connections-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write connection store: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod connection store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace connection store: %w", err)
	}
	return nil
}
