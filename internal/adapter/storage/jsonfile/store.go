package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/mediadesk/internal/port"
)

// Store keeps preferences in a map, mirrored to preferences.json when a
// data directory is given. An empty dataDir yields a memory-only store.
type Store struct {
	mu    sync.RWMutex
	path  string
	prefs map[string]map[string]string
}

func NewStore(dataDir string) (*Store, error) {
	store := &Store{
		prefs: make(map[string]map[string]string),
	}
	if dataDir == "" {
		return store, nil
	}

	store.path = filepath.Join(dataDir, "preferences.json")
	if err := store.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return store, nil
}

func NewMemoryStore() *Store {
	s, _ := NewStore("")
	return s
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, &s.prefs)
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	tmpPath := s.path + ".tmp"

	data, err := json.MarshalIndent(s.prefs, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}

func (s *Store) Get(ctx context.Context, user, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.prefs[user][key]
	if !ok {
		return "", port.ErrPreferenceNotSet
	}

	return v, nil
}

func (s *Store) Set(ctx context.Context, user, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prefs[user] == nil {
		s.prefs[user] = make(map[string]string)
	}
	s.prefs[user][key] = value
	return s.save()
}

func (s *Store) Delete(ctx context.Context, user, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.prefs[user], key)
	if len(s.prefs[user]) == 0 {
		delete(s.prefs, user)
	}
	return s.save()
}

var _ port.PreferenceStore = (*Store)(nil)
