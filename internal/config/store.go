package config

import (
	"fmt"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"threadrelay/internal/fileutil"
)

// Store holds the live configuration snapshot for a running daemon.
//
// Snapshots returned by Current are never mutated; Update swaps in a new
// snapshot and notifies listeners registered through OnChange.
type Store struct {
	mu        sync.RWMutex
	path      string
	current   *Config
	listeners []func(*Config)
}

// NewStore wraps an already loaded configuration. path is used by Reload and Save.
func NewStore(cfg *Config, path string) *Store {
	if cfg == nil {
		def := Default()
		_ = def.normalize()
		cfg = &def
	}
	return &Store{path: path, current: cfg.Clone()}
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Current returns the active snapshot. Callers must treat it as read-only.
func (s *Store) Current() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies mutate to a copy of the active snapshot. The copy is
// normalized and validated; on failure the previous snapshot stays active.
func (s *Store) Update(mutate func(*Config)) error {
	s.mu.Lock()
	next := s.current.Clone()
	mutate(next)
	if err := next.normalize(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = next
	listeners := append([]func(*Config){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return nil
}

// Reload re-reads the backing file and replaces the active snapshot.
func (s *Store) Reload() error {
	cfg, _, _, err := Load(s.Path())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = cfg
	listeners := append([]func(*Config){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// Save writes the active snapshot back to the backing file.
func (s *Store) Save() error {
	s.mu.RLock()
	path := s.path
	cfg := s.current
	s.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("save config: no config path")
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// OnChange registers fn to receive every new snapshot.
func (s *Store) OnChange(fn func(*Config)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
