package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// Scope selects the lifetime of a stored value.
type Scope int

const (
	// Persistent values outlive sessions (the visitor id).
	Persistent Scope = iota
	// Session values are dropped by ClearSession.
	Session
)

// Storage is the client-side key/value store the tracker keeps its
// identifiers and counters in.
type Storage interface {
	Get(scope Scope, key string) (string, bool)
	Set(scope Scope, key, value string) error
	ClearSession() error
}

// MemoryStorage keeps values in process memory.
type MemoryStorage struct {
	mu         sync.RWMutex
	persistent map[string]string
	session    map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		persistent: make(map[string]string),
		session:    make(map[string]string),
	}
}

func (s *MemoryStorage) bucket(scope Scope) map[string]string {
	if scope == Session {
		return s.session
	}
	return s.persistent
}

func (s *MemoryStorage) Get(scope Scope, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.bucket(scope)[key]
	return v, ok
}

func (s *MemoryStorage) Set(scope Scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(scope)[key] = value
	return nil
}

func (s *MemoryStorage) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = make(map[string]string)
	return nil
}

type fileContents struct {
	Persistent map[string]string `json:"persistent"`
	Session    map[string]string `json:"session"`
}

// FileStorage persists values to a JSON file, rewritten on every change.
type FileStorage struct {
	path string
	mem  *MemoryStorage
}

// NewFileStorage loads path if it exists.
func NewFileStorage(path string) (*FileStorage, error) {
	fs := &FileStorage{path: path, mem: NewMemoryStorage()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read storage file: %w", err)
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("decode storage file %s: %w", path, err)
	}
	for k, v := range contents.Persistent {
		fs.mem.persistent[k] = v
	}
	for k, v := range contents.Session {
		fs.mem.session[k] = v
	}
	return fs, nil
}

func (s *FileStorage) Get(scope Scope, key string) (string, bool) {
	return s.mem.Get(scope, key)
}

func (s *FileStorage) Set(scope Scope, key, value string) error {
	if err := s.mem.Set(scope, key, value); err != nil {
		return err
	}
	return s.flush()
}

func (s *FileStorage) ClearSession() error {
	if err := s.mem.ClearSession(); err != nil {
		return err
	}
	return s.flush()
}

func (s *FileStorage) flush() error {
	s.mem.mu.RLock()
	data, err := json.MarshalIndent(fileContents{
		Persistent: s.mem.persistent,
		Session:    s.mem.session,
	}, "", "  ")
	s.mem.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode storage file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write storage file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace storage file: %w", err)
	}
	return nil
}
