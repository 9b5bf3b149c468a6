package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/pkg/utils"
)

// Snapshot file names inside the state directory.
const (
	IndexFile      = "index-state.json"
	QueryCacheFile = "query-cache.json"
	SessionsFile   = "sessions.json"
)

// Store loads and saves the three snapshots in one directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for snapshot I/O.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{dir: dir}
	for _, o := range opts {
		o(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

// LoadIndex reads index-state.json.
func (s *Store) LoadIndex() (*IndexState, error) {
	st := NewIndexState()
	if err := s.load(IndexFile, st); err != nil {
		return nil, err
	}
	if st.Files == nil {
		st.Files = make(map[string]FileRecord)
	}
	return st, nil
}

// SaveIndex writes index-state.json.
func (s *Store) SaveIndex(st *IndexState) error {
	return s.save(IndexFile, st)
}

// LoadQueryCache reads query-cache.json.
func (s *Store) LoadQueryCache() (*QueryCache, error) {
	c := &QueryCache{}
	if err := s.load(QueryCacheFile, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SaveQueryCache writes query-cache.json.
func (s *Store) SaveQueryCache(c *QueryCache) error {
	return s.save(QueryCacheFile, c)
}

// LoadSessions reads sessions.json.
func (s *Store) LoadSessions() (*SessionManager, error) {
	m := NewSessionManager()
	if err := s.load(SessionsFile, m); err != nil {
		return nil, err
	}
	if m.Sessions == nil {
		m.Sessions = make(map[string]*SessionState)
	}
	return m, nil
}

// SaveSessions writes sessions.json.
func (s *Store) SaveSessions(m *SessionManager) error {
	return s.save(SessionsFile, m)
}

// load decodes name into v. A missing file leaves v untouched.
func (s *Store) load(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("snapshot missing, starting empty", zap.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// save writes v to a temp file in the state directory and renames it over name.
func (s *Store) save(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	s.logger.Debug("snapshot saved", zap.String("file", name), zap.Int("bytes", len(data)))
	return nil
}
