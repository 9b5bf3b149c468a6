package state

import (
	"errors"
	"os"
	"path/filepath"
)

// Status summarizes the persisted state.
type Status struct {
	Files          int    `json:"files"`
	Chunks         int    `json:"chunks"`
	CachedAnswers  int    `json:"cached_answers"`
	Sessions       int    `json:"sessions"`
	ActiveSession  string `json:"active_session,omitempty"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
}

// Status loads every snapshot and reports their sizes. extra paths (such as a local vector
// database) are added to the disk usage.
func (s *Store) Status(extra ...string) (Status, error) {
	var st Status
	idx, err := s.LoadIndex()
	if err != nil {
		return st, err
	}
	cache, err := s.LoadQueryCache()
	if err != nil {
		return st, err
	}
	sessions, err := s.LoadSessions()
	if err != nil {
		return st, err
	}
	st.Files = len(idx.Files)
	st.Chunks = idx.ChunkCount()
	st.CachedAnswers = cache.Len()
	st.Sessions = len(sessions.Sessions)
	st.ActiveSession = sessions.ActiveID()

	paths := []string{
		filepath.Join(s.dir, IndexFile),
		filepath.Join(s.dir, QueryCacheFile),
		filepath.Join(s.dir, SessionsFile),
	}
	st.DiskUsageBytes, err = DiskUsageBytes(append(paths, extra...)...)
	return st, err
}

// DiskUsageBytes returns the total size in bytes of the given paths. Each path may be a file
// or a directory (recursively summed); missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(p, func(_ string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
