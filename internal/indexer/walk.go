package indexer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/pkg/utils"
)

// Walker lists the files under a root that should be indexed.
type Walker struct {
	exts        map[string]bool
	ignoreFiles []string
	exclude     []string
	logger      *zap.Logger
}

// NewWalker returns a Walker that keeps files whose extension is in extensions (with or
// without the leading dot; empty keeps everything) and honors .gitignore plus ignoreFile in
// every directory of the walk. Rules apply to the directory holding the file and below.
func NewWalker(extensions []string, ignoreFile string, logger *zap.Logger) *Walker {
	w := &Walker{exts: make(map[string]bool, len(extensions)), logger: utils.OrNop(logger)}
	for _, e := range extensions {
		w.exts[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	w.ignoreFiles = []string{".gitignore"}
	if ignoreFile != "" && ignoreFile != ".gitignore" {
		w.ignoreFiles = append(w.ignoreFiles, ignoreFile)
	}
	return w
}

// Exclude adds doublestar globs matched against slash-separated paths relative to the walk
// root. Matching files and directories are skipped. Invalid patterns never match.
func (w *Walker) Exclude(patterns ...string) *Walker {
	w.exclude = append(w.exclude, patterns...)
	return w
}

func (w *Walker) excluded(rel string) bool {
	for _, p := range w.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Allowed reports whether path has an indexable extension.
func (w *Walker) Allowed(path string) bool {
	if len(w.exts) == 0 {
		return true
	}
	return w.exts[strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))]
}

// Walk returns the absolute paths of indexable regular files under root in lexical order.
// When root is a file it is returned alone if its extension is allowed.
func (w *Walker) Walk(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		if info.Mode().IsRegular() && w.Allowed(absRoot) {
			return []string{absRoot}, nil
		}
		return nil, nil
	}

	ignore := w.newIgnoreSet(absRoot)
	var files []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == absRoot {
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if d.Name() == ".git" || w.excluded(rel) {
				return filepath.SkipDir
			}
			skip, err := ignore.match(rel, true)
			if err != nil {
				return err
			}
			if skip {
				w.logger.Debug("walker skipping directory", zap.String("path", rel))
				return filepath.SkipDir
			}
			return nil
		}
		if !w.Allowed(path) || w.excluded(rel) {
			return nil
		}
		if skip, err := ignore.match(rel, false); err != nil || skip {
			return err
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", absRoot, err)
	}
	return files, nil
}

// PathFilter applies a Walker's rules to single paths under one root, for callers that
// learn about files one at a time.
type PathFilter struct {
	root   string
	walker *Walker
	ignore *ignoreSet
}

// Filter returns a PathFilter for root. Ignore files are read the first time a directory is
// consulted.
func (w *Walker) Filter(root string) (*PathFilter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	return &PathFilter{root: absRoot, walker: w, ignore: w.newIgnoreSet(absRoot)}, nil
}

// Root returns the absolute root the filter applies to.
func (f *PathFilter) Root() string { return f.root }

// Keep reports whether Walk(root) would descend into path (isDir) or return it (file).
// Unreadable ignore files make Keep return false.
func (f *PathFilter) Keep(path string, isDir bool) bool {
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	if rel == "." {
		return isDir
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := 1; i <= len(parts); i++ {
		dir := i < len(parts) || isDir
		sub := strings.Join(parts[:i], "/")
		if (parts[i-1] == ".git" && dir) || f.walker.excluded(sub) {
			return false
		}
		skip, err := f.ignore.match(sub, dir)
		if err != nil || skip {
			return false
		}
	}
	return isDir || f.walker.Allowed(path)
}

// ignoreSet holds the compiled ignore files of each directory under root, keyed by the
// slash-separated directory relative to root ("." for root). A nil entry means the
// directory has none.
type ignoreSet struct {
	root  string
	names []string

	mu   sync.Mutex
	dirs map[string]*gitignore.GitIgnore
}

func (w *Walker) newIgnoreSet(root string) *ignoreSet {
	return &ignoreSet{root: root, names: w.ignoreFiles, dirs: make(map[string]*gitignore.GitIgnore)}
}

// match reports whether rel is ignored by the ignore files of any directory above it.
// Files of a directory are matched against paths relative to that directory.
func (s *ignoreSet) match(rel string, isDir bool) (bool, error) {
	dir := path.Dir(rel)
	for {
		ig, err := s.load(dir)
		if err != nil {
			return false, err
		}
		if ig != nil {
			sub := rel
			if dir != "." {
				sub = strings.TrimPrefix(rel, dir+"/")
			}
			if isDir {
				sub += "/"
			}
			if ig.MatchesPath(sub) {
				return true, nil
			}
		}
		if dir == "." {
			return false, nil
		}
		dir = path.Dir(dir)
	}
}

func (s *ignoreSet) load(dir string) (*gitignore.GitIgnore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ig, ok := s.dirs[dir]; ok {
		return ig, nil
	}
	var lines []string
	for _, name := range s.names {
		data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(dir), name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		lines = append(lines, strings.Split(string(data), "\n")...)
	}
	var ig *gitignore.GitIgnore
	if len(lines) > 0 {
		ig = gitignore.CompileIgnoreLines(lines...)
	}
	s.dirs[dir] = ig
	return ig, nil
}
