package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func relPaths(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, len(files))
	for i, f := range files {
		rel, err := filepath.Rel(root, f)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func TestWalker_extensionsAndIgnore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"README.md":              "readme",
		"src/app.ts":             "code",
		"src/app.go":             "not allowed",
		"src/gen/out.ts":         "generated",
		"node_modules/lib/x.js":  "vendored",
		"docs/keep.md":           "keep",
		"docs/draft.md":          "draft",
		".git/config.md":         "git internals",
		".kbignore":              "# comments are skipped\nnode_modules/\nsrc/gen\n*draft*\n",
		".gitignore":             "secret.md\n",
		"secret.md":              "hidden",
		"notes/secret.md":        "also hidden",
		"notes/keep-secret.html": "kept",
	})

	w := NewWalker([]string{"md", ".ts", "html"}, ".kbignore", nil)
	files, err := w.Walk(root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"README.md",
		"docs/keep.md",
		"notes/keep-secret.html",
		"src/app.ts",
	}, relPaths(t, root, files))
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f))
	}
}

func TestWalker_negation(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md":      "a",
		"b.md":      "b",
		".kbignore": "*.md\n!b.md\n",
	})

	files, err := NewWalker([]string{"md"}, ".kbignore", nil).Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.md"}, relPaths(t, root, files))
}

func TestWalker_singleFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"one.md": "x", "two.go": "y"})
	w := NewWalker([]string{"md"}, ".kbignore", nil)

	files, err := w.Walk(filepath.Join(root, "one.md"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	files, err = w.Walk(filepath.Join(root, "two.go"))
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = w.Walk(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestWalker_Allowed(t *testing.T) {
	w := NewWalker([]string{".MD", "ts"}, "", nil)
	assert.True(t, w.Allowed("/x/readme.md"))
	assert.True(t, w.Allowed("index.TS"))
	assert.False(t, w.Allowed("main.go"))
	assert.True(t, NewWalker(nil, "", nil).Allowed("anything.bin"))
}

func TestPathFilter_matchesWalk(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.md":          "keep",
		"src/gen/out.md":   "generated",
		"docs/draft.md":    "draft",
		".kbignore":        "src/gen\n*draft*\n",
		"docs/notes.md":    "notes",
		".git/HEAD.md":     "git",
		"vendor/lib/x.txt": "wrong extension",
	})

	f, err := NewWalker([]string{"md"}, ".kbignore", nil).Filter(root)
	require.NoError(t, err)
	assert.Equal(t, root, f.Root())

	p := func(rel string) string { return filepath.Join(root, filepath.FromSlash(rel)) }
	assert.True(t, f.Keep(p("keep.md"), false))
	assert.True(t, f.Keep(p("docs/notes.md"), false))
	assert.True(t, f.Keep(p("docs"), true))
	assert.True(t, f.Keep(root, true))
	assert.False(t, f.Keep(root, false))
	assert.False(t, f.Keep(p("src/gen/out.md"), false))
	assert.False(t, f.Keep(p("src/gen"), true))
	assert.False(t, f.Keep(p("docs/draft.md"), false))
	assert.False(t, f.Keep(p(".git/HEAD.md"), false))
	assert.False(t, f.Keep(p(".git"), true))
	assert.False(t, f.Keep(p("vendor/lib/x.txt"), false))
	assert.False(t, f.Keep(filepath.Join(filepath.Dir(root), "elsewhere.md"), false))
}

func TestWalker_nestedIgnoreFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"docs/public.md":         "public",
		"docs/secret.md":         "secret",
		"docs/.kbignore":         "secret.md\n",
		"docs/deep/secret.md":    "below the ignore file",
		"other/secret.md":        "outside the ignore file's directory",
		"src/.gitignore":         "build/\n",
		"src/build/out.md":       "built",
		"src/lib.md":             "lib",
		"src/nested/build/x.md":  "also built",
		"src/nested/.kbignore":   "*.md\n",
		"src/nested/ignored.md":  "ignored",
		"src/nested/sub/deep.md": "ignored too",
	})

	files, err := NewWalker([]string{"md"}, ".kbignore", nil).Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"docs/public.md",
		"other/secret.md",
		"src/lib.md",
	}, relPaths(t, root, files))

	f, err := NewWalker([]string{"md"}, ".kbignore", nil).Filter(root)
	require.NoError(t, err)
	p := func(rel string) string { return filepath.Join(root, filepath.FromSlash(rel)) }
	assert.True(t, f.Keep(p("docs/public.md"), false))
	assert.False(t, f.Keep(p("docs/secret.md"), false))
	assert.False(t, f.Keep(p("docs/deep/secret.md"), false))
	assert.True(t, f.Keep(p("other/secret.md"), false))
	assert.False(t, f.Keep(p("src/build"), true))
	assert.False(t, f.Keep(p("src/build/out.md"), false))
	assert.False(t, f.Keep(p("src/nested/sub/deep.md"), false))
}

func TestWalker_exclude(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.md":                 "keep",
		"pkg/testdata/fixture.md": "fixture",
		"vendor/lib.md":           "vendored",
		"notes/draft.md":          "draft",
	})

	w := NewWalker([]string{"md"}, ".kbignore", nil).Exclude("**/testdata/**", "vendor", "notes/*.md", "[")
	files, err := w.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.md"}, relPaths(t, root, files))

	f, err := w.Filter(root)
	require.NoError(t, err)
	p := func(rel string) string { return filepath.Join(root, filepath.FromSlash(rel)) }
	assert.True(t, f.Keep(p("keep.md"), false))
	assert.False(t, f.Keep(p("vendor/lib.md"), false))
	assert.False(t, f.Keep(p("pkg/testdata/fixture.md"), false))
	assert.False(t, f.Keep(p("notes/draft.md"), false))
	assert.True(t, f.Keep(p("notes"), true))
}
