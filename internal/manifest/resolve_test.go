package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"
)

func newProject(t *testing.T) *fs.Dir {
	t.Helper()
	return fs.NewDir(t, "dualpack-resolve",
		fs.WithDir("src",
			fs.WithFile("index.ts", "export const a = 1;\n"),
			fs.WithFile("install-ca.ts", "export const b = 2;\n"),
			fs.WithDir("nested"),
		),
	)
}

func TestResolvePreservesOrder(t *testing.T) {
	dir := newProject(t)

	got, err := Resolve(dir.Path(), []string{"src/install-ca.ts", "src/index.ts"})
	assert.NilError(t, err)
	assert.DeepEqual(t, got, []string{
		filepath.ToSlash(dir.Join("src", "install-ca.ts")),
		filepath.ToSlash(dir.Join("src", "index.ts")),
	})
	for _, p := range got {
		assert.Assert(t, filepath.IsAbs(filepath.FromSlash(p)), p)
		_, err := os.Stat(p)
		assert.NilError(t, err)
	}
}

func TestResolveCleansDotSegments(t *testing.T) {
	dir := newProject(t)

	got, err := Resolve(dir.Path()+"/src/..", []string{"./src/nested/../index.ts"})
	assert.NilError(t, err)
	assert.Equal(t, len(got), 1)
	assert.Assert(t, !strings.Contains(got[0], ".."), got[0])
	assert.Equal(t, got[0], filepath.ToSlash(dir.Join("src", "index.ts")))
}

func TestResolveAcceptsAbsoluteEntry(t *testing.T) {
	dir := newProject(t)

	got, err := Resolve(dir.Path(), []string{dir.Join("src", "index.ts")})
	assert.NilError(t, err)
	assert.DeepEqual(t, got, []string{filepath.ToSlash(dir.Join("src", "index.ts"))})
}

func TestResolveErrors(t *testing.T) {
	dir := newProject(t)

	cases := []struct {
		name    string
		root    string
		entries []string
		reason  string
	}{
		{name: "missing root", root: filepath.Join(dir.Path(), "does-not-exist"), entries: []string{"src/missing.ts"}, reason: "project root does not exist"},
		{name: "root is a file", root: dir.Join("src", "index.ts"), entries: []string{"index.ts"}, reason: "project root is not a directory"},
		{name: "missing entry", root: dir.Path(), entries: []string{"src/index.ts", "src/missing.ts"}, reason: "entry point does not exist"},
		{name: "entry is a directory", root: dir.Path(), entries: []string{"src/nested"}, reason: "entry point is a directory"},
		{name: "no entries", root: dir.Path(), entries: nil, reason: "no entry points listed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.root, tc.entries)
			var resolutionErr *ResolutionError
			assert.Assert(t, errors.As(err, &resolutionErr), "got %v", err)
			assert.Equal(t, resolutionErr.Reason, tc.reason)
		})
	}
}

func TestResolveMissingEntryNamesPath(t *testing.T) {
	dir := newProject(t)

	_, err := Resolve(dir.Path(), []string{"src/missing.ts"})
	assert.Assert(t, is.ErrorContains(err, "src/missing.ts"))
	assert.Assert(t, errors.Is(err, os.ErrNotExist))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, Normalize("a/b/../c.ts", "/proj"), "/proj/a/c.ts")
	assert.Equal(t, Normalize("/proj/./build//cjs", ""), "/proj/build/cjs")
	// e followed by a combining acute accent composes to a single rune.
	assert.Equal(t, Normalize("cafe\u0301.ts", "/proj"), "/proj/caf\u00e9.ts")
}
