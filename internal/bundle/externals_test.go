package bundle

import (
	"regexp"
	"testing"

	"gotest.tools/v3/assert"
)

func TestExternalsMatch(t *testing.T) {
	e := newExternals([]string{"path", "@scope/pkg", "k6*", ""})

	cases := []struct {
		importPath string
		want       string
		ok         bool
	}{
		{importPath: "path", want: "path", ok: true},
		{importPath: "path/posix", want: "path", ok: true},
		{importPath: "pathological", ok: false},
		{importPath: "@scope/pkg", want: "@scope/pkg", ok: true},
		{importPath: "@scope/pkg/sub/file.js", want: "@scope/pkg", ok: true},
		{importPath: "@scope/other", ok: false},
		{importPath: "k6", want: "k6*", ok: true},
		{importPath: "k6/http", want: "k6*", ok: true},
		{importPath: "./path", ok: false},
	}
	for _, tc := range cases {
		got, ok := e.match(tc.importPath)
		assert.Equal(t, ok, tc.ok, tc.importPath)
		assert.Equal(t, got, tc.want, tc.importPath)

		filterMatches := regexp.MustCompile(e.filter()).MatchString(tc.importPath)
		assert.Equal(t, filterMatches, tc.ok, "filter %s on %s", e.filter(), tc.importPath)
	}
}

func TestExternalsBookkeeping(t *testing.T) {
	e := newExternals([]string{"path", "fs", "lodash"})

	e.record("path")
	e.record("lodash")
	e.record("path")

	assert.DeepEqual(t, e.referenced(), []string{"lodash", "path"})
	assert.DeepEqual(t, e.unused(), []string{"fs"})
}

func TestExternalsWildcardSkipsFilePaths(t *testing.T) {
	e := newExternals([]string{"*"})

	for _, p := range []string{"./greet", "../lib/util", "/proj/src/index.ts"} {
		_, ok := e.match(p)
		assert.Assert(t, !ok, p)
	}
	name, ok := e.match("lodash/fp")
	assert.Assert(t, ok)
	assert.Equal(t, name, "*")
}
