package bundle

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

// externals keeps declared external modules out of the bundle and records
// which of them the sources actually import.
type externals struct {
	declared []string
	patterns []*regexp.Regexp

	mu   sync.Mutex
	seen map[string]struct{}
}

func newExternals(names []string) *externals {
	e := &externals{seen: map[string]struct{}{}}
	for _, name := range names {
		if name == "" {
			continue
		}
		e.declared = append(e.declared, name)
		e.patterns = append(e.patterns, regexp.MustCompile("^"+namePattern(name)+"(/.*)?$"))
	}
	return e
}

// namePattern quotes name for a regexp, keeping "*" as a wildcard the way
// esbuild's own external option does.
func namePattern(name string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(name), `\*`, `.*`)
}

// filter is the esbuild plugin filter matching any declared module or one of
// its sub-paths.
func (e *externals) filter() string {
	alts := make([]string, len(e.declared))
	for i, name := range e.declared {
		alts[i] = namePattern(name)
	}
	return "^(" + strings.Join(alts, "|") + ")(/.*)?$"
}

// match returns the declared name that importPath refers to. Relative and
// absolute paths name files, not modules, and never match.
func (e *externals) match(importPath string) (string, bool) {
	if strings.HasPrefix(importPath, ".") || strings.HasPrefix(importPath, "/") || filepath.IsAbs(importPath) {
		return "", false
	}
	for i, p := range e.patterns {
		if p.MatchString(importPath) {
			return e.declared[i], true
		}
	}
	return "", false
}

func (e *externals) record(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen[name] = struct{}{}
}

func (e *externals) referenced() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.seen))
	for name := range e.seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *externals) unused() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for _, name := range e.declared {
		if _, ok := e.seen[name]; !ok {
			names = append(names, name)
		}
	}
	return names
}

func (e *externals) plugin() api.Plugin {
	return api.Plugin{
		Name: "dualpack-externals",
		Setup: func(pb api.PluginBuild) {
			if len(e.declared) == 0 {
				return
			}
			pb.OnResolve(api.OnResolveOptions{Filter: e.filter()}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind == api.ResolveEntryPoint {
					return api.OnResolveResult{}, nil
				}
				name, ok := e.match(args.Path)
				if !ok {
					return api.OnResolveResult{}, nil
				}
				e.record(name)
				return api.OnResolveResult{
					Path:     args.Path,
					External: true,
				}, nil
			})
		},
	}
}
