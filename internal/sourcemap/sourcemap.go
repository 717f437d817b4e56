// Package sourcemap rewrites emitted v3 sourcemaps so every original source
// is referenced relative to the map's own location, and checks that the
// rewritten links reach real files.
package sourcemap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	gosourcemap "github.com/go-sourcemap/sourcemap"
)

// Rewrite returns data with its "sources" made slash-separated and relative
// to the directory of mapPath. "file" is set to the generated file name and
// "sourceRoot" to sourceRoot when it is not empty. Unknown fields are kept.
func Rewrite(mapPath string, data []byte, sourceRoot string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("sourcemap %s: %w", mapPath, err)
	}

	var err error
	if raw, ok := fields["sources"]; ok {
		var sources []string
		if err := json.Unmarshal(raw, &sources); err != nil {
			return nil, fmt.Errorf("sourcemap %s: sources: %w", mapPath, err)
		}
		dir := path.Dir(toSlash(mapPath))
		for i, src := range sources {
			sources[i] = relativeSource(dir, src)
		}
		if fields["sources"], err = json.Marshal(sources); err != nil {
			return nil, err
		}
	}
	if fields["file"], err = json.Marshal(strings.TrimSuffix(path.Base(toSlash(mapPath)), ".map")); err != nil {
		return nil, err
	}
	if sourceRoot != "" {
		if fields["sourceRoot"], err = json.Marshal(sourceRoot); err != nil {
			return nil, err
		}
	}
	return json.Marshal(fields)
}

func relativeSource(dir, src string) string {
	s := toSlash(strings.TrimPrefix(src, "file://"))
	if !path.IsAbs(s) && !isWindowsAbs(s) {
		if strings.Contains(s, ":") {
			// Virtual namespaces such as "<stdin>" or "virtual:entry".
			return src
		}
		return path.Clean(s)
	}
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(s))
	if err != nil {
		return s
	}
	return filepath.ToSlash(rel)
}

// Linkage lists the original sources a generated file maps back to.
type Linkage struct {
	Sources []string
	Missing []string
}

// Verify checks that mapData is a well-formed v3 map and collects the
// absolute original sources it links to. Sources that are not on disk are
// listed in Missing.
func Verify(mapPath string, mapData []byte) (*Linkage, error) {
	mapURL := toSlash(mapPath)
	if _, err := gosourcemap.Parse(mapURL, mapData); err != nil {
		return nil, fmt.Errorf("sourcemap %s: %w", mapPath, err)
	}
	var m struct {
		SourceRoot string   `json:"sourceRoot"`
		Sources    []string `json:"sources"`
	}
	if err := json.Unmarshal(mapData, &m); err != nil {
		return nil, fmt.Errorf("sourcemap %s: %w", mapPath, err)
	}

	dir := path.Dir(mapURL)
	if root := toSlash(m.SourceRoot); root != "" {
		dir = absoluteSource(dir, root)
	}
	seen := map[string]struct{}{}
	for _, src := range m.Sources {
		if src == "" || isVirtual(src) {
			continue
		}
		seen[absoluteSource(dir, src)] = struct{}{}
	}

	linkage := &Linkage{Sources: make([]string, 0, len(seen))}
	for src := range seen {
		linkage.Sources = append(linkage.Sources, src)
	}
	sort.Strings(linkage.Sources)

	for _, src := range linkage.Sources {
		if strings.Contains(src, "://") {
			continue
		}
		if _, err := os.Stat(filepath.FromSlash(src)); errors.Is(err, os.ErrNotExist) {
			linkage.Missing = append(linkage.Missing, src)
		}
	}
	return linkage, nil
}

// isVirtual reports sources such as "<stdin>" or "virtual:entry" that name
// no file.
func isVirtual(src string) bool {
	s := toSlash(strings.TrimPrefix(src, "file://"))
	if strings.Contains(s, "://") || isWindowsAbs(s) {
		return false
	}
	return strings.Contains(s, ":") || strings.HasPrefix(s, "<")
}

func absoluteSource(dir, src string) string {
	s := strings.TrimPrefix(src, "file://")
	if strings.Contains(s, "://") {
		return s
	}
	if path.IsAbs(s) || isWindowsAbs(s) {
		return path.Clean(s)
	}
	return path.Join(dir, s)
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func isWindowsAbs(p string) bool {
	return len(p) >= 3 && p[1] == ':' && p[2] == '/'
}
