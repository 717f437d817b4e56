package manifest

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// Resolve turns entry points listed relative to projectRoot into absolute,
// slash-separated, cleaned paths. The output keeps the input order and every
// returned path exists on disk.
func Resolve(projectRoot string, relativeEntryPoints []string) ([]string, error) {
	if len(relativeEntryPoints) == 0 {
		return nil, &ResolutionError{Path: projectRoot, Reason: "no entry points listed"}
	}

	root, err := existing(Normalize(projectRoot, ""), projectRoot)
	if err != nil {
		return nil, &ResolutionError{Path: projectRoot, Reason: "project root does not exist", Err: err}
	}
	info, err := os.Stat(filepath.FromSlash(root))
	if err != nil {
		return nil, &ResolutionError{Path: root, Reason: "project root does not exist", Err: err}
	}
	if !info.IsDir() {
		return nil, &ResolutionError{Path: root, Reason: "project root is not a directory"}
	}

	resolved := make([]string, 0, len(relativeEntryPoints))
	for _, entry := range relativeEntryPoints {
		if entry == "" {
			return nil, &ResolutionError{Path: root, Reason: "empty entry point"}
		}
		raw := entry
		if !filepath.IsAbs(raw) {
			raw = filepath.Join(filepath.FromSlash(root), raw)
		}
		p, err := existing(Normalize(entry, root), raw)
		if err != nil {
			return nil, &ResolutionError{Path: Normalize(entry, root), Reason: "entry point does not exist", Err: err}
		}
		info, err := os.Stat(filepath.FromSlash(p))
		if err != nil {
			return nil, &ResolutionError{Path: p, Reason: "entry point does not exist", Err: err}
		}
		if info.IsDir() {
			return nil, &ResolutionError{Path: p, Reason: "entry point is a directory"}
		}
		resolved = append(resolved, p)
	}
	return resolved, nil
}

// Normalize returns p as an absolute, cleaned, slash-separated path in
// Unicode NFC form. Relative paths are joined to base, or to the working
// directory when base is empty.
func Normalize(p, base string) string {
	p = norm.NFC.String(filepath.FromSlash(p))
	if !filepath.IsAbs(p) {
		if base == "" {
			if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}
		} else {
			p = filepath.Join(filepath.FromSlash(norm.NFC.String(base)), p)
		}
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// existing returns normalized when it exists on disk. Filesystems that store
// decomposed names only answer to the raw spelling, so that is tried next.
func existing(normalized, raw string) (string, error) {
	_, err := os.Stat(filepath.FromSlash(normalized))
	if err == nil {
		return normalized, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if raw == "" {
		return "", err
	}
	if !filepath.IsAbs(raw) {
		abs, absErr := filepath.Abs(raw)
		if absErr != nil {
			return "", err
		}
		raw = abs
	}
	raw = filepath.Clean(raw)
	if _, rawErr := os.Stat(raw); rawErr == nil {
		return filepath.ToSlash(raw), nil
	}
	return "", err
}
