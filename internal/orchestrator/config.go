package orchestrator

import (
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/groove/dualpack/internal/bundle"
)

// ConfigurationError reports settings that would make the two builds
// inconsistent or race on the same files. It is raised before any build.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// BaseConfig is the configuration shared by every output format. Requests
// are derived from it with Merge and never modify it.
type BaseConfig struct {
	EntryPoints     []string
	ExternalModules []string
	Sourcemap       bool
	Bundle          bool
	Platform        string
	Target          string
	NodePaths       []string
	SourceRoot      string
	SourcesContent  bool
	SmokeTest       bool
	WorkingDir      string
}

// Merge derives the request for one format. Only Format and OutputDirectory
// (outputRoot/<format>) are set from the arguments; every other field is a
// copy of base.
func Merge(base BaseConfig, format bundle.Format, outputRoot string) bundle.BuildRequest {
	return bundle.BuildRequest{
		EntryPoints:     slices.Clone(base.EntryPoints),
		Format:          format,
		OutputDirectory: OutputDirectory(outputRoot, format),
		ExternalModules: slices.Clone(base.ExternalModules),
		Sourcemap:       base.Sourcemap,
		Bundle:          base.Bundle,
		Platform:        base.Platform,
		Target:          base.Target,
		NodePaths:       slices.Clone(base.NodePaths),
		SourceRoot:      base.SourceRoot,
		SourcesContent:  base.SourcesContent,
		SmokeTest:       base.SmokeTest,
		WorkingDir:      base.WorkingDir,
	}
}

// OutputDirectory is the directory a format is emitted into under outputRoot.
func OutputDirectory(outputRoot string, format bundle.Format) string {
	return path.Join(filepath.ToSlash(outputRoot), format.String())
}

// Validate checks a set of requests before anything is built.
func Validate(requests []bundle.BuildRequest) error {
	for i, req := range requests {
		if len(req.EntryPoints) == 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("%s: no entry points", req.Format)}
		}
		for _, ep := range req.EntryPoints {
			if !isAbs(ep) {
				return &ConfigurationError{Reason: fmt.Sprintf("%s: entry point %q is not absolute", req.Format, ep)}
			}
		}
		if req.OutputDirectory == "" || !isAbs(req.OutputDirectory) {
			return &ConfigurationError{Reason: fmt.Sprintf("%s: output directory %q is not absolute", req.Format, req.OutputDirectory)}
		}
		if err := bundle.CheckEngine(req.Platform, req.Target); err != nil {
			return &ConfigurationError{Reason: err.Error()}
		}
		for _, prev := range requests[:i] {
			a, b := clean(prev.OutputDirectory), clean(req.OutputDirectory)
			switch {
			case a == b:
				return &ConfigurationError{Reason: fmt.Sprintf("%s and %s share output directory %s", prev.Format, req.Format, a)}
			case within(a, b) || within(b, a):
				return &ConfigurationError{Reason: fmt.Sprintf("%s output directory %s overlaps %s output directory %s", prev.Format, a, req.Format, b)}
			}
		}
	}
	return nil
}

func isAbs(p string) bool {
	return filepath.IsAbs(filepath.FromSlash(p))
}

func clean(p string) string {
	return filepath.Clean(filepath.FromSlash(p))
}

// within reports whether child lies strictly inside parent.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
