package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/groove/dualpack/internal/ctxlog"
	"github.com/groove/dualpack/internal/smoke"
	"github.com/groove/dualpack/internal/sourcemap"
)

var platforms = map[string]api.Platform{
	"node":    api.PlatformNode,
	"browser": api.PlatformBrowser,
	"neutral": api.PlatformNeutral,
}

var targets = map[string]api.Target{
	"esnext": api.ESNext,
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
}

// CheckEngine reports whether platform and target name settings the engine
// understands. Empty values select the defaults.
func CheckEngine(platform, target string) error {
	if _, ok := platforms[strings.ToLower(platform)]; platform != "" && !ok {
		return fmt.Errorf("unknown platform %q", platform)
	}
	if _, ok := targets[strings.ToLower(target)]; target != "" && !ok {
		return fmt.Errorf("unknown target %q", target)
	}
	return nil
}

// Esbuild is the Bundler backed by esbuild's Go API. It keeps no state
// between calls and is safe for concurrent use.
type Esbuild struct{}

func NewEsbuild() *Esbuild {
	return &Esbuild{}
}

func (e *Esbuild) Bundle(ctx context.Context, req BuildRequest) (BuildOutcome, error) {
	logger := ctxlog.FromContext(ctx).With("format", req.Format.String())
	start := time.Now()

	outcome := BuildOutcome{
		Format:          req.Format,
		OutputDirectory: req.OutputDirectory,
	}
	finish := func() (BuildOutcome, error) {
		outcome.Duration = time.Since(start)
		outcome.Succeeded = !HasErrors(outcome.Diagnostics)
		return outcome, nil
	}

	opts, ext, err := buildOptions(req)
	if err != nil {
		outcome.Diagnostics = append(outcome.Diagnostics, Diagnostic{
			Severity: SeverityError,
			Kind:     KindConfiguration,
			Message:  err.Error(),
		})
		return finish()
	}

	buildCtx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		outcome.Diagnostics = append(outcome.Diagnostics, convertMessages(ctxErr.Errors, SeverityError)...)
		return finish()
	}
	defer buildCtx.Dispose()

	stop := context.AfterFunc(ctx, buildCtx.Cancel)
	defer stop()

	logger.Debug("Bundling.", "entry_points", len(req.EntryPoints), "out", req.OutputDirectory)
	result := buildCtx.Rebuild()
	if err := ctx.Err(); err != nil {
		outcome.Diagnostics = append(outcome.Diagnostics, Diagnostic{
			Severity: SeverityError,
			Kind:     KindBuild,
			Message:  fmt.Sprintf("build cancelled: %v", err),
		})
		return finish()
	}

	outcome.Diagnostics = append(outcome.Diagnostics, convertMessages(result.Errors, SeverityError)...)
	outcome.Diagnostics = append(outcome.Diagnostics, convertMessages(result.Warnings, SeverityWarning)...)
	if len(result.Errors) > 0 {
		for _, msg := range api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage}) {
			logger.Debug(strings.TrimSpace(msg))
		}
		return finish()
	}

	if len(result.OutputFiles) == 0 {
		outcome.Diagnostics = append(outcome.Diagnostics, Diagnostic{
			Severity: SeverityError,
			Kind:     KindBuild,
			Message:  "bundle produced no output files",
		})
		return finish()
	}

	files, diags, err := writeOutputs(req, result.OutputFiles)
	outcome.EmittedFiles = files
	outcome.Diagnostics = append(outcome.Diagnostics, diags...)
	if err != nil {
		outcome.Diagnostics = append(outcome.Diagnostics, Diagnostic{
			Severity: SeverityError,
			Kind:     KindBuild,
			Message:  err.Error(),
		})
		return finish()
	}

	outcome.ReferencedExternals = ext.referenced()
	for _, name := range ext.unused() {
		outcome.Diagnostics = append(outcome.Diagnostics, Diagnostic{
			Severity: SeverityWarning,
			Kind:     KindBuild,
			Message:  fmt.Sprintf("external module %q is never imported", name),
		})
	}

	if req.SmokeTest && req.Format == FormatCJS {
		outcome.Diagnostics = append(outcome.Diagnostics, smokeTest(req, result.Metafile)...)
	}

	logger.Debug("Bundle written.", "files", len(outcome.EmittedFiles), "externals", outcome.ReferencedExternals)
	return finish()
}

func buildOptions(req BuildRequest) (api.BuildOptions, *externals, error) {
	if err := CheckEngine(req.Platform, req.Target); err != nil {
		return api.BuildOptions{}, nil, err
	}
	platform := api.PlatformNode
	if req.Platform != "" {
		platform = platforms[strings.ToLower(req.Platform)]
	}
	target := api.ESNext
	if req.Target != "" {
		target = targets[strings.ToLower(req.Target)]
	}

	format := api.FormatCommonJS
	if req.Format == FormatESM {
		format = api.FormatESModule
	}

	sourceMap := api.SourceMapNone
	if req.Sourcemap {
		sourceMap = api.SourceMapLinked
	}
	sourcesContent := api.SourcesContentExclude
	if req.SourcesContent {
		sourcesContent = api.SourcesContentInclude
	}

	workingDir := req.WorkingDir
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return api.BuildOptions{}, nil, err
		}
		workingDir = wd
	}

	entryPoints := make([]string, len(req.EntryPoints))
	for i, p := range req.EntryPoints {
		entryPoints[i] = filepath.FromSlash(p)
	}
	nodePaths := make([]string, len(req.NodePaths))
	for i, p := range req.NodePaths {
		nodePaths[i] = filepath.FromSlash(p)
	}

	ext := newExternals(req.ExternalModules)
	return api.BuildOptions{
		AbsWorkingDir:  filepath.FromSlash(workingDir),
		EntryPoints:    entryPoints,
		Outdir:         filepath.FromSlash(req.OutputDirectory),
		Bundle:         req.Bundle,
		Write:          false,
		Metafile:       true,
		LogLevel:       api.LogLevelSilent,
		Format:         format,
		Platform:       platform,
		Target:         target,
		NodePaths:      nodePaths,
		Sourcemap:      sourceMap,
		SourcesContent: sourcesContent,
		Plugins:        []api.Plugin{ext.plugin()},
	}, ext, nil
}

// writeOutputs writes every output file into place, rewriting sourcemaps on
// the way, and returns the sorted list of written paths.
func writeOutputs(req BuildRequest, outputs []api.OutputFile) ([]string, []Diagnostic, error) {
	var diags []Diagnostic
	files := make([]string, 0, len(outputs))
	for _, f := range outputs {
		contents := f.Contents
		if strings.HasSuffix(f.Path, ".map") {
			rewritten, err := sourcemap.Rewrite(f.Path, contents, req.SourceRoot)
			if err != nil {
				return files, diags, err
			}
			contents = rewritten
			if req.SourceRoot == "" {
				diags = append(diags, checkLinkage(f.Path, contents)...)
			}
		}

		if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return files, diags, fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(f.Path, contents, 0o644); err != nil {
			return files, diags, fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
		files = append(files, filepath.ToSlash(f.Path))
	}
	sort.Strings(files)
	return files, diags, nil
}

func checkLinkage(mapPath string, mapData []byte) []Diagnostic {
	linkage, err := sourcemap.Verify(mapPath, mapData)
	if err != nil {
		return []Diagnostic{{
			Severity: SeverityWarning,
			Kind:     KindSourcemap,
			Message:  err.Error(),
			File:     filepath.ToSlash(mapPath),
		}}
	}
	var diags []Diagnostic
	for _, missing := range linkage.Missing {
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			Kind:     KindSourcemap,
			Message:  fmt.Sprintf("source %s does not exist", missing),
			File:     filepath.ToSlash(mapPath),
		})
	}
	return diags
}

type metafile struct {
	Outputs map[string]struct {
		EntryPoint string `json:"entryPoint"`
		Imports    []struct {
			Path     string `json:"path"`
			External bool   `json:"external"`
		} `json:"imports"`
	} `json:"outputs"`
}

// smokeTest loads every entry output of a CommonJS build. Imports left
// external by the bundle, including platform built-ins, are stubbed.
func smokeTest(req BuildRequest, meta string) []Diagnostic {
	var m metafile
	if err := json.Unmarshal([]byte(meta), &m); err != nil {
		return []Diagnostic{{Severity: SeverityError, Kind: KindSmoke, Message: fmt.Sprintf("invalid metafile: %v", err)}}
	}

	workingDir := req.WorkingDir
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}

	keys := make([]string, 0, len(m.Outputs))
	for key := range m.Outputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var diags []Diagnostic
	for _, key := range keys {
		out := m.Outputs[key]
		if out.EntryPoint == "" || !strings.HasSuffix(key, ".js") {
			continue
		}
		var modules []string
		for _, imp := range out.Imports {
			if imp.External {
				modules = append(modules, imp.Path)
			}
		}
		file := key
		if !filepath.IsAbs(file) {
			file = filepath.Join(filepath.FromSlash(workingDir), filepath.FromSlash(key))
		}
		if err := smoke.Load(file, modules); err != nil {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Kind:     KindSmoke,
				Message:  err.Error(),
				File:     filepath.ToSlash(file),
			})
		}
	}
	return diags
}

func convertMessages(msgs []api.Message, severity Severity) []Diagnostic {
	diags := make([]Diagnostic, 0, len(msgs))
	for _, msg := range msgs {
		d := Diagnostic{
			Severity: severity,
			Kind:     KindBuild,
			Message:  msg.Text,
		}
		if msg.PluginName != "" {
			d.Message = fmt.Sprintf("[plugin %s] %s", msg.PluginName, msg.Text)
		}
		if loc := msg.Location; loc != nil {
			d.File = filepath.ToSlash(loc.File)
			d.Line = loc.Line
			d.Column = loc.Column
		}
		diags = append(diags, d)
	}
	return diags
}
