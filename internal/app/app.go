// Package app wires the manifest, resolver, orchestrator and reporting
// together into one packaging run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/groove/dualpack/internal/bundle"
	"github.com/groove/dualpack/internal/ctxlog"
	"github.com/groove/dualpack/internal/manifest"
	"github.com/groove/dualpack/internal/metrics"
	"github.com/groove/dualpack/internal/orchestrator"
	"github.com/groove/dualpack/internal/report"
)

// Config holds everything a run needs from the command line. Empty fields
// fall back to the manifest.
type Config struct {
	ManifestPath     string
	ManifestExplicit bool
	ProjectRoot      string
	OutputRoot       string
	External         []string
	SmokeTest        bool
	ReportPath       string
	MetricsPath      string
	LogLevel         string
	LogFormat        string
}

type App struct {
	errW    io.Writer
	logger  *slog.Logger
	config  *Config
	bundler bundle.Bundler
}

// NewApp creates an App that logs and prints diagnostics to errW. A nil
// bundler selects esbuild.
func NewApp(errW io.Writer, config *Config, bundler bundle.Bundler) *App {
	if bundler == nil {
		bundler = bundle.NewEsbuild()
	}
	return &App{
		errW:    errW,
		logger:  newLogger(config.LogLevel, config.LogFormat, errW),
		config:  config,
		bundler: bundler,
	}
}

// Run performs one packaging run. Every diagnostic of both formats is printed
// before Run returns. The returned error is a *manifest.ResolutionError,
// a configuration error, the joined *bundle.BuildError values of the
// failed formats, or an *ArtifactError for a report or metrics file that
// could not be written.
func (a *App) Run(ctx context.Context) (*orchestrator.Result, error) {
	runID := uuid.New().String()
	logger := a.logger.With("run_id", runID)
	ctx = ctxlog.WithLogger(ctx, logger)
	startedAt := time.Now()

	m, err := manifest.Load(ctx, a.config.ManifestPath, a.config.ManifestExplicit)
	if err != nil {
		return nil, err
	}
	if a.config.ProjectRoot != "" {
		m.Reroot(a.config.ProjectRoot)
	}
	if a.config.OutputRoot != "" {
		m.OutputRoot = manifest.Normalize(a.config.OutputRoot, "")
	}
	m.MergeExternal(a.config.External...)

	entryPoints, err := manifest.Resolve(m.ProjectRoot, m.EntryPoints)
	if err != nil {
		return nil, err
	}
	logger.Info("Entry points resolved.", "project_root", m.ProjectRoot, "entry_points", entryPoints, "external", m.External)

	opts := []orchestrator.Option{
		orchestrator.WithEngine(m.Engine.Platform, m.Engine.Target),
		orchestrator.WithBundling(m.Engine.Bundle),
		orchestrator.WithSourcemaps(m.Engine.Sourcemap),
		orchestrator.WithSourcesContent(m.Engine.SourcesContent),
		orchestrator.WithSourceRoot(m.Engine.SourceRoot),
		orchestrator.WithNodePaths(m.NodePaths...),
		orchestrator.WithSmokeTest(a.config.SmokeTest),
		orchestrator.WithWorkingDir(m.ProjectRoot),
	}
	for name, dir := range m.OutputDirs {
		format, err := bundle.ParseFormat(name)
		if err != nil {
			return nil, &orchestrator.ConfigurationError{Reason: fmt.Sprintf("output_dirs: %v", err)}
		}
		opts = append(opts, orchestrator.WithOutputDirectory(format, dir))
	}
	var recorder *metrics.PrometheusRecorder
	if a.config.MetricsPath != "" {
		recorder = metrics.NewPrometheusRecorder()
		opts = append(opts, orchestrator.WithRecorder(recorder))
	}

	result, err := orchestrator.Orchestrate(ctx, a.bundler, entryPoints, m.External, m.OutputRoot, opts...)
	if err != nil {
		return nil, err
	}
	PrintDiagnostics(a.errW, result)

	var artifactErrs []error
	if a.config.ReportPath != "" {
		if err := report.New(runID, startedAt, time.Now(), result).WriteFile(a.config.ReportPath); err != nil {
			artifactErrs = append(artifactErrs, &ArtifactError{Artifact: "report", Path: a.config.ReportPath, Err: err})
		} else {
			logger.Debug("Report written.", "path", a.config.ReportPath)
		}
	}
	if recorder != nil {
		if err := recorder.WriteTextfile(a.config.MetricsPath); err != nil {
			artifactErrs = append(artifactErrs, &ArtifactError{Artifact: "metrics", Path: a.config.MetricsPath, Err: err})
		} else {
			logger.Debug("Metrics written.", "path", a.config.MetricsPath)
		}
	}

	if !result.OverallSucceeded {
		logger.Error("Packaging failed.", "duration", time.Since(startedAt))
		return result, errors.Join(append([]error{result.Err()}, artifactErrs...)...)
	}
	if len(artifactErrs) > 0 {
		logger.Error("Packaging finished but artifacts were not written.", "duration", time.Since(startedAt))
		return result, errors.Join(artifactErrs...)
	}
	logger.Info("Packaging finished.", "duration", time.Since(startedAt))
	return result, nil
}

// PrintDiagnostics writes every diagnostic of every outcome to w, one per
// line, prefixed with the format it belongs to.
func PrintDiagnostics(w io.Writer, result *orchestrator.Result) {
	for _, o := range result.Outcomes {
		for _, d := range o.Diagnostics {
			fmt.Fprintf(w, "[%s] %s\n", o.Format, d)
		}
		status := "ok"
		if !o.Succeeded {
			status = "FAILED"
		}
		fmt.Fprintf(w, "[%s] %s: %d files in %s\n", o.Format, status, len(o.EmittedFiles), o.OutputDirectory)
	}
}
