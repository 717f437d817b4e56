// Package orchestrator builds the CommonJS and ES module outputs of a project
// side by side and joins their outcomes.
package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/groove/dualpack/internal/bundle"
	"github.com/groove/dualpack/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// Recorder observes every completed outcome. It is called from the build
// goroutines and must be safe for concurrent use.
type Recorder interface {
	ObserveOutcome(outcome bundle.BuildOutcome)
}

// Result is the joined outcome of one orchestration run.
type Result struct {
	Outcomes         []bundle.BuildOutcome
	OverallSucceeded bool
}

// Outcome returns the outcome for format.
func (r *Result) Outcome(format bundle.Format) (bundle.BuildOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Format == format {
			return o, true
		}
	}
	return bundle.BuildOutcome{}, false
}

// Err joins the *bundle.BuildError of every failed format.
func (r *Result) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if err := o.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type options struct {
	base       BaseConfig
	outputDirs map[bundle.Format]string
	recorder   Recorder
}

type Option func(*options)

// WithEngine sets the platform and language target shared by both formats.
func WithEngine(platform, target string) Option {
	return func(o *options) {
		o.base.Platform = platform
		o.base.Target = target
	}
}

func WithSourcemaps(enabled bool) Option {
	return func(o *options) { o.base.Sourcemap = enabled }
}

func WithSourcesContent(enabled bool) Option {
	return func(o *options) { o.base.SourcesContent = enabled }
}

func WithSourceRoot(root string) Option {
	return func(o *options) { o.base.SourceRoot = root }
}

func WithBundling(enabled bool) Option {
	return func(o *options) { o.base.Bundle = enabled }
}

func WithNodePaths(paths ...string) Option {
	return func(o *options) { o.base.NodePaths = paths }
}

func WithSmokeTest(enabled bool) Option {
	return func(o *options) { o.base.SmokeTest = enabled }
}

// WithWorkingDir sets the directory the engine resolves relative paths and
// reports diagnostics against.
func WithWorkingDir(dir string) Option {
	return func(o *options) { o.base.WorkingDir = dir }
}

// WithOutputDirectory overrides the outputRoot/<format> directory for one
// format.
func WithOutputDirectory(format bundle.Format, dir string) Option {
	return func(o *options) { o.outputDirs[format] = filepath.ToSlash(dir) }
}

func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func defaultOptions() *options {
	return &options{
		base: BaseConfig{
			Sourcemap:      true,
			Bundle:         true,
			Platform:       "node",
			Target:         "esnext",
			SourcesContent: true,
		},
		outputDirs: map[bundle.Format]string{},
	}
}

// Requests derives and validates the per-format requests without building
// anything.
func Requests(entryPoints, externalModules []string, outputRoot string, opts ...Option) ([]bundle.BuildRequest, error) {
	_, requests, err := prepare(entryPoints, externalModules, outputRoot, opts)
	return requests, err
}

func prepare(entryPoints, externalModules []string, outputRoot string, opts []Option) (*options, []bundle.BuildRequest, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if !isAbs(outputRoot) {
		return nil, nil, &ConfigurationError{Reason: "output root " + outputRoot + " is not absolute"}
	}

	base := o.base
	base.EntryPoints = entryPoints
	base.ExternalModules = externalModules

	requests := make([]bundle.BuildRequest, 0, len(bundle.Formats))
	for _, format := range bundle.Formats {
		req := Merge(base, format, outputRoot)
		if dir, ok := o.outputDirs[format]; ok {
			req.OutputDirectory = dir
		}
		requests = append(requests, req)
	}
	if err := Validate(requests); err != nil {
		return nil, nil, err
	}
	return o, requests, nil
}

// Orchestrate builds both formats of entryPoints concurrently and waits for
// both. A failing format never prevents the other from completing; its
// failure is reported in the returned Result. The error return is reserved
// for configuration problems found before any build starts.
func Orchestrate(ctx context.Context, bundler bundle.Bundler, entryPoints, externalModules []string, outputRoot string, opts ...Option) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	o, requests, err := prepare(entryPoints, externalModules, outputRoot, opts)
	if err != nil {
		return nil, err
	}

	outcomes := make([]bundle.BuildOutcome, len(requests))
	var g errgroup.Group
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			outcomes[i] = execute(ctx, bundler, req)
			if o.recorder != nil {
				o.recorder.ObserveOutcome(outcomes[i])
			}
			logger.Info("Format built.",
				"format", req.Format.String(),
				"succeeded", outcomes[i].Succeeded,
				"files", len(outcomes[i].EmittedFiles),
				"duration", outcomes[i].Duration,
			)
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Outcomes: outcomes, OverallSucceeded: true}
	for _, outcome := range outcomes {
		if !outcome.Succeeded {
			result.OverallSucceeded = false
		}
	}
	return result, nil
}

func execute(ctx context.Context, bundler bundle.Bundler, req bundle.BuildRequest) bundle.BuildOutcome {
	start := time.Now()
	outcome, err := bundler.Bundle(ctx, req)
	if err != nil {
		outcome.Succeeded = false
		outcome.Diagnostics = append(outcome.Diagnostics, bundle.Diagnostic{
			Severity: bundle.SeverityError,
			Kind:     bundle.KindBuild,
			Message:  err.Error(),
		})
	}
	outcome.Format = req.Format
	outcome.OutputDirectory = req.OutputDirectory
	if bundle.HasErrors(outcome.Diagnostics) {
		outcome.Succeeded = false
	}
	if outcome.Duration == 0 {
		outcome.Duration = time.Since(start)
	}
	return outcome
}
