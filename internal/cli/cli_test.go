package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/groove/dualpack/internal/app"
	"github.com/groove/dualpack/internal/bundle"
	"github.com/groove/dualpack/internal/manifest"
	"github.com/groove/dualpack/internal/orchestrator"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name           string
		args           []string
		wantConfig     *app.Config
		wantShouldExit bool
		wantErrCode    int
		wantOutput     string
	}{
		{
			name: "defaults",
			args: []string{},
			wantConfig: &app.Config{
				ManifestPath: manifest.DefaultFile,
				LogLevel:     "info",
				LogFormat:    "auto",
			},
		},
		{
			name: "all flags",
			args: []string{
				"-manifest", "pkg/dualpack.hcl",
				"-root", "pkg",
				"-out", "dist",
				"-external", "path",
				"-external", "fs, os",
				"-smoke",
				"-report", "report.yaml",
				"-metrics-file", "dualpack.prom",
				"-log-level", "DEBUG",
				"-log-format", "json",
			},
			wantConfig: &app.Config{
				ManifestPath:     "pkg/dualpack.hcl",
				ManifestExplicit: true,
				ProjectRoot:      "pkg",
				OutputRoot:       "dist",
				External:         []string{"path", "fs", "os"},
				SmokeTest:        true,
				ReportPath:       "report.yaml",
				MetricsPath:      "dualpack.prom",
				LogLevel:         "debug",
				LogFormat:        "json",
			},
		},
		{
			name:           "help flag",
			args:           []string{"-h"},
			wantShouldExit: true,
			wantOutput:     "dualpack - build CommonJS and ES module outputs side by side.",
		},
		{
			name:        "invalid log level",
			args:        []string{"-log-level", "verbose"},
			wantErrCode: ExitUsage,
		},
		{
			name:        "invalid log format",
			args:        []string{"-log-format", "xml"},
			wantErrCode: ExitUsage,
		},
		{
			name:        "unknown flag",
			args:        []string{"-watch"},
			wantErrCode: ExitUsage,
		},
		{
			name:        "positional argument",
			args:        []string{"src/index.ts"},
			wantErrCode: ExitUsage,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			config, shouldExit, err := Parse(tc.args, &out)

			if tc.wantErrCode != 0 {
				var exitErr *ExitError
				assert.Assert(t, errors.As(err, &exitErr), "got %v", err)
				assert.Equal(t, exitErr.Code, tc.wantErrCode)
				return
			}
			assert.NilError(t, err)
			assert.Equal(t, shouldExit, tc.wantShouldExit)
			if tc.wantOutput != "" {
				assert.Assert(t, is.Contains(out.String(), tc.wantOutput))
			}
			if tc.wantConfig != nil {
				assert.DeepEqual(t, config, tc.wantConfig)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: ExitOK},
		{name: "usage", err: &ExitError{Code: ExitUsage, Message: "bad flag"}, want: ExitUsage},
		{name: "resolution", err: &manifest.ResolutionError{Path: "/p/src/x.ts", Reason: "entry point does not exist"}, want: ExitResolution},
		{name: "manifest", err: &manifest.ConfigurationError{Path: "dualpack.hcl", Err: errors.New("bad")}, want: ExitConfiguration},
		{name: "orchestrator configuration", err: &orchestrator.ConfigurationError{Reason: "overlaps"}, want: ExitConfiguration},
		{name: "build", err: &bundle.BuildError{Format: bundle.FormatCJS}, want: ExitBuildFailure},
		{name: "joined build errors", err: errors.Join(&bundle.BuildError{Format: bundle.FormatCJS}, &bundle.BuildError{Format: bundle.FormatESM}), want: ExitBuildFailure},
		{name: "wrapped resolution", err: fmt.Errorf("run: %w", &manifest.ResolutionError{Reason: "empty entry point"}), want: ExitResolution},
		{name: "artifact", err: &app.ArtifactError{Artifact: "report", Path: "r.yaml", Err: errors.New("denied")}, want: ExitArtifact},
		{name: "build and artifact", err: errors.Join(&bundle.BuildError{Format: bundle.FormatESM}, &app.ArtifactError{Artifact: "metrics"}), want: ExitBuildFailure},
		{name: "other", err: errors.New("disk full"), want: ExitBuildFailure},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, ExitCode(tc.err), tc.want)
		})
	}
}

func TestDescribe(t *testing.T) {
	err := &manifest.ResolutionError{Path: "/p/src/x.ts", Reason: "entry point does not exist"}
	assert.Equal(t, Describe(err), "resolution error: resolve /p/src/x.ts: entry point does not exist")

	joined := errors.Join(&bundle.BuildError{Format: bundle.FormatCJS}, &bundle.BuildError{Format: bundle.FormatESM})
	assert.Equal(t, Describe(joined), "build error: cjs build failed; esm build failed")

	artifact := &app.ArtifactError{Artifact: "metrics", Path: "out.prom", Err: errors.New("permission denied")}
	assert.Equal(t, Describe(artifact), "artifact error: write metrics out.prom: permission denied")
}
