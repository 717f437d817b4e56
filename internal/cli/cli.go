package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/groove/dualpack/internal/app"
	"github.com/groove/dualpack/internal/bundle"
	"github.com/groove/dualpack/internal/manifest"
	"github.com/groove/dualpack/internal/orchestrator"
)

const (
	ExitOK            = 0
	ExitBuildFailure  = 1
	ExitUsage         = 2
	ExitResolution    = 3
	ExitConfiguration = 4
	ExitArtifact      = 5
)

// ExitError is an error that carries the process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	for _, name := range strings.Split(v, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*s = append(*s, name)
		}
	}
	return nil
}

// Parse processes command-line arguments. It returns the app configuration,
// whether the program should exit cleanly (help was printed), or an
// *ExitError for invalid usage.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("dualpack", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
dualpack - build CommonJS and ES module outputs side by side.

Usage:
  dualpack [options]

With no options, dualpack reads ./dualpack.hcl when present and otherwise
builds src/index.ts into build/cjs and build/esm.

Options:
`)
		flagSet.PrintDefaults()
	}

	var externals stringList
	manifestFlag := flagSet.String("manifest", "", "Path to the manifest file. Defaults to ./"+manifest.DefaultFile+" when present.")
	rootFlag := flagSet.String("root", "", "Project root. Overrides the manifest; output and node paths under the manifest root move with it.")
	outFlag := flagSet.String("out", "", "Output root; formats are written to <out>/cjs and <out>/esm. Overrides the manifest.")
	flagSet.Var(&externals, "external", "Module to leave unresolved in the output. Repeatable or comma-separated.")
	smokeFlag := flagSet.Bool("smoke", false, "Load emitted CommonJS entry points in an embedded JS runtime.")
	reportFlag := flagSet.String("report", "", "Write a YAML build report to this path.")
	metricsFlag := flagSet.String("metrics-file", "", "Write Prometheus metrics in textfile format to this path.")
	logLevelFlag := flagSet.String("log-level", "info", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	logFormatFlag := flagSet.String("log-format", "auto", "Log format: 'auto', 'text' or 'json'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("unexpected argument %q", flagSet.Arg(0))}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	logFormat := strings.ToLower(*logFormatFlag)
	switch logFormat {
	case "auto", "text", "json":
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'auto', 'text' or 'json'"}
	}

	config := &app.Config{
		ManifestPath:     *manifestFlag,
		ManifestExplicit: *manifestFlag != "",
		ProjectRoot:      *rootFlag,
		OutputRoot:       *outFlag,
		External:         externals,
		SmokeTest:        *smokeFlag,
		ReportPath:       *reportFlag,
		MetricsPath:      *metricsFlag,
		LogLevel:         logLevel,
		LogFormat:        logFormat,
	}
	if config.ManifestPath == "" {
		config.ManifestPath = manifest.DefaultFile
	}
	return config, false, nil
}

// ExitCode maps an error returned by a run to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	var resolutionErr *manifest.ResolutionError
	var manifestErr *manifest.ConfigurationError
	var configErr *orchestrator.ConfigurationError
	var buildErr *bundle.BuildError
	var artifactErr *app.ArtifactError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.As(err, &resolutionErr):
		return ExitResolution
	case errors.As(err, &manifestErr), errors.As(err, &configErr):
		return ExitConfiguration
	case errors.As(err, &buildErr):
		return ExitBuildFailure
	case errors.As(err, &artifactErr):
		return ExitArtifact
	}
	return ExitBuildFailure
}

// Describe labels err with its failure class for the final message.
func Describe(err error) string {
	switch ExitCode(err) {
	case ExitResolution:
		return "resolution error: " + err.Error()
	case ExitConfiguration:
		return "configuration error: " + err.Error()
	case ExitUsage:
		return "usage error: " + err.Error()
	case ExitArtifact:
		return "artifact error: " + strings.ReplaceAll(err.Error(), "\n", "; ")
	}
	var buildErr *bundle.BuildError
	if errors.As(err, &buildErr) {
		return "build error: " + strings.ReplaceAll(err.Error(), "\n", "; ")
	}
	return "error: " + err.Error()
}
