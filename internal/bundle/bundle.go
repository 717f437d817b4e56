// Package bundle defines the build request/outcome model shared by both
// output formats and the Bundler collaborator that turns a request into
// emitted files. Esbuild is the production implementation.
package bundle

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Format int

const (
	FormatCJS Format = iota
	FormatESM
)

// Formats lists every output format in the order outcomes are reported.
var Formats = []Format{FormatCJS, FormatESM}

func (f Format) String() string {
	switch f {
	case FormatCJS:
		return "cjs"
	case FormatESM:
		return "esm"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "cjs", "commonjs":
		return FormatCJS, nil
	case "esm", "esmodule":
		return FormatESM, nil
	}
	return 0, fmt.Errorf("unknown output format %q", s)
}

// BuildRequest is everything the engine needs to produce one output tree.
// Two requests in the same run differ only in Format and OutputDirectory.
type BuildRequest struct {
	EntryPoints     []string
	Format          Format
	OutputDirectory string
	ExternalModules []string
	Sourcemap       bool

	Bundle         bool
	Platform       string
	Target         string
	NodePaths      []string
	SourceRoot     string
	SourcesContent bool
	SmokeTest      bool
	WorkingDir     string
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Kind string

const (
	KindResolution    Kind = "resolution"
	KindConfiguration Kind = "configuration"
	KindBuild         Kind = "build"
	KindSourcemap     Kind = "sourcemap"
	KindSmoke         Kind = "smoke"
)

type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Message  string
	File     string
	Line     int
	Column   int
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.File != "" {
		b.WriteString(d.File)
		if d.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", d.Line, d.Column)
		}
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%s %s: %s", d.Kind, d.Severity, d.Message)
	return b.String()
}

// BuildOutcome is the immutable result of one BuildRequest.
type BuildOutcome struct {
	Format              Format
	Succeeded           bool
	OutputDirectory     string
	EmittedFiles        []string
	Diagnostics         []Diagnostic
	ReferencedExternals []string
	Duration            time.Duration
}

// Err returns a *BuildError for a failed outcome and nil otherwise.
func (o BuildOutcome) Err() error {
	if o.Succeeded {
		return nil
	}
	return &BuildError{Format: o.Format, Diagnostics: o.Errors()}
}

// Errors returns the error-severity diagnostics.
func (o BuildOutcome) Errors() []Diagnostic {
	var errs []Diagnostic
	for _, d := range o.Diagnostics {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// BuildError is the failure of a single format. It never aborts the sibling
// format's build.
type BuildError struct {
	Format      Format
	Diagnostics []Diagnostic
}

func (e *BuildError) Error() string {
	switch len(e.Diagnostics) {
	case 0:
		return fmt.Sprintf("%s build failed", e.Format)
	case 1:
		return fmt.Sprintf("%s build failed: %s", e.Format, e.Diagnostics[0].Message)
	}
	return fmt.Sprintf("%s build failed: %s (and %d more errors)", e.Format, e.Diagnostics[0].Message, len(e.Diagnostics)-1)
}

// Bundler compiles one request into files under its output directory.
// Compilation failures are reported through the returned outcome; a non-nil
// error means the request could not be attempted at all.
type Bundler interface {
	Bundle(ctx context.Context, req BuildRequest) (BuildOutcome, error)
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
