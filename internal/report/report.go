// Package report writes a YAML summary of an orchestration run.
package report

import (
	"fmt"
	"os"
	"time"

	"github.com/groove/dualpack/internal/bundle"
	"github.com/groove/dualpack/internal/orchestrator"
	"gopkg.in/yaml.v3"
)

type Report struct {
	RunID      string    `yaml:"run_id"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	Succeeded  bool      `yaml:"succeeded"`
	Outcomes   []Outcome `yaml:"outcomes"`
}

type Outcome struct {
	Format              string       `yaml:"format"`
	Succeeded           bool         `yaml:"succeeded"`
	OutputDirectory     string       `yaml:"output_directory"`
	Duration            string       `yaml:"duration"`
	EmittedFiles        []string     `yaml:"emitted_files"`
	ReferencedExternals []string     `yaml:"referenced_externals,omitempty"`
	Diagnostics         []Diagnostic `yaml:"diagnostics,omitempty"`
}

type Diagnostic struct {
	Severity string `yaml:"severity"`
	Kind     string `yaml:"kind"`
	Message  string `yaml:"message"`
	File     string `yaml:"file,omitempty"`
	Line     int    `yaml:"line,omitempty"`
	Column   int    `yaml:"column,omitempty"`
}

func New(runID string, startedAt, finishedAt time.Time, result *orchestrator.Result) *Report {
	r := &Report{
		RunID:      runID,
		StartedAt:  startedAt.UTC(),
		FinishedAt: finishedAt.UTC(),
		Succeeded:  result.OverallSucceeded,
		Outcomes:   make([]Outcome, 0, len(result.Outcomes)),
	}
	for _, o := range result.Outcomes {
		r.Outcomes = append(r.Outcomes, newOutcome(o))
	}
	return r
}

func newOutcome(o bundle.BuildOutcome) Outcome {
	out := Outcome{
		Format:              o.Format.String(),
		Succeeded:           o.Succeeded,
		OutputDirectory:     o.OutputDirectory,
		Duration:            o.Duration.Round(time.Millisecond).String(),
		EmittedFiles:        o.EmittedFiles,
		ReferencedExternals: o.ReferencedExternals,
	}
	if out.EmittedFiles == nil {
		out.EmittedFiles = []string{}
	}
	for _, d := range o.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, Diagnostic{
			Severity: string(d.Severity),
			Kind:     string(d.Kind),
			Message:  d.Message,
			File:     d.File,
			Line:     d.Line,
			Column:   d.Column,
		})
	}
	return out
}

// WriteFile writes the report to path as YAML.
func (r *Report) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}
