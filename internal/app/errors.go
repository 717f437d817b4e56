package app

import "fmt"

// ArtifactError reports a run artifact (the report or the metrics file) that
// could not be written after the builds finished.
type ArtifactError struct {
	Artifact string
	Path     string
	Err      error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("write %s %s: %v", e.Artifact, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}
