package manifest

import "fmt"

// ResolutionError reports a project root or entry point that cannot be found
// on disk. It is fatal and raised before any build starts.
type ResolutionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve %s: %s", e.Path, e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a manifest that cannot be read or decoded.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
