package types

import "fmt"

// ConfigurationError is a fatal problem with the directory's configuration, such as a
// malformed integer setting or an unusable collaborator. It aborts the whole run.
type ConfigurationError struct {
	Source string // file or setting that caused the failure
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError wraps err as a fatal configuration error
func NewConfigurationError(source string, err error) error {
	return &ConfigurationError{Source: source, Err: err}
}
