package analysis

import "fmt"

// ConfigurationError reports an invalid analysis setup: mismatched grids,
// bad time-point ordinals, an empty bounding region or ROI, or malformed
// threshold values. It is always raised before any output is produced.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "analysis: configuration error: " + e.Reason
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// IndexError reports a time-point ordinal outside the sequence range.
type IndexError struct {
	Name   string
	Index  int
	Length int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("analysis: %s index %d out of range for sequence of length %d",
		e.Name, e.Index, e.Length)
}
