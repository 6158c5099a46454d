package pipeline

import "fmt"

// ValidationError reports a malformed context shape at a stage boundary.
// Fatal to the run and surfaced to the caller unchanged.
type ValidationError struct {
	Processor string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("processor [%s] validation failed: %s", e.Processor, e.Reason)
}

// ProcessorError wraps any failure raised inside a stage's transform logic.
type ProcessorError struct {
	Processor string
	Reason    string
	Err       error
}

func (e *ProcessorError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("processor [%s] %s", e.Processor, e.Reason)
	}
	return fmt.Sprintf("processor [%s] %s: %v", e.Processor, e.Reason, e.Err)
}

// Unwrap returns the original cause.
func (e *ProcessorError) Unwrap() error { return e.Err }
