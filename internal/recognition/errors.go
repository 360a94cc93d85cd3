package recognition

import "fmt"

// InitializationError is returned when the engine could not be constructed.
// The manager stays Uninitialized and the call can be retried.
type InitializationError struct {
	Cause error
}

func (e *InitializationError) Error() string {
	return "OCR service is still loading. Please wait a moment and try again."
}

func (e *InitializationError) Unwrap() error { return e.Cause }

// ExtractionError is returned when the engine failed on a given image.
// The manager stays Ready.
type ExtractionError struct {
	Cause error
}

func (e *ExtractionError) Error() string {
	return "Failed to extract text. Please try with a different image."
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// LifecycleError is returned for any operation after Cleanup.
type LifecycleError struct {
	Op string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("OCR session has ended (%s after cleanup). Please start a new session.", e.Op)
}

// ConcurrencyError is returned when an extraction is already in flight.
type ConcurrencyError struct{}

func (e *ConcurrencyError) Error() string {
	return "An extraction is already running. Please wait for it to finish."
}
