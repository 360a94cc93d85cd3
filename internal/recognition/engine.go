package recognition

import (
	"context"
	"strings"
)

// PhaseRecognizing is the only engine phase that drives progress events.
const PhaseRecognizing = "recognizing"

// DefaultLanguage is the tesseract language code used when none is configured.
const DefaultLanguage = "eng"

// Image is an encoded image held in memory. Callers must not mutate Data
// once it has been handed to an extraction.
type Image struct {
	Data []byte
	MIME string
}

// Status is a progress report from the engine. Progress is a fraction in [0,1].
type Status struct {
	Phase    string
	Progress float64
}

// Engine is a constructed recognition engine. Implementations are not
// required to be reentrant; the Manager never calls Recognize concurrently.
type Engine interface {
	Recognize(ctx context.Context, img Image, report func(Status)) (string, error)
	Terminate() error
}

// Factory constructs an engine for the given language.
type Factory func(ctx context.Context, lang string) (Engine, error)

// IsNoText reports whether a successful recognition produced no usable text.
func IsNoText(text string) bool {
	return strings.TrimSpace(text) == ""
}
