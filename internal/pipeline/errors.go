package pipeline

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrOCRUnavailable marks a missing OCR engine. Text extractors wrap it so
	// the orchestrator can degrade to a partial metric.
	ErrOCRUnavailable = errors.New("ocr engine unavailable")
	ErrSourceMissing  = errors.New("capture source missing")
	ErrPanic          = errors.New("pipeline panic")
	ErrCanceled       = errors.New("pipeline canceled")
)
