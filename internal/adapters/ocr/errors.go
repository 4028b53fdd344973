package ocr

import "errors"

// ErrExtract is returned when the engine runs but fails.
var ErrExtract = errors.New("ocr extraction failed")
