package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrNoText is recorded on a Result when no strategy produced usable text.
	ErrNoText = errors.New("no extractable text")

	// ErrEmptyOutput marks a strategy that ran but returned only blank pages.
	ErrEmptyOutput = errors.New("strategy produced no text")

	// ErrOCRFailed is returned when no page could be recognized.
	ErrOCRFailed = errors.New("ocr failed")
)

// MethodFailure records one extraction strategy that failed. The cascade
// moves on to the next strategy when it sees one.
type MethodFailure struct {
	Method string
	Err    error
}

func (f *MethodFailure) Error() string {
	return fmt.Sprintf("extraction method %s failed: %v", f.Method, f.Err)
}

func (f *MethodFailure) Unwrap() error { return f.Err }
