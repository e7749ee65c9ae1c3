package services

import "fmt"

// ValidationError marks caller mistakes (bad ids, out-of-range thresholds)
// that are rejected before any state change. Handlers map it to 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ImageSource provides image bytes for engine calls: face crops for uploads
// and pairwise comparison, whole images for recognition. media.CropLoader is
// the file-backed implementation; tests substitute stubs.
type ImageSource interface {
	FaceCrop(relativePath string, xMin, yMin, xMax, yMax int) ([]byte, error)
	FullImage(relativePath string) ([]byte, error)
}
