package image

import (
	"errors"
	"image"
)

// DefaultThreshold is the comparison sensitivity applied when callers do
// not choose one. Lower values flag smaller color differences.
const DefaultThreshold = 0.1

var (
	// DimensionMismatchError is returned by Calculate when the two images
	// do not share the same dimensions. Callers must run Normalize first.
	DimensionMismatchError = errors.New("dimension mismatch")
	// ThresholdRangeError is returned when a threshold lies outside [0, 1].
	ThresholdRangeError = errors.New("threshold out of range")
)

type DiffResult struct {
	Image          *image.NRGBA
	DiffPixelCount int
	DiffAmount     float64
}

type Differ interface {
	Calculate(baseline *image.NRGBA, target *image.NRGBA) (*DiffResult, error)
}
