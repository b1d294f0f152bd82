package capture

import (
	"context"
)

type CaptureResult struct {
	Screenshot []byte
	// Format is the screenshot encoding, png or jpeg. Artifact keys take
	// their extension from it.
	Format string
}

// CaptureOptions vary per URL within one capturer's lifetime, unlike the
// capturer-wide browser configuration.
type CaptureOptions struct {
	Headers       map[string]string
	MaskSelectors []string
}

type Capturer interface {
	Capture(ctx context.Context, url string, options CaptureOptions) (*CaptureResult, error)
}
