package detect

import (
	"context"
	"image"

	"vigil/internal/model"
)

// UnknownLabel is the sentinel a behaviour window reports until it fills.
const UnknownLabel = "unknown"

// Detector finds persons in one frame. Implementations may be slow; they
// must not mutate the image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]model.Detection, error)
}

// Analyzer extracts demographic attributes from one detected region.
// Failures degrade to missing attributes, never abort a frame.
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image, box model.BoundingBox) (model.Attributes, error)
}

// Predictor classifies a complete clip window. The stateful sliding-window
// form lives in Window, which owns its own buffer per stream.
type Predictor interface {
	Predict(ctx context.Context, frames []image.Image) (label string, confidence float64, err error)
}
