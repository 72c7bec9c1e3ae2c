package detect

import (
	"context"
	"errors"
	"image"
)

// Window is the behaviour classifier's fixed-capacity clip buffer. One
// window exists per stream so clips never mix frames from different
// cameras.
type Window struct {
	size   int
	frames []image.Image
	next   int
	count  int
	pred   Predictor
}

func NewWindow(size int, pred Predictor) *Window {
	if size <= 0 {
		size = 16
	}
	return &Window{
		size:   size,
		frames: make([]image.Image, size),
		pred:   pred,
	}
}

// Update appends one frame and, once the window is full, classifies the
// current clip. Before that it reports the unknown sentinel.
func (w *Window) Update(ctx context.Context, frame image.Image) (string, float64, error) {
	w.frames[w.next] = frame
	w.next = (w.next + 1) % w.size
	if w.count < w.size {
		w.count++
	}
	if w.count < w.size {
		return UnknownLabel, 0, nil
	}
	return w.pred.Predict(ctx, w.ordered())
}

// Predict is the stateless form: classify an explicit clip of exactly
// window size.
func (w *Window) Predict(ctx context.Context, frames []image.Image) (string, float64, error) {
	if len(frames) < w.size {
		return "", 0, errors.New("not enough frames for clip window")
	}
	return w.pred.Predict(ctx, frames)
}

// Size reports the clip length the window requires.
func (w *Window) Size() int {
	return w.size
}

// ordered returns the buffered frames oldest first.
func (w *Window) ordered() []image.Image {
	out := make([]image.Image, 0, w.size)
	for i := 0; i < w.size; i++ {
		out = append(out, w.frames[(w.next+i)%w.size])
	}
	return out
}
