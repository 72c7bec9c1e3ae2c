package detect

import (
	"context"
	"image"
	"testing"
)

type fakePredictor struct {
	label string
	conf  float64
	calls int
	last  []image.Image
}

func (p *fakePredictor) Predict(ctx context.Context, frames []image.Image) (string, float64, error) {
	p.calls++
	p.last = frames
	return p.label, p.conf, nil
}

func frameOfWidth(w int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, 1))
}

func TestWindowSentinelUntilFull(t *testing.T) {
	pred := &fakePredictor{label: "smoking", conf: 0.75}
	w := NewWindow(16, pred)
	ctx := context.Background()

	for i := 1; i <= 15; i++ {
		label, conf, err := w.Update(ctx, frameOfWidth(i))
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if label != UnknownLabel || conf != 0 {
			t.Fatalf("frame %d: expected sentinel before window fills, got %q/%v", i, label, conf)
		}
	}
	if pred.calls != 0 {
		t.Fatalf("predictor called before window filled: %d", pred.calls)
	}

	label, conf, err := w.Update(ctx, frameOfWidth(16))
	if err != nil {
		t.Fatal(err)
	}
	if label != "smoking" || conf != 0.75 {
		t.Fatalf("expected smoking/0.75 on frame 16, got %q/%v", label, conf)
	}
	if pred.calls != 1 {
		t.Fatalf("expected one prediction, got %d", pred.calls)
	}
	if len(pred.last) != 16 {
		t.Fatalf("expected a 16-frame clip, got %d", len(pred.last))
	}
}

func TestWindowOrdersClipOldestFirst(t *testing.T) {
	pred := &fakePredictor{label: "walking", conf: 0.5}
	w := NewWindow(4, pred)
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		if _, _, err := w.Update(ctx, frameOfWidth(i)); err != nil {
			t.Fatal(err)
		}
	}
	// after 6 updates the clip should be frames 3,4,5,6
	want := []int{3, 4, 5, 6}
	if len(pred.last) != len(want) {
		t.Fatalf("clip length %d", len(pred.last))
	}
	for i, img := range pred.last {
		if img.Bounds().Dx() != want[i] {
			t.Fatalf("clip position %d: expected frame %d, got %d", i, want[i], img.Bounds().Dx())
		}
	}
}

func TestWindowStatelessPredictRequiresFullClip(t *testing.T) {
	pred := &fakePredictor{label: "x", conf: 1}
	w := NewWindow(4, pred)
	ctx := context.Background()

	if _, _, err := w.Predict(ctx, []image.Image{frameOfWidth(1)}); err == nil {
		t.Fatal("expected error for short clip")
	}
	clip := []image.Image{frameOfWidth(1), frameOfWidth(2), frameOfWidth(3), frameOfWidth(4)}
	if _, _, err := w.Predict(ctx, clip); err != nil {
		t.Fatal(err)
	}
}
