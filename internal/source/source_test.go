package source

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"
	"time"

	"vigil/internal/bus"
	"vigil/internal/config"
	"vigil/internal/model"
)

type fakeDecoder struct {
	frames   int
	pos      int
	openErr  error
	opened   int
	closed   int
	frameErr error
}

func (d *fakeDecoder) Open(ctx context.Context) error {
	d.opened++
	return d.openErr
}

func (d *fakeDecoder) Next() (image.Image, error) {
	if d.frameErr != nil {
		return nil, d.frameErr
	}
	if d.pos >= d.frames {
		return nil, io.EOF
	}
	d.pos++
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (d *fakeDecoder) Close() error {
	d.closed++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSourceConfig() config.SourceConfig {
	return config.SourceConfig{JoinTimeout: time.Second, ReconnectBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond}
}

func TestSamplingAcceptsEveryNth(t *testing.T) {
	stream := model.StreamDescriptor{Name: "Cam1", Source: "fake", Enabled: true, SamplingRate: 2}
	decoder := &fakeDecoder{frames: 7}
	frames := bus.New(16)
	w := NewWorker(stream, decoder, frames, testSourceConfig(), testLogger())

	w.Run(context.Background())
	frames.Close()

	var ids []int64
	for {
		frame, ok := frames.Get()
		if !ok {
			break
		}
		ids = append(ids, frame.FrameID)
		if frame.Stream.Name != "Cam1" {
			t.Fatalf("wrong stream on frame: %s", frame.Stream.Name)
		}
	}
	want := []int64{2, 4, 6}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("frame IDs are decoded indices: expected %v, got %v", want, ids)
		}
	}
	if decoder.closed != 1 {
		t.Fatalf("capture handle not released: closed=%d", decoder.closed)
	}
}

func TestSamplingRateOneAcceptsAll(t *testing.T) {
	stream := model.StreamDescriptor{Name: "Cam1", Source: "fake", Enabled: true, SamplingRate: 1}
	decoder := &fakeDecoder{frames: 3}
	frames := bus.New(16)
	w := NewWorker(stream, decoder, frames, testSourceConfig(), testLogger())

	w.Run(context.Background())
	frames.Close()

	count := 0
	for {
		if _, ok := frames.Get(); !ok {
			break
		}
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 frames, got %d", count)
	}
}

func TestOpenFailureDropsStream(t *testing.T) {
	stream := model.StreamDescriptor{Name: "Cam1", Source: "fake", Enabled: true, SamplingRate: 1}
	decoder := &fakeDecoder{openErr: errors.New("no such device")}
	frames := bus.New(4)
	w := NewWorker(stream, decoder, frames, testSourceConfig(), testLogger())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not terminate after open failure")
	}
	if decoder.opened != 1 {
		t.Fatalf("expected a single open attempt without reconnect, got %d", decoder.opened)
	}
	if frames.Len() != 0 {
		t.Fatalf("expected no frames, got %d", frames.Len())
	}
}

func TestReconnectRetriesOpen(t *testing.T) {
	stream := model.StreamDescriptor{Name: "Cam1", Source: "fake", Enabled: true, SamplingRate: 1}
	decoder := &fakeDecoder{openErr: errors.New("no such device")}
	frames := bus.New(4)
	cfg := testSourceConfig()
	cfg.Reconnect = true
	w := NewWorker(stream, decoder, frames, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}
	if decoder.opened < 2 {
		t.Fatalf("expected repeated open attempts with reconnect, got %d", decoder.opened)
	}
}

func TestWorkerExitsWhenBusCloses(t *testing.T) {
	stream := model.StreamDescriptor{Name: "Cam1", Source: "fake", Enabled: true, SamplingRate: 1}
	decoder := &fakeDecoder{frames: 1000}
	frames := bus.New(1)
	w := NewWorker(stream, decoder, frames, testSourceConfig(), testLogger())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	frames.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after bus close")
	}
}

func TestManagerStartsOnlyEnabledStreams(t *testing.T) {
	streams := []model.StreamDescriptor{
		{Name: "a", Source: t.TempDir(), Enabled: true, SamplingRate: 1},
		{Name: "b", Source: t.TempDir(), Enabled: false, SamplingRate: 1},
	}
	m := NewManager(streams, bus.New(4), testSourceConfig(), testLogger())
	if m.Count() != 1 {
		t.Fatalf("expected 1 worker, got %d", m.Count())
	}
}

func TestManagerStopBoundedJoin(t *testing.T) {
	streams := []model.StreamDescriptor{
		{Name: "a", Source: "fake", Enabled: true, SamplingRate: 1},
	}
	frames := bus.New(4)
	cfg := testSourceConfig()
	cfg.JoinTimeout = 100 * time.Millisecond
	m := NewManager(streams, frames, cfg, testLogger())
	m.workers[0].decoder = &fakeDecoder{frames: 2}

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
	start := time.Now()
	m.Stop()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stop took too long: %s", elapsed)
	}
}
