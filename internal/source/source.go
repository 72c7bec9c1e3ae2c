package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/bus"
	"vigil/internal/config"
	"vigil/internal/model"
)

// Worker owns one stream's capture handle: decode, sample, publish.
type Worker struct {
	stream  model.StreamDescriptor
	decoder Decoder
	frames  *bus.Bus
	cfg     config.SourceConfig
	logger  *slog.Logger
	frameID int64
}

func NewWorker(stream model.StreamDescriptor, decoder Decoder, frames *bus.Bus, cfg config.SourceConfig, logger *slog.Logger) *Worker {
	return &Worker{
		stream:  stream,
		decoder: decoder,
		frames:  frames,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run decodes until the stream ends, the context is cancelled, or the bus
// shuts down. Failing to open the source drops the stream for the rest of
// the run unless reconnect is enabled.
func (w *Worker) Run(ctx context.Context) {
	backoff := w.cfg.ReconnectBackoff
	for {
		if err := w.decoder.Open(ctx); err != nil {
			w.logger.Error("unable to open stream", "stream", w.stream.Name, "source", w.stream.Source, "err", err)
			if !w.retry(ctx, &backoff) {
				return
			}
			continue
		}
		w.logger.Info("opened stream", "stream", w.stream.Name, "source", w.stream.Source)
		backoff = w.cfg.ReconnectBackoff

		err := w.loop(ctx)
		_ = w.decoder.Close()
		switch {
		case err == nil || errors.Is(err, context.Canceled):
			w.logger.Info("stream worker stopped", "stream", w.stream.Name)
			return
		case errors.Is(err, bus.ErrClosed):
			return
		case errors.Is(err, io.EOF):
			w.logger.Warn("stream ended", "stream", w.stream.Name)
		default:
			w.logger.Warn("stream decode error", "stream", w.stream.Name, "err", err)
		}
		if !w.retry(ctx, &backoff) {
			return
		}
	}
}

func (w *Worker) loop(ctx context.Context) error {
	rate := int64(w.stream.SamplingRate)
	if rate < 1 {
		rate = 1
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		img, err := w.decoder.Next()
		if err != nil {
			return err
		}
		w.frameID++
		if w.frameID%rate != 0 {
			continue
		}
		frame := model.Frame{
			Stream:    w.stream,
			FrameID:   w.frameID,
			Image:     img,
			Timestamp: time.Now().UTC(),
		}
		if err := w.frames.Put(ctx, frame); err != nil {
			return err
		}
	}
}

// retry sleeps with capped doubling backoff when reconnect is enabled.
// The frame counter keeps increasing across reconnects.
func (w *Worker) retry(ctx context.Context, backoff *time.Duration) bool {
	if !w.cfg.Reconnect {
		return false
	}
	w.logger.Info("reconnecting stream", "stream", w.stream.Name, "backoff", backoff.String())
	t := time.NewTimer(*backoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return false
	}
	*backoff *= 2
	if *backoff > w.cfg.MaxBackoff {
		*backoff = w.cfg.MaxBackoff
	}
	return true
}

// Manager starts one worker per enabled stream and joins them on stop
// with a bounded timeout.
type Manager struct {
	workers []*Worker
	cfg     config.SourceConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewManager(streams []model.StreamDescriptor, frames *bus.Bus, cfg config.SourceConfig, logger *slog.Logger) *Manager {
	m := &Manager{cfg: cfg, logger: logger}
	for _, s := range streams {
		if !s.Enabled {
			continue
		}
		decoder := NewDecoder(s.Source, cfg.FFmpegPath)
		m.workers = append(m.workers, NewWorker(s, decoder, frames, cfg, logger))
	}
	return m
}

func (m *Manager) Start(ctx context.Context) {
	for _, w := range m.workers {
		w := w
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			w.Run(ctx)
		}()
	}
	m.logger.Info("started stream workers", "count", len(m.workers))
}

// Stop waits for every worker up to the configured join timeout. Workers
// stuck in a slow decode are abandoned rather than blocking shutdown.
func (m *Manager) Stop() {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	timeout := m.cfg.JoinTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	select {
	case <-done:
		m.logger.Info("all stream workers stopped")
	case <-time.After(timeout):
		m.logger.Warn("stream worker join timed out", "timeout", timeout.String())
	}
}

// Count reports how many workers the manager runs.
func (m *Manager) Count() int {
	return len(m.workers)
}
