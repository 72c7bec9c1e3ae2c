package sink

import (
	"context"
	"log/slog"

	"vigil/internal/model"
	"vigil/internal/storage"
)

// Sink receives finished stat and alert records. Implementations are
// fire-and-forget: a failed write is logged, never propagated — losing a
// record is preferable to stopping ingestion.
type Sink interface {
	RecordStat(ctx context.Context, stat model.StreamStat)
	RecordAlert(ctx context.Context, alert model.Alert)
}

// Multi fans records out to every configured sink.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{sinks: out}
}

func (m *Multi) RecordStat(ctx context.Context, stat model.StreamStat) {
	for _, s := range m.sinks {
		s.RecordStat(ctx, stat)
	}
}

func (m *Multi) RecordAlert(ctx context.Context, alert model.Alert) {
	for _, s := range m.sinks {
		s.RecordAlert(ctx, alert)
	}
}

// storeSink adapts the durable storage layer to the sink contract.
type storeSink struct {
	store  storage.Store
	logger *slog.Logger
}

func NewStoreSink(store storage.Store, logger *slog.Logger) Sink {
	if store == nil {
		return nil
	}
	return &storeSink{store: store, logger: logger}
}

func (s *storeSink) RecordStat(ctx context.Context, stat model.StreamStat) {
	if err := s.store.SaveStat(ctx, stat); err != nil {
		s.logger.Warn("stat write failed", "stream", stat.StreamName, "err", err)
	}
}

func (s *storeSink) RecordAlert(ctx context.Context, alert model.Alert) {
	if err := s.store.SaveAlert(ctx, alert); err != nil {
		s.logger.Warn("alert write failed", "stream", alert.StreamName, "event_type", alert.EventType, "err", err)
	}
}
