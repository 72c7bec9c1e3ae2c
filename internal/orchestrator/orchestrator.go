package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vigil/internal/alerts"
	"vigil/internal/bus"
	"vigil/internal/config"
	"vigil/internal/detect"
	"vigil/internal/model"
	"vigil/internal/sink"
	"vigil/internal/state"
)

// Orchestrator is the pipeline consumer: it pulls frames off the bus,
// runs the detection collaborators, maintains per-stream state, flushes
// aggregated statistics, and raises behaviour alerts.
type Orchestrator struct {
	logger   *slog.Logger
	cfg      atomic.Value
	frames   *bus.Bus
	states   *state.Store
	alerts   *alerts.Store
	sink     sink.Sink
	detector detect.Detector
	analyzer detect.Analyzer
	pred     detect.Predictor
	windows  map[string]*detect.Window
	cooldown *Cooldown
	now      func() time.Time
}

func New(
	cfg *config.Config,
	frames *bus.Bus,
	states *state.Store,
	alertsStore *alerts.Store,
	recordSink sink.Sink,
	detector detect.Detector,
	analyzer detect.Analyzer,
	pred detect.Predictor,
	logger *slog.Logger,
) *Orchestrator {
	o := &Orchestrator{
		logger:   logger,
		frames:   frames,
		states:   states,
		alerts:   alertsStore,
		sink:     recordSink,
		detector: detector,
		analyzer: analyzer,
		pred:     pred,
		windows:  make(map[string]*detect.Window),
		cooldown: NewCooldown(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	o.cfg.Store(cfg)
	return o
}

func (o *Orchestrator) UpdateConfig(cfg *config.Config) {
	o.cfg.Store(cfg)
}

func (o *Orchestrator) config() *config.Config {
	if v := o.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// Run consumes the bus until it reports end-of-stream. Shutdown is
// drain-then-stop: close the bus after the sources have exited and Run
// finishes the frames already enqueued before returning.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("orchestrator started")
	for {
		frame, ok := o.frames.Get()
		if !ok {
			o.logger.Info("orchestrator stopped")
			return
		}
		o.ProcessFrame(ctx, frame)
	}
}

// ProcessFrame runs the per-frame pipeline. Recoverable errors never
// escape: a detector failure skips the frame, an analyzer failure leaves
// attributes unset, a classifier failure keeps the unknown label.
func (o *Orchestrator) ProcessFrame(ctx context.Context, frame model.Frame) {
	cfg := o.config()
	st, ok := o.states.Get(frame.Stream.Name)
	if !ok {
		o.logger.Warn("frame for unknown stream", "stream", frame.Stream.Name)
		return
	}
	o.logger.Debug("processing frame", "stream", frame.Stream.Name, "frame_id", frame.FrameID)

	detections, err := o.detector.Detect(ctx, frame.Image)
	if err != nil {
		o.logger.Warn("detection failed", "stream", frame.Stream.Name, "frame_id", frame.FrameID, "err", err)
		return
	}

	window := o.windowFor(frame.Stream.Name, cfg)
	observations := make([]model.PersonObservation, 0, len(detections))
	for _, det := range detections {
		obs := model.PersonObservation{Detection: det}
		if cfg.Detection.CollectDemographics && o.analyzer != nil {
			attrs, err := o.analyzer.Analyze(ctx, frame.Image, det.Box)
			if err != nil {
				o.logger.Warn("analyzer failed", "stream", frame.Stream.Name, "frame_id", frame.FrameID, "err", err)
			} else {
				obs.Age = attrs.Age
				obs.Gender = attrs.Gender
				obs.Emotion = attrs.Emotion
				obs.Emotions = attrs.Emotions
			}
		}
		label, confidence := o.classify(ctx, window, frame)
		obs.Behaviour = label
		obs.BehaviourConfidence = confidence
		if o.isBehaviourOfInterest(cfg, label) && confidence > cfg.Detection.ConfidenceThreshold {
			o.raiseAlert(ctx, cfg, frame, label, confidence)
		}
		observations = append(observations, obs)
	}
	o.states.SetPersons(frame.Stream.Name, observations)

	now := o.now()
	if now.Sub(st.LastStatFlush) >= cfg.Analytics.AggregationInterval {
		o.flush(ctx, st, now)
	}
}

func (o *Orchestrator) classify(ctx context.Context, window *detect.Window, frame model.Frame) (string, float64) {
	if window == nil {
		return detect.UnknownLabel, 0
	}
	label, confidence, err := window.Update(ctx, frame.Image)
	if err != nil {
		o.logger.Warn("behaviour classification failed", "stream", frame.Stream.Name, "frame_id", frame.FrameID, "err", err)
		return detect.UnknownLabel, 0
	}
	return label, confidence
}

// windowFor returns the stream's clip window, creating it on first use.
// Windows are strictly per stream so clips never mix cameras.
func (o *Orchestrator) windowFor(streamName string, cfg *config.Config) *detect.Window {
	if o.pred == nil {
		return nil
	}
	if w, ok := o.windows[streamName]; ok {
		return w
	}
	w := detect.NewWindow(cfg.Detection.WindowSize, o.pred)
	o.windows[streamName] = w
	return w
}

func (o *Orchestrator) isBehaviourOfInterest(cfg *config.Config, label string) bool {
	if label == "" || label == detect.UnknownLabel {
		return false
	}
	for _, want := range cfg.Detection.BehaviourLabels {
		if label == want {
			return true
		}
	}
	return false
}

func (o *Orchestrator) raiseAlert(ctx context.Context, cfg *config.Config, frame model.Frame, label string, confidence float64) {
	now := o.now()
	if !o.cooldown.Allow(frame.Stream.Name, label, now, cfg.Analytics.AlertCooldown) {
		return
	}
	alert := model.Alert{
		ID:         uuid.NewString(),
		Timestamp:  now,
		StreamName: frame.Stream.Name,
		EventType:  label,
		Confidence: confidence,
		Message:    fmt.Sprintf("Detected %s with confidence %.2f", label, confidence),
	}
	o.states.MarkAlert(frame.Stream.Name, label, now)
	o.alerts.Add(alert)
	o.sink.RecordAlert(ctx, alert)
	o.logger.Warn("behaviour alert",
		"stream", alert.StreamName,
		"event_type", alert.EventType,
		"confidence", alert.Confidence,
	)
}

func (o *Orchestrator) flush(ctx context.Context, st *state.StreamState, now time.Time) {
	stat := Aggregate(st, now)
	stat.ID = uuid.NewString()
	o.states.MarkFlushed(st.Stream.Name, now, stat)
	o.sink.RecordStat(ctx, stat)
	o.logger.Info("flushed stream stats",
		"stream", stat.StreamName,
		"person_count", stat.PersonCount,
		"male_count", stat.MaleCount,
		"female_count", stat.FemaleCount,
	)
}
