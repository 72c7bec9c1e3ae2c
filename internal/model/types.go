package model

import (
	"image"
	"time"
)

// StreamDescriptor is the immutable per-stream configuration. Created once
// at startup and never mutated afterwards.
type StreamDescriptor struct {
	Name         string `json:"name" yaml:"name"`
	Source       string `json:"source" yaml:"source"`
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	SamplingRate int    `json:"sampling_rate" yaml:"sampling_rate"`
}

// Frame is one accepted sample from a stream. FrameID counts every decoded
// frame, including the ones sampling skipped.
type Frame struct {
	Stream    StreamDescriptor
	FrameID   int64
	Image     image.Image
	Timestamp time.Time
}

type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type Detection struct {
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
	Label      string      `json:"label"`
	Embedding  []float32   `json:"embedding,omitempty"`
}

// Attributes carries the optional demographic result for one detection.
// A nil Age means the analyzer could not estimate one.
type Attributes struct {
	Age      *int               `json:"age,omitempty"`
	Gender   string             `json:"gender,omitempty"`
	Emotion  string             `json:"emotion,omitempty"`
	Emotions map[string]float64 `json:"emotions,omitempty"`
}

// PersonObservation is the per-person result for the current frame. The
// whole list is replaced on every processed frame.
type PersonObservation struct {
	Detection           Detection          `json:"detection"`
	Age                 *int               `json:"age,omitempty"`
	Gender              string             `json:"gender,omitempty"`
	Emotion             string             `json:"emotion,omitempty"`
	Emotions            map[string]float64 `json:"emotions,omitempty"`
	Behaviour           string             `json:"behaviour,omitempty"`
	BehaviourConfidence float64            `json:"behaviour_confidence,omitempty"`
}

type StreamStat struct {
	ID                  string         `json:"id"`
	StreamName          string         `json:"stream_name"`
	CapturedAt          time.Time      `json:"captured_at"`
	PersonCount         int            `json:"person_count"`
	MaleCount           int            `json:"male_count"`
	FemaleCount         int            `json:"female_count"`
	AgeDistribution     map[string]int `json:"age_distribution,omitempty"`
	EmotionDistribution map[string]int `json:"emotion_distribution,omitempty"`
	Notes               string         `json:"notes,omitempty"`
}

type Alert struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	StreamName string    `json:"stream_name"`
	EventType  string    `json:"event_type"`
	Confidence float64   `json:"confidence"`
	Message    string    `json:"message"`
}
