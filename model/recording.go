package model

import "time"

// Recording is the portable export document of a captured sequence.
type Recording struct {
	Version         string         `json:"version"`
	Name            string         `json:"name"`
	CreatedAt       time.Time      `json:"createdAt"`
	BPM             int            `json:"bpm"`
	TotalDurationMs int64          `json:"totalDurationMs"`
	NoteCount       int            `json:"noteCount"`
	Notes           []RecordedNote `json:"notes"`
}

type RecordedNote struct {
	Pitch         string  `json:"pitch"`
	FrequencyHz   float64 `json:"frequencyHz"`
	StartOffsetMs int64   `json:"startOffsetMs"`
	DurationMs    int64   `json:"durationMs"`
	Velocity      float64 `json:"velocity"`
	SourceKey     string  `json:"sourceKey"`
}
