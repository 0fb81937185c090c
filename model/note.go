package model

import (
	"github.com/jsphweid/harmonyjam/constants"
	"github.com/jsphweid/harmonyjam/util"
)

// NoteEvent is one played note. It is built once, when the key is released
// (or the recording stops while it is held), and passed around by value.
type NoteEvent struct {
	Pitch         string  `json:"pitch"`
	FrequencyHz   float64 `json:"frequencyHz"`
	Velocity      float64 `json:"velocity"`
	StartOffsetMs int64   `json:"startOffsetMs"`
	DurationMs    int64   `json:"durationMs"`
	SourceKey     string  `json:"sourceKey"`
}

// NewNoteEvent derives the frequency and applies the offset, velocity and
// duration floors.
func NewNoteEvent(sourceKey, pitch string, velocity float64, startOffsetMs, durationMs int64) NoteEvent {
	if startOffsetMs < 0 {
		startOffsetMs = 0
	}
	durationMs = util.Max(durationMs, constants.MinDurationMs)
	return NoteEvent{
		Pitch:         pitch,
		FrequencyHz:   FrequencyOf(pitch),
		Velocity:      ClampVelocity(velocity),
		StartOffsetMs: startOffsetMs,
		DurationMs:    durationMs,
		SourceKey:     sourceKey,
	}
}

// EndMs is the offset at which the note is released.
func (n NoteEvent) EndMs() int64 {
	return n.StartOffsetMs + n.DurationMs
}

func ClampVelocity(v float64) float64 {
	return util.Clamp(v, 0, 1)
}

// TotalDurationMs is the latest release offset in events, or 0 when empty.
func TotalDurationMs(events []NoteEvent) int64 {
	var total int64
	for _, e := range events {
		total = util.Max(total, e.EndMs())
	}
	return total
}
