package tone

import (
	log "github.com/sirupsen/logrus"
)

// Engine turns note callbacks into sound. Synthesis lives outside this
// module; the core only calls into it.
type Engine interface {
	NoteOn(pitch string, velocity float64)
	NoteOff(sourceKey string)
}

// Keyboard receives visual key feedback.
type Keyboard interface {
	KeyDown(sourceKey, pitch string)
	KeyUp(sourceKey string)
}

// LogEngine is an Engine and Keyboard that only logs, for headless use.
type LogEngine struct {
	Logger *log.Entry
}

func NewLogEngine() *LogEngine {
	return &LogEngine{Logger: log.WithFields(log.Fields{"function": "LogEngine"})}
}

func (e *LogEngine) NoteOn(pitch string, velocity float64) {
	e.Logger.WithFields(log.Fields{"pitch": pitch, "velocity": velocity}).Info("note on")
}

func (e *LogEngine) NoteOff(sourceKey string) {
	e.Logger.WithFields(log.Fields{"sourceKey": sourceKey}).Info("note off")
}

func (e *LogEngine) KeyDown(sourceKey, pitch string) {
	e.Logger.WithFields(log.Fields{"sourceKey": sourceKey, "pitch": pitch}).Debug("key down")
}

func (e *LogEngine) KeyUp(sourceKey string) {
	e.Logger.WithFields(log.Fields{"sourceKey": sourceKey}).Debug("key up")
}

// Silent discards everything.
type Silent struct{}

func (Silent) NoteOn(string, float64) {}
func (Silent) NoteOff(string)         {}
func (Silent) KeyDown(string, string) {}
func (Silent) KeyUp(string)           {}
