package recorder

import (
	"sort"
	"sync"

	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/model"
	log "github.com/sirupsen/logrus"
)

type onset struct {
	pitch         string
	velocity      float64
	startOffsetMs int64
}

// Recorder captures note-on/note-off pairs into NoteEvents while a session
// is active. One Recorder belongs to one client; calls are serialized
// internally so it can be fed from several callback goroutines.
type Recorder struct {
	clock clock.Clock

	mu          sync.Mutex
	active      bool
	startedAtMs int64
	pending     map[string]onset
	captured    []model.NoteEvent
}

func New(c clock.Clock) *Recorder {
	return &Recorder{
		clock:   c,
		pending: make(map[string]onset),
	}
}

// Start begins a new session. Starting while active resets the session.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captured = nil
	r.pending = make(map[string]onset)
	r.startedAtMs = r.clock.NowMs()
	r.active = true
	log.WithFields(log.Fields{"function": "Recorder.Start"}).Debug("recording started")
}

// NoteOn records the onset of sourceKey. Ignored when idle or when the key
// is already held.
func (r *Recorder) NoteOn(sourceKey, pitch string, velocity float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	if _, held := r.pending[sourceKey]; held {
		return
	}
	r.pending[sourceKey] = onset{
		pitch:         pitch,
		velocity:      velocity,
		startOffsetMs: r.clock.NowMs() - r.startedAtMs,
	}
}

// NoteOff completes the note held on sourceKey. Unknown keys are ignored.
func (r *Recorder) NoteOff(sourceKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	o, ok := r.pending[sourceKey]
	if !ok {
		return
	}
	r.complete(sourceKey, o, r.clock.NowMs()-r.startedAtMs)
}

// Stop flushes every held note using the current time as its end, ends the
// session and returns the captured events in completion order. Stopping an
// idle recorder returns an empty sequence.
func (r *Recorder) Stop() []model.NoteEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return []model.NoteEvent{}
	}

	endMs := r.clock.NowMs() - r.startedAtMs
	keys := make([]string, 0, len(r.pending))
	for k := range r.pending {
		keys = append(keys, k)
	}
	// flush held notes oldest first
	sort.Slice(keys, func(i, j int) bool {
		a, b := r.pending[keys[i]], r.pending[keys[j]]
		if a.startOffsetMs != b.startOffsetMs {
			return a.startOffsetMs < b.startOffsetMs
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		r.complete(k, r.pending[k], endMs)
	}
	r.active = false

	log.WithFields(log.Fields{
		"function": "Recorder.Stop",
		"notes":    len(r.captured),
		"flushed":  len(keys),
	}).Info("recording stopped")

	events := make([]model.NoteEvent, len(r.captured))
	copy(events, r.captured)
	return events
}

// Clear drops the session entirely, active or not.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.captured = nil
	r.pending = make(map[string]onset)
}

func (r *Recorder) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Events returns a copy of what has been captured so far, or of the frozen
// result of the last Stop.
func (r *Recorder) Events() []model.NoteEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]model.NoteEvent, len(r.captured))
	copy(events, r.captured)
	return events
}

// Held reports how many keys are currently pressed in the session.
func (r *Recorder) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Recorder) complete(sourceKey string, o onset, endOffsetMs int64) {
	event := model.NewNoteEvent(sourceKey, o.pitch, o.velocity, o.startOffsetMs, endOffsetMs-o.startOffsetMs)
	r.captured = append(r.captured, event)
	delete(r.pending, sourceKey)
}
