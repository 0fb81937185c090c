package studio

import (
	"sync"
	"time"

	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/constants"
	"github.com/jsphweid/harmonyjam/file"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/jsphweid/harmonyjam/playback"
	"github.com/jsphweid/harmonyjam/recorder"
	"github.com/jsphweid/harmonyjam/tone"
	log "github.com/sirupsen/logrus"
)

// Relay forwards live notes to a room. client.Session implements it.
type Relay interface {
	PlayNote(roomID string, note model.NoteEvent) error
}

// Studio is one player's instrument: key presses sound locally, are
// captured by the recorder and relayed to the current room. The last take
// can be played back once or looped.
type Studio struct {
	engine    tone.Engine
	keyboard  tone.Keyboard
	recorder  *recorder.Recorder
	scheduler *playback.Scheduler

	mu     sync.Mutex
	relay  Relay
	roomID string
	down   map[string]bool
	take   []model.NoteEvent

	// loopMu orders re-arming a loop pass against StopPlayback. It is taken
	// before the scheduler's lock, never after.
	loopMu  sync.Mutex
	looping bool
}

type Option func(*Studio)

func WithKeyboard(k tone.Keyboard) Option {
	return func(s *Studio) { s.keyboard = k }
}

// WithRelay sends every key press to roomID through r.
func WithRelay(r Relay, roomID string) Option {
	return func(s *Studio) {
		s.relay = r
		s.roomID = roomID
	}
}

func New(c clock.Clock, engine tone.Engine, opts ...Option) *Studio {
	s := &Studio{
		engine:   engine,
		keyboard: tone.Silent{},
		recorder: recorder.New(c),
		down:     make(map[string]bool),
	}
	if s.engine == nil {
		s.engine = tone.Silent{}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scheduler = playback.New(c, s.engine,
		playback.WithKeyboard(s.keyboard),
		playback.OnFinished(s.finished),
	)
	return s
}

// SetRoom changes the room key presses are relayed to. An empty id stops
// relaying.
func (s *Studio) SetRoom(roomID string) {
	s.mu.Lock()
	s.roomID = roomID
	s.mu.Unlock()
}

// KeyDown presses sourceKey. Auto-repeat of a held key is ignored.
func (s *Studio) KeyDown(sourceKey, pitch string, velocity float64) {
	s.mu.Lock()
	if s.down[sourceKey] {
		s.mu.Unlock()
		return
	}
	s.down[sourceKey] = true
	relay, roomID := s.relay, s.roomID
	s.mu.Unlock()

	s.engine.NoteOn(pitch, velocity)
	s.keyboard.KeyDown(sourceKey, pitch)
	s.recorder.NoteOn(sourceKey, pitch, velocity)
	if relay != nil && roomID != "" {
		note := model.NewNoteEvent(sourceKey, pitch, velocity, 0, constants.MinDurationMs)
		if err := relay.PlayNote(roomID, note); err != nil {
			log.WithFields(log.Fields{"function": "Studio.KeyDown", "room": roomID}).Warn("relay failed: " + err.Error())
		}
	}
}

func (s *Studio) KeyUp(sourceKey string) {
	s.mu.Lock()
	if !s.down[sourceKey] {
		s.mu.Unlock()
		return
	}
	delete(s.down, sourceKey)
	s.mu.Unlock()

	s.engine.NoteOff(sourceKey)
	s.keyboard.KeyUp(sourceKey)
	s.recorder.NoteOff(sourceKey)
}

// StartRecording begins a new take. A running playback keeps going and is
// not captured.
func (s *Studio) StartRecording() {
	s.recorder.Start()
}

// StopRecording ends the take and keeps it for playback.
func (s *Studio) StopRecording() []model.NoteEvent {
	events := s.recorder.Stop()
	s.mu.Lock()
	s.take = events
	s.mu.Unlock()
	log.WithFields(log.Fields{"function": "Studio.StopRecording", "notes": len(events)}).Info("take saved")
	return events
}

func (s *Studio) Recording() bool {
	return s.recorder.IsActive()
}

func (s *Studio) Take() []model.NoteEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]model.NoteEvent, len(s.take))
	copy(res, s.take)
	return res
}

// Load replaces the take with the notes of rec.
func (s *Studio) Load(rec model.Recording) {
	s.StopPlayback()
	s.mu.Lock()
	s.take = file.Events(rec)
	s.mu.Unlock()
}

// Play plays the take once. It reports false when a playback is already
// running.
func (s *Studio) Play() bool {
	return s.scheduler.Play(s.Take())
}

// Loop plays the take over and over until StopPlayback. An empty take does
// not loop.
func (s *Studio) Loop() bool {
	take := s.Take()
	if len(take) == 0 {
		return false
	}
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	s.looping = s.scheduler.Play(take)
	return s.looping
}

// StopPlayback stops playback and any loop. No further pass starts after it
// returns.
func (s *Studio) StopPlayback() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	s.looping = false
	s.scheduler.Stop()
}

func (s *Studio) Playing() bool {
	return s.scheduler.State() == playback.Scheduled
}

// Clear drops the take and any session in progress.
func (s *Studio) Clear() {
	s.StopPlayback()
	s.recorder.Clear()
	s.mu.Lock()
	s.take = nil
	s.mu.Unlock()
}

// Export builds the document for the current take.
func (s *Studio) Export(name string, at time.Time) model.Recording {
	return file.Export(s.Take(), name, at, constants.DefaultBPM)
}

func (s *Studio) finished(completed bool) {
	// Stop reports here with completed false while StopPlayback holds loopMu
	if !completed {
		return
	}
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if !s.looping {
		return
	}
	take := s.Take()
	if len(take) == 0 {
		s.looping = false
		return
	}
	s.scheduler.Play(take)
}
