package playback

import (
	"sort"
	"sync"
	"time"

	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/constants"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/jsphweid/harmonyjam/tone"
	log "github.com/sirupsen/logrus"
)

type State int

const (
	Idle State = iota
	Scheduled
)

func (s State) String() string {
	if s == Scheduled {
		return "scheduled"
	}
	return "idle"
}

// schedule is everything owned by one playback. It is dropped as a whole on
// stop or completion.
type schedule struct {
	events          []model.NoteEvent
	timers          []clock.Timer
	held            map[int]bool // index into events, onset fired but release hasn't
	totalDurationMs int64
}

// Scheduler replays a sequence of NoteEvents with their relative timing.
// At most one playback is active at a time.
//
// Triggers call into the Engine and Keyboard while the scheduler's lock is
// held, so those must not call back into the Scheduler synchronously. The
// finished callback is invoked after the lock is released and may.
type Scheduler struct {
	clock    clock.Clock
	engine   tone.Engine
	keyboard tone.Keyboard
	marginMs int64
	finished func(completed bool)

	mu    sync.Mutex
	state State
	gen   uint64
	cur   *schedule
}

type Option func(*Scheduler)

func WithKeyboard(k tone.Keyboard) Option {
	return func(s *Scheduler) { s.keyboard = k }
}

func WithSettlingMargin(ms int64) Option {
	return func(s *Scheduler) { s.marginMs = ms }
}

// OnFinished registers a callback run every time a playback ends. completed
// is false when it ended through Stop.
func OnFinished(f func(completed bool)) Option {
	return func(s *Scheduler) { s.finished = f }
}

func New(c clock.Clock, engine tone.Engine, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    c,
		engine:   engine,
		keyboard: tone.Silent{},
		marginMs: constants.SettlingMarginMs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Play schedules events relative to now and returns immediately. It reports
// false and does nothing if a playback is already active.
func (s *Scheduler) Play(events []model.NoteEvent) bool {
	logger := log.WithFields(log.Fields{"function": "Scheduler.Play"})

	s.mu.Lock()
	if s.state == Scheduled {
		s.mu.Unlock()
		logger.Debug("playback already active")
		return false
	}

	sorted := make([]model.NoteEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartOffsetMs < sorted[j].StartOffsetMs
	})

	if len(sorted) == 0 {
		s.mu.Unlock()
		logger.Debug("empty playback")
		s.notify(true)
		return true
	}

	s.gen++
	gen := s.gen
	sch := &schedule{
		events:          sorted,
		held:            make(map[int]bool),
		totalDurationMs: model.TotalDurationMs(sorted),
	}
	s.cur = sch
	s.state = Scheduled

	for i := range sorted {
		idx := i
		e := sorted[i]
		sch.timers = append(sch.timers,
			s.clock.AfterFunc(ms(e.StartOffsetMs), func() { s.onset(gen, idx) }),
			s.clock.AfterFunc(ms(e.EndMs()), func() { s.release(gen, idx) }),
		)
	}
	sch.timers = append(sch.timers, s.clock.AfterFunc(ms(sch.totalDurationMs+s.marginMs), func() { s.complete(gen) }))
	s.mu.Unlock()

	logger.WithFields(log.Fields{
		"notes":           len(sorted),
		"totalDurationMs": sch.totalDurationMs,
	}).Info("playback started")
	return true
}

// Stop cancels every outstanding trigger, releases any note that is still
// sounding and returns to Idle. Nothing scheduled by the stopped playback
// fires after Stop returns. Stopping while Idle does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != Scheduled {
		s.mu.Unlock()
		return
	}
	sch := s.cur
	for _, t := range sch.timers {
		t.Stop()
	}

	released := s.releaseHeld(sch)

	s.gen++
	s.cur = nil
	s.state = Idle
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"function": "Scheduler.Stop",
		"released": released,
	}).Info("playback stopped")
	s.notify(false)
}

func (s *Scheduler) onset(gen uint64, idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) {
		return
	}
	e := s.cur.events[idx]
	s.cur.held[idx] = true
	s.engine.NoteOn(e.Pitch, e.Velocity)
	s.keyboard.KeyDown(e.SourceKey, e.Pitch)
}

func (s *Scheduler) release(gen uint64, idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) || !s.cur.held[idx] {
		return
	}
	delete(s.cur.held, idx)
	s.noteOff(s.cur.events[idx])
}

func (s *Scheduler) complete(gen uint64) {
	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return
	}
	// a release that ran before its onset leaves the note held
	s.releaseHeld(s.cur)
	s.cur = nil
	s.state = Idle
	s.mu.Unlock()

	log.WithFields(log.Fields{"function": "Scheduler.complete"}).Info("playback finished")
	s.notify(true)
}

// releaseHeld sends a note off for every sounding note of sch in index
// order and returns how many there were. Callers hold s.mu.
func (s *Scheduler) releaseHeld(sch *schedule) int {
	held := make([]int, 0, len(sch.held))
	for idx := range sch.held {
		held = append(held, idx)
	}
	sort.Ints(held)
	for _, idx := range held {
		s.noteOff(sch.events[idx])
	}
	sch.held = make(map[int]bool)
	return len(held)
}

func (s *Scheduler) current(gen uint64) bool {
	return s.state == Scheduled && s.gen == gen
}

func (s *Scheduler) noteOff(e model.NoteEvent) {
	s.engine.NoteOff(e.SourceKey)
	s.keyboard.KeyUp(e.SourceKey)
}

func (s *Scheduler) notify(completed bool) {
	if s.finished != nil {
		s.finished(completed)
	}
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
