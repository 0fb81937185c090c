package playback

import (
	"fmt"
	"testing"
	"time"

	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/stretchr/testify/assert"
)

type fired struct {
	at   int64
	what string
}

type recordingEngine struct {
	clock  *clock.Manual
	events []fired
}

func (e *recordingEngine) add(what string) {
	e.events = append(e.events, fired{at: e.clock.NowMs(), what: what})
}

func (e *recordingEngine) NoteOn(pitch string, velocity float64) { e.add("on " + pitch) }
func (e *recordingEngine) NoteOff(sourceKey string)              { e.add("off " + sourceKey) }
func (e *recordingEngine) KeyDown(sourceKey, pitch string)       { e.add("down " + sourceKey) }
func (e *recordingEngine) KeyUp(sourceKey string)                { e.add("up " + sourceKey) }

func (e *recordingEngine) only(prefix string) []fired {
	var res []fired
	for _, f := range e.events {
		if len(f.what) >= len(prefix) && f.what[:len(prefix)] == prefix {
			res = append(res, f)
		}
	}
	return res
}

func twoNotes() []model.NoteEvent {
	return []model.NoteEvent{
		model.NewNoteEvent("c", "C4", 0.8, 0, 200),
		model.NewNoteEvent("e", "E4", 0.8, 300, 150),
	}
}

func setup() (*clock.Manual, *recordingEngine, *Scheduler, *[]bool) {
	c := clock.NewManual(0)
	engine := &recordingEngine{clock: c}
	var finishes []bool
	s := New(c, engine, WithKeyboard(engine), OnFinished(func(completed bool) {
		engine.add(fmt.Sprintf("finished %v", completed))
		finishes = append(finishes, completed)
	}))
	return c, engine, s, &finishes
}

func TestSchedulingFidelity(t *testing.T) {
	c, engine, s, finishes := setup()

	assert := assert.New(t)
	assert.True(s.Play(twoNotes()))
	assert.Equal(Scheduled, s.State())

	c.Advance(449 * time.Millisecond)
	assert.Equal(Scheduled, s.State())
	c.Advance(time.Second)

	assert.Equal([]fired{
		{0, "on C4"}, {0, "down c"},
		{200, "off c"}, {200, "up c"},
		{300, "on E4"}, {300, "down e"},
		{450, "off e"}, {450, "up e"},
		{550, "finished true"},
	}, engine.events)
	assert.Equal(Idle, s.State())
	assert.Equal([]bool{true}, *finishes)
	assert.Equal(0, c.Pending())
}

func TestStopAfterFirstReleaseSynthesizesNothing(t *testing.T) {
	c, engine, s, finishes := setup()
	s.Play(twoNotes())

	c.Advance(250 * time.Millisecond)
	s.Stop()
	before := len(engine.only("off"))
	c.Advance(time.Second)

	assert := assert.New(t)
	assert.Equal(Idle, s.State())
	assert.Equal(1, before)
	assert.Equal([]fired{{200, "off c"}}, engine.only("off"))
	assert.Empty(engine.only("on E4"))
	assert.Equal([]bool{false}, *finishes)
	assert.Equal(0, c.Pending())
}

func TestStopWhileHeldReleasesOncePerNote(t *testing.T) {
	c, engine, s, _ := setup()
	s.Play([]model.NoteEvent{
		model.NewNoteEvent("c", "C4", 1, 0, 500),
		model.NewNoteEvent("e", "E4", 1, 50, 500),
		model.NewNoteEvent("g", "G4", 1, 400, 100),
	})

	c.Advance(100 * time.Millisecond)
	s.Stop()
	c.Advance(time.Second)

	assert.Equal(t, []fired{{100, "off c"}, {100, "off e"}}, engine.only("off"))
	assert.Equal(t, []fired{{100, "up c"}, {100, "up e"}}, engine.only("up"))
	assert.Empty(t, engine.only("on G4"))
}

func TestPlayWhileScheduledIsIgnored(t *testing.T) {
	c, engine, s, _ := setup()
	assert.True(t, s.Play(twoNotes()))
	assert.False(t, s.Play([]model.NoteEvent{model.NewNoteEvent("x", "A4", 1, 10, 50)}))
	c.Advance(time.Second)
	assert.Empty(t, engine.only("on A4"))
}

func TestPlayEmptyCompletesImmediately(t *testing.T) {
	c, engine, s, finishes := setup()
	assert.True(t, s.Play(nil))
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, []bool{true}, *finishes)
	assert.Empty(t, engine.only("on"))
	assert.Equal(t, 0, c.Pending())
}

func TestStopFromIdleIsNoop(t *testing.T) {
	_, engine, s, finishes := setup()
	s.Stop()
	assert.Empty(t, engine.events)
	assert.Empty(t, *finishes)
}

func TestReplayAfterStopStartsFromBeginning(t *testing.T) {
	c, engine, s, _ := setup()
	s.Play(twoNotes())
	c.Advance(350 * time.Millisecond)
	s.Stop()

	engine.events = nil
	assert.True(t, s.Play(twoNotes()))
	c.Advance(time.Second)
	assert.Equal(t, []fired{{350, "on C4"}, {650, "on E4"}}, engine.only("on"))
}

func TestSortsByStartOffsetStable(t *testing.T) {
	c, engine, s, _ := setup()
	s.Play([]model.NoteEvent{
		model.NewNoteEvent("e", "E4", 1, 300, 100),
		model.NewNoteEvent("a", "A4", 1, 0, 100),
		model.NewNoteEvent("b", "B4", 1, 0, 100),
	})
	c.Advance(time.Second)
	assert.Equal(t, []fired{{0, "on A4"}, {0, "on B4"}, {300, "on E4"}}, engine.only("on"))
}

func TestDoesNotMutateInput(t *testing.T) {
	c, _, s, _ := setup()
	events := []model.NoteEvent{
		model.NewNoteEvent("e", "E4", 1, 300, 100),
		model.NewNoteEvent("a", "A4", 1, 0, 100),
	}
	s.Play(events)
	c.Advance(time.Second)
	assert.Equal(t, "E4", events[0].Pitch)
}

// stepClock hands armed callbacks back to the test, which fires them in
// whatever order it likes.
type stepClock struct {
	fns []func()
}

func (c *stepClock) NowMs() int64 { return 0 }

func (c *stepClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.fns = append(c.fns, f)
	return stepTimer{}
}

type stepTimer struct{}

func (stepTimer) Stop() bool { return true }

func TestCompletionReleasesNotesLeftHeld(t *testing.T) {
	c := &stepClock{}
	engine := &recordingEngine{clock: clock.NewManual(0)}
	var finishes []bool
	s := New(c, engine, WithKeyboard(engine), OnFinished(func(completed bool) {
		finishes = append(finishes, completed)
	}))
	assert.True(t, s.Play([]model.NoteEvent{model.NewNoteEvent("c", "C4", 1, 0, 50)}))

	// armed as onset, release, completion; release wins the race to onset
	onset, release, complete := c.fns[0], c.fns[1], c.fns[2]
	release()
	onset()
	complete()

	assert.Equal(t, []string{"on C4", "down c", "off c", "up c"}, whats(engine.events))
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, []bool{true}, finishes)
}

func whats(events []fired) []string {
	res := make([]string, 0, len(events))
	for _, f := range events {
		res = append(res, f.what)
	}
	return res
}
