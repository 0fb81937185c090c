package studio

import (
	"sync"
	"testing"
	"time"

	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/file"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/stretchr/testify/assert"
)

type trace struct {
	mu    sync.Mutex
	calls []string
}

func (t *trace) add(call string) {
	t.mu.Lock()
	t.calls = append(t.calls, call)
	t.mu.Unlock()
}

func (t *trace) NoteOn(pitch string, velocity float64) { t.add("on:" + pitch) }
func (t *trace) NoteOff(sourceKey string)              { t.add("off:" + sourceKey) }

func (t *trace) balanced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		if c[:3] == "on:" {
			n++
		} else {
			n--
		}
	}
	return n == 0
}

type relayed struct {
	rooms []string
	notes []model.NoteEvent
}

func (r *relayed) PlayNote(roomID string, note model.NoteEvent) error {
	r.rooms = append(r.rooms, roomID)
	r.notes = append(r.notes, note)
	return nil
}

func setup() (*clock.Manual, *trace, *relayed, *Studio) {
	c := clock.NewManual(0)
	engine := &trace{}
	relay := &relayed{}
	return c, engine, relay, New(c, engine, WithRelay(relay, "jam1"))
}

func TestKeyPressSoundsRecordsAndRelays(t *testing.T) {
	c, engine, relay, s := setup()
	s.StartRecording()

	c.Set(100)
	s.KeyDown("KeyA", "C4", 0.7)
	s.KeyDown("KeyA", "C4", 0.7)
	c.Set(400)
	s.KeyUp("KeyA")
	s.KeyUp("KeyA")
	take := s.StopRecording()

	assert := assert.New(t)
	assert.Equal([]string{"on:C4", "off:KeyA"}, engine.calls)
	assert.Equal([]string{"jam1"}, relay.rooms)
	assert.Equal("C4", relay.notes[0].Pitch)
	assert.Equal(int64(0), relay.notes[0].StartOffsetMs)
	assert.Equal([]model.NoteEvent{model.NewNoteEvent("KeyA", "C4", 0.7, 100, 300)}, take)
	assert.Equal(take, s.Take())
}

func TestNoRelayWithoutRoom(t *testing.T) {
	_, _, relay, s := setup()
	s.SetRoom("")
	s.KeyDown("KeyA", "C4", 1)
	assert.Empty(t, relay.notes)
}

func TestPlayTake(t *testing.T) {
	c, engine, _, s := setup()
	s.StartRecording()
	s.KeyDown("KeyA", "C4", 1)
	c.Advance(200 * time.Millisecond)
	s.KeyUp("KeyA")
	s.StopRecording()
	engine.calls = nil

	assert.True(t, s.Play())
	assert.True(t, s.Playing())
	assert.False(t, s.Play())

	c.Advance(300 * time.Millisecond)
	assert.Equal(t, []string{"on:C4", "off:KeyA"}, engine.calls)
	assert.False(t, s.Playing())
}

func TestPlaybackDuringRecordingIsNotCaptured(t *testing.T) {
	c, engine, _, s := setup()
	s.Load(file.Export([]model.NoteEvent{model.NewNoteEvent("KeyA", "C4", 1, 0, 100)}, "", time.Unix(0, 0), 120))
	s.StartRecording()

	assert.True(t, s.Play())
	c.Advance(300 * time.Millisecond)
	assert.Equal(t, []string{"on:C4", "off:KeyA"}, engine.calls)
	assert.True(t, s.Recording())
	assert.Empty(t, s.StopRecording())
}

func TestLoopRepeatsUntilStopped(t *testing.T) {
	c, engine, _, s := setup()
	s.Load(file.Export([]model.NoteEvent{model.NewNoteEvent("KeyA", "C4", 1, 0, 500)}, "", time.Unix(0, 0), 120))

	assert.True(t, s.Loop())
	// each pass is 500ms of notes plus the settling margin
	c.Advance(1300 * time.Millisecond)
	assert.Equal(t, []string{"on:C4", "off:KeyA", "on:C4", "off:KeyA", "on:C4"}, engine.calls)
	assert.True(t, s.Playing())

	s.StopPlayback()
	assert.Equal(t, "off:KeyA", engine.calls[len(engine.calls)-1])
	assert.False(t, s.Playing())
	c.Advance(5 * time.Second)
	assert.Len(t, engine.calls, 6)
	assert.Equal(t, 0, c.Pending())
}

func TestStopPlaybackRacingLoopPassEnd(t *testing.T) {
	take := file.Export([]model.NoteEvent{model.NewNoteEvent("KeyA", "C4", 1, 0, 100)}, "", time.Unix(0, 0), 120)
	for i := 0; i < 500; i++ {
		c, engine, _, s := setup()
		s.Load(take)
		assert.True(t, s.Loop())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			// first pass ends at 100ms plus the settling margin
			c.Advance(200 * time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			s.StopPlayback()
		}()
		wg.Wait()

		if !assert.False(t, s.Playing()) || !assert.Equal(t, 0, c.Pending()) || !assert.True(t, engine.balanced()) {
			return
		}
	}
}

func TestEmptyTakeDoesNotLoop(t *testing.T) {
	_, _, _, s := setup()
	assert.False(t, s.Loop())
	assert.True(t, s.Play())
	assert.False(t, s.Playing())
}

func TestClear(t *testing.T) {
	c, _, _, s := setup()
	s.StartRecording()
	s.KeyDown("KeyA", "C4", 1)
	c.Advance(100 * time.Millisecond)
	s.KeyUp("KeyA")
	s.StopRecording()
	s.Loop()

	s.Clear()
	assert.Empty(t, s.Take())
	assert.False(t, s.Playing())
	assert.False(t, s.Recording())
	assert.Equal(t, 0, s.Export("", time.Unix(0, 0)).NoteCount)
}

func TestExport(t *testing.T) {
	c, _, _, s := setup()
	s.StartRecording()
	s.KeyDown("KeyA", "C4", 1)
	s.KeyDown("KeyS", "D4", 1)
	c.Advance(250 * time.Millisecond)
	s.StopRecording()

	rec := s.Export("duo", time.Unix(0, 0))
	assert.Equal(t, "duo", rec.Name)
	assert.Equal(t, 2, rec.NoteCount)
	assert.Equal(t, int64(250), rec.TotalDurationMs)
	assert.Equal(t, "C4", rec.Notes[0].Pitch)
}
