package midi

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/jsphweid/harmonyjam/constants"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

type mark struct {
	tick  uint32
	key   uint8
	vel   uint8
	isOff bool
}

// MsToTicks converts an offset to ticks at bpm with the package resolution.
func MsToTicks(ms int64, bpm int) uint32 {
	return uint32(math.Round(float64(ms) * float64(constants.MidiResolution) * float64(bpm) / 60000))
}

func velocityToMidi(v float64) uint8 {
	return uint8(math.Round(model.ClampVelocity(v) * 127))
}

// Encode renders a recording as a single track Standard MIDI File. Notes
// whose pitch cannot be parsed are skipped.
func Encode(w io.Writer, rec model.Recording) error {
	logger := log.WithFields(log.Fields{"function": "midi.Encode", "name": rec.Name})
	bpm := rec.BPM
	if bpm <= 0 {
		bpm = constants.DefaultBPM
	}

	marks := make([]mark, 0, len(rec.Notes)*2)
	for _, n := range rec.Notes {
		key, err := model.ParsePitch(n.Pitch)
		if err != nil {
			logger.Warn("skipping note: " + err.Error())
			continue
		}
		marks = append(marks,
			mark{tick: MsToTicks(n.StartOffsetMs, bpm), key: key, vel: velocityToMidi(n.Velocity)},
			mark{tick: MsToTicks(n.StartOffsetMs+n.DurationMs, bpm), key: key, isOff: true},
		)
	}
	// offs first so a repeated key releases before it strikes again
	sort.SliceStable(marks, func(i, j int) bool {
		if marks[i].tick != marks[j].tick {
			return marks[i].tick < marks[j].tick
		}
		return marks[i].isOff && !marks[j].isOff
	})

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(constants.MidiResolution)
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(float64(bpm)))
	var last uint32
	for _, m := range marks {
		delta := m.tick - last
		last = m.tick
		if m.isOff {
			tr.Add(delta, midi.NoteOff(0, m.key))
		} else {
			tr.Add(delta, midi.NoteOn(0, m.key, m.vel))
		}
	}
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		return errors.Wrap(err, "add track")
	}
	_, err := s.WriteTo(w)
	return errors.Wrap(err, "write smf")
}

func WriteFile(path string, rec model.Recording) error {
	var buf bytes.Buffer
	if err := Encode(&buf, rec); err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, buf.Bytes(), 0644), "write midi file")
}

// ReadMidiFile parses the file at path.
func ReadMidiFile(path string) (s *smf.SMF, e error) {
	// smf can panic on malformed input
	// https://github.com/gomidi/midi/issues/20
	defer func() {
		if r := recover(); r != nil {
			s = nil
			e = errors.Errorf("parsing midi file panicked: %v", r)
		}
	}()

	dat, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading midi file")
	}
	res, err := smf.ReadFrom(bytes.NewReader(dat))
	if err != nil {
		return nil, errors.Wrap(err, "parsing midi file")
	}
	return res, nil
}

type held struct {
	startMs int64
	vel     uint8
}

// Events extracts notes from every track of s, pairing each note on with the
// next note off of the same key and channel. Notes still sounding at the end
// of a track release at the track's last event.
func Events(s *smf.SMF) []model.NoteEvent {
	var res []model.NoteEvent
	for _, track := range s.Tracks {
		open := make(map[[2]uint8][]held)
		var absTicks int64
		var lastMs int64
		release := func(id [2]uint8, endMs int64) {
			stack := open[id]
			if len(stack) == 0 {
				return
			}
			h := stack[0]
			open[id] = stack[1:]
			res = append(res, model.NewNoteEvent(
				sourceKey(id[1]),
				model.PitchName(id[1]),
				float64(h.vel)/127,
				h.startMs,
				endMs-h.startMs,
			))
		}
		for _, event := range track {
			absTicks += int64(event.Delta)
			absMs := s.TimeAt(absTicks) / 1000
			lastMs = absMs
			var channel, key, velocity uint8
			switch {
			case event.Message.GetNoteOn(&channel, &key, &velocity):
				id := [2]uint8{channel, key}
				if velocity == 0 {
					release(id, absMs)
					continue
				}
				open[id] = append(open[id], held{startMs: absMs, vel: velocity})
			case event.Message.GetNoteOff(&channel, &key, &velocity):
				release([2]uint8{channel, key}, absMs)
			}
		}
		for id, stack := range open {
			for range stack {
				release(id, lastMs)
			}
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].StartOffsetMs != res[j].StartOffsetMs {
			return res[i].StartOffsetMs < res[j].StartOffsetMs
		}
		return res[i].Pitch < res[j].Pitch
	})
	if res == nil {
		res = []model.NoteEvent{}
	}
	return res
}

// Tempo is the first tempo found in s, or the default.
func Tempo(s *smf.SMF) int {
	for _, track := range s.Tracks {
		for _, event := range track {
			var bpm float64
			if event.Message.GetMetaTempo(&bpm) {
				return int(math.Round(bpm))
			}
		}
	}
	return constants.DefaultBPM
}

func sourceKey(key uint8) string {
	return fmt.Sprintf("midi-%d", key)
}
