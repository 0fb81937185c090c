package file

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jsphweid/harmonyjam/constants"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/pkg/errors"
)

// DefaultName is the name given to an export nobody named.
func DefaultName(t time.Time) string {
	return "Harmony Recording " + t.Local().Format("1/2/2006, 3:04:05 PM")
}

// Filename is the download name for a recording created at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("harmony-recording-%d.json", t.UnixMilli())
}

// Export builds the portable document for events. An empty name falls back
// to DefaultName and a non-positive bpm to the default tempo.
func Export(events []model.NoteEvent, name string, createdAt time.Time, bpm int) model.Recording {
	if name == "" {
		name = DefaultName(createdAt)
	}
	if bpm <= 0 {
		bpm = constants.DefaultBPM
	}
	notes := make([]model.RecordedNote, 0, len(events))
	for _, e := range events {
		notes = append(notes, model.RecordedNote{
			Pitch:         e.Pitch,
			FrequencyHz:   e.FrequencyHz,
			StartOffsetMs: e.StartOffsetMs,
			DurationMs:    e.DurationMs,
			Velocity:      e.Velocity,
			SourceKey:     e.SourceKey,
		})
	}
	return model.Recording{
		Version:         constants.ExportVersion,
		Name:            name,
		CreatedAt:       createdAt,
		BPM:             bpm,
		TotalDurationMs: model.TotalDurationMs(events),
		NoteCount:       len(events),
		Notes:           notes,
	}
}

// Events turns a document back into note events in document order. Each
// note goes through model.NewNoteEvent, so frequencies are derived again and
// the velocity and duration bounds hold whatever the document says.
func Events(rec model.Recording) []model.NoteEvent {
	res := make([]model.NoteEvent, 0, len(rec.Notes))
	for _, n := range rec.Notes {
		res = append(res, model.NewNoteEvent(n.SourceKey, n.Pitch, n.Velocity, n.StartOffsetMs, n.DurationMs))
	}
	return res
}

func Encode(w io.Writer, rec model.Recording) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(rec), "encode recording")
}

// Decode reads a document and checks it is one we understand.
func Decode(r io.Reader) (model.Recording, error) {
	var rec model.Recording
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return rec, errors.Wrap(err, "decode recording")
	}
	if rec.Version != constants.ExportVersion {
		return rec, errors.Errorf("unsupported recording version %q", rec.Version)
	}
	if rec.Notes == nil {
		rec.Notes = []model.RecordedNote{}
	}
	for i, n := range rec.Notes {
		if n.StartOffsetMs < 0 || n.DurationMs <= 0 {
			return rec, errors.Errorf("note %d has invalid timing", i)
		}
	}
	return rec, nil
}

// Save writes rec into dir under its Filename and returns the path.
func Save(dir string, rec model.Recording) (string, error) {
	path := filepath.Join(dir, Filename(rec.CreatedAt))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create recording file")
	}
	defer f.Close()
	if err := Encode(f, rec); err != nil {
		return "", err
	}
	return path, nil
}

func Load(path string) (model.Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Recording{}, errors.Wrap(err, "open recording file")
	}
	defer f.Close()
	rec, err := Decode(f)
	return rec, errors.Wrapf(err, "load %s", path)
}
