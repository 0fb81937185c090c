package file

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jsphweid/harmonyjam/model"
	"github.com/stretchr/testify/assert"
)

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestExportEmpty(t *testing.T) {
	rec := Export(nil, "", created, 0)

	assert := assert.New(t)
	assert.Equal("1.0.0", rec.Version)
	assert.Equal(120, rec.BPM)
	assert.True(strings.HasPrefix(rec.Name, "Harmony Recording "))
	assert.Equal(int64(0), rec.TotalDurationMs)
	assert.Equal(0, rec.NoteCount)
	assert.NotNil(rec.Notes)

	var buf bytes.Buffer
	assert.NoError(Encode(&buf, rec))
	assert.Contains(buf.String(), `"notes": []`)
}

func TestRoundTrip(t *testing.T) {
	events := []model.NoteEvent{
		model.NewNoteEvent("KeyA", "C4", 0.8, 100, 300),
		model.NewNoteEvent("KeyS", "D4", 0.5, 500, 50),
	}
	rec := Export(events, "take one", created, 90)
	assert.Equal(t, int64(550), rec.TotalDurationMs)
	assert.Equal(t, 2, rec.NoteCount)

	var buf bytes.Buffer
	assert.NoError(t, Encode(&buf, rec))
	got, err := Decode(&buf)
	assert.NoError(t, err)
	assert.Equal(t, "take one", got.Name)
	assert.Equal(t, 90, got.BPM)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, events, Events(got))
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"garbage":    `{nope`,
		"version":    `{"version":"9.9","notes":[]}`,
		"bad timing": `{"version":"1.0.0","notes":[{"pitch":"C4","startOffsetMs":0,"durationMs":0}]}`,
		"neg offset": `{"version":"1.0.0","notes":[{"pitch":"C4","startOffsetMs":-5,"durationMs":60}]}`,
	}
	for name, doc := range cases {
		_, err := Decode(strings.NewReader(doc))
		assert.Error(t, err, name)
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	rec := Export([]model.NoteEvent{model.NewNoteEvent("KeyA", "A4", 1, 0, 200)}, "x", created, 120)

	path, err := Save(dir, rec)
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, Filename(created)))
	assert.Equal(t, "harmony-recording-1709294400000.json", Filename(created))

	got, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, rec.Notes, got.Notes)

	_, err = Load(dir + "/missing.json")
	assert.Error(t, err)
}

func TestEventsApplyNoteBounds(t *testing.T) {
	doc := `{"version":"1.0.0","notes":[{"pitch":"A4","frequencyHz":1,"startOffsetMs":0,"durationMs":5,"velocity":7,"sourceKey":"KeyA"}]}`
	rec, err := Decode(strings.NewReader(doc))
	assert.NoError(t, err)

	events := Events(rec)
	assert.Len(t, events, 1)
	assert.Equal(t, model.NewNoteEvent("KeyA", "A4", 1, 0, 50), events[0])
	assert.Equal(t, 440.0, events[0].FrequencyHz)
}
