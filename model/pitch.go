package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var semitones = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// frequency used for names that don't parse
const FallbackFrequencyHz = 440.0

// ParsePitch turns a symbolic name like "C4", "F#3" or "Bb5" into a MIDI key
// number, with C4 = 60.
func ParsePitch(name string) (uint8, error) {
	if len(name) < 2 {
		return 0, fmt.Errorf("invalid pitch %q", name)
	}
	base, ok := semitones[strings.ToUpper(name[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("invalid pitch letter in %q", name)
	}
	rest := name[1:]
	switch rest[0] {
	case '#':
		base++
		rest = rest[1:]
	case 'b':
		base--
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid octave in %q", name)
	}
	key := (octave+1)*12 + base
	if key < 0 || key > 127 {
		return 0, fmt.Errorf("pitch %q out of midi range", name)
	}
	return uint8(key), nil
}

// PitchName is the inverse of ParsePitch, always spelled with sharps.
func PitchName(key uint8) string {
	return fmt.Sprintf("%s%d", noteNames[key%12], int(key)/12-1)
}

// FrequencyOf returns the equal tempered frequency of a pitch name, rounded
// to two decimals. Unknown names sound as A4.
func FrequencyOf(name string) float64 {
	key, err := ParsePitch(name)
	if err != nil {
		return FallbackFrequencyHz
	}
	hz := 440 * math.Pow(2, (float64(key)-69)/12)
	return math.Round(hz*100) / 100
}
