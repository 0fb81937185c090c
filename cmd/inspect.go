package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jsphweid/harmonyjam/file"
	"github.com/jsphweid/harmonyjam/midi"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <recording>",
	Short: "Inspects a recording",
	Long:  `Prints the header and notes of a .json export or a .mid file.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rec, err := loadRecording(args[0])
		cobra.CheckErr(err)
		inspect(rec)
	},
}

func isMidi(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".mid" || ext == ".midi"
}

// loadRecording reads either format into an export document.
func loadRecording(path string) (model.Recording, error) {
	if !isMidi(path) {
		return file.Load(path)
	}
	s, err := midi.ReadMidiFile(path)
	if err != nil {
		return model.Recording{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return file.Export(midi.Events(s), name, time.Now(), midi.Tempo(s)), nil
}

func inspect(rec model.Recording) {
	fmt.Printf("name: %v\n", rec.Name)
	fmt.Printf("version: %v\n", rec.Version)
	fmt.Printf("createdAt: %v\n", rec.CreatedAt.Local())
	fmt.Printf("bpm: %v\n", rec.BPM)
	fmt.Printf("totalDurationMs: %v\n", rec.TotalDurationMs)
	fmt.Printf("noteCount: %v\n", rec.NoteCount)
	for _, n := range rec.Notes {
		fmt.Printf("%8dms %-4s %7.2fHz dur %5dms vel %.2f key %s\n",
			n.StartOffsetMs, n.Pitch, n.FrequencyHz, n.DurationMs, n.Velocity, n.SourceKey)
	}
}
