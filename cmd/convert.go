package cmd

import (
	"os"

	"github.com/jsphweid/harmonyjam/file"
	"github.com/jsphweid/harmonyjam/midi"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(convertCmd)
}

var convertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Converts between json exports and midi files",
	Long:  `Converts a recording; the format of each side is picked by extension (.json, .mid).`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(convert(args[0], args[1]))
	},
}

func convert(in, out string) error {
	rec, err := loadRecording(in)
	if err != nil {
		return err
	}
	if isMidi(out) {
		err = midi.WriteFile(out, rec)
	} else {
		var f *os.File
		f, err = os.Create(out)
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		defer f.Close()
		err = file.Encode(f, rec)
	}
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"function": "convert", "notes": rec.NoteCount}).Info("wrote " + out)
	return nil
}
