package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/file"
	"github.com/jsphweid/harmonyjam/midi"
	"github.com/jsphweid/harmonyjam/studio"
	"github.com/jsphweid/harmonyjam/tone"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver
)

var (
	recordPort int
	recordOut  string
	recordName string
	recordMidi string
)

func init() {
	recordCmd.Flags().IntVar(&recordPort, "port", 0, "midi input port number")
	recordCmd.Flags().StringVar(&recordOut, "out", ".", "directory the json export is saved to")
	recordCmd.Flags().StringVar(&recordName, "name", "", "recording name")
	recordCmd.Flags().StringVar(&recordMidi, "midi", "", "also write a .mid file here")
	rootCmd.AddCommand(recordCmd)
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Records from a MIDI keyboard",
	Long:  `Records notes from a MIDI input until interrupted, then saves the take.`,
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(record())
	},
}

func record() error {
	defer midi.CloseDriver()
	logger := log.WithFields(log.Fields{"function": "record"})

	engine := tone.NewLogEngine()
	s := studio.New(clock.New(), engine, studio.WithKeyboard(engine))
	s.StartRecording()

	stopListening, err := midi.Listen(recordPort, s)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logger.Info("recording, ctrl-c to finish")
	<-ctx.Done()
	stopListening()

	s.StopRecording()
	rec := s.Export(recordName, time.Now())
	path, err := file.Save(recordOut, rec)
	if err != nil {
		return err
	}
	logger.WithField("notes", rec.NoteCount).Info("saved " + path)
	if recordMidi != "" {
		return midi.WriteFile(recordMidi, rec)
	}
	return nil
}
