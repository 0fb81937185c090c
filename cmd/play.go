package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/file"
	"github.com/jsphweid/harmonyjam/playback"
	"github.com/jsphweid/harmonyjam/studio"
	"github.com/jsphweid/harmonyjam/tone"
	"github.com/spf13/cobra"
)

var playLoop bool

func init() {
	playCmd.Flags().BoolVar(&playLoop, "loop", false, "repeat until interrupted")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play <recording>",
	Short: "Plays a recording",
	Long:  `Plays a .json export or .mid file through the logging tone engine.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(play(args[0]))
	},
}

func play(path string) error {
	rec, err := loadRecording(path)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	engine := tone.NewLogEngine()

	if playLoop {
		s := studio.New(clock.New(), engine, studio.WithKeyboard(engine))
		s.Load(rec)
		s.Loop()
		<-ctx.Done()
		s.StopPlayback()
		return nil
	}

	done := make(chan struct{})
	sch := playback.New(clock.New(), engine,
		playback.WithKeyboard(engine),
		playback.OnFinished(func(bool) { close(done) }),
	)
	sch.Play(file.Events(rec))
	select {
	case <-done:
	case <-ctx.Done():
		sch.Stop()
	}
	return nil
}
