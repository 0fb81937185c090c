package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jsphweid/harmonyjam/client"
	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/constants"
	"github.com/jsphweid/harmonyjam/file"
	"github.com/jsphweid/harmonyjam/studio"
	"github.com/jsphweid/harmonyjam/tone"
	"github.com/jsphweid/harmonyjam/util"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	jamURL  string
	jamRoom string
	jamName string
	jamOut  string
)

func init() {
	jamCmd.Flags().StringVar(&jamURL, "url", constants.GetSocketURL(), "room server websocket url")
	jamCmd.Flags().StringVar(&jamRoom, "room", "lobby", "room to join")
	jamCmd.Flags().StringVar(&jamName, "name", constants.DefaultDisplayName, "display name")
	jamCmd.Flags().StringVar(&jamOut, "out", ".", "directory recordings are saved to")
	rootCmd.AddCommand(jamCmd)
}

var jamCmd = &cobra.Command{
	Use:   "jam",
	Short: "Joins a room from the terminal",
	Long: `Joins a room and reads commands from stdin:
  note <pitch> [ms]   play a note, held for ms (default 200)
  say <text>          send a chat message
  rec | stop          start or stop recording
  play | loop | halt  play the take once, loop it, stop playback
  save [name]         export the take as json
  who | log           list participants, show the message log
  quit`,
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(jam(os.Stdin, os.Stdout))
	},
}

type jammer struct {
	out     io.Writer
	session *client.Session
	studio  *studio.Studio
}

func jam(in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := tone.NewLogEngine()
	conn := client.NewConn(jamURL)
	session := client.NewSession(conn, engine)
	j := &jammer{
		out:     out,
		session: session,
		studio:  studio.New(clock.New(), engine, studio.WithKeyboard(engine), studio.WithRelay(session, jamRoom)),
	}

	errc := make(chan error, 1)
	go func() { errc <- conn.Run(ctx, session) }()
	for !conn.Connected() {
		select {
		case err := <-errc:
			return err
		case <-time.After(50 * time.Millisecond):
		}
	}
	if err := session.Join(jamRoom, jamName); err != nil {
		return err
	}
	fmt.Fprintf(out, "joined %s as %s\n", jamRoom, jamName)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "quit" {
				session.Leave(jamRoom)
				return nil
			}
			j.handle(line)
		}
	}
}

func (j *jammer) handle(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
	switch fields[0] {
	case "note":
		if len(fields) < 2 {
			fmt.Fprintln(j.out, "usage: note <pitch> [ms]")
			return
		}
		holdMs := 200
		if len(fields) > 2 {
			fmt.Sscanf(fields[2], "%d", &holdMs)
		}
		key := "stdin-" + fields[1]
		j.studio.KeyDown(key, fields[1], constants.DefaultVelocity)
		time.AfterFunc(time.Duration(holdMs)*time.Millisecond, func() { j.studio.KeyUp(key) })
	case "say":
		j.session.SendChat(jamRoom, rest, jamName)
	case "rec":
		j.studio.StartRecording()
	case "stop":
		fmt.Fprintf(j.out, "recorded %d notes\n", len(j.studio.StopRecording()))
	case "play":
		j.studio.Play()
	case "loop":
		j.studio.Loop()
	case "halt":
		j.studio.StopPlayback()
	case "save":
		path, err := file.Save(jamOut, j.studio.Export(rest, time.Now()))
		if err != nil {
			log.WithFields(log.Fields{"function": "jammer.handle"}).Error(err.Error())
			return
		}
		fmt.Fprintf(j.out, "saved %s\n", path)
	case "who":
		for _, id := range j.session.Participants(jamRoom) {
			fmt.Fprintf(j.out, "%s (%s)\n", j.session.DisplayName(jamRoom, id), util.Truncate(id, 8))
		}
	case "log":
		for _, e := range j.session.Messages(jamRoom) {
			if e.Kind == client.EntrySystem {
				fmt.Fprintf(j.out, "* %s\n", e.Text)
			} else {
				fmt.Fprintf(j.out, "<%s> %s\n", e.DisplayName, e.Text)
			}
		}
	default:
		fmt.Fprintf(j.out, "unknown command %q\n", fields[0])
	}
}
