package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/constants"
	"github.com/jsphweid/harmonyjam/room"
	"github.com/jsphweid/harmonyjam/server"
	"github.com/spf13/cobra"
)

var (
	servePort    string
	serveOrigins []string
)

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", constants.GetPort(), "port to listen on")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "origins", constants.GetAllowedOriginPrefixes(), "allowed origin prefixes")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the room server",
	Long:  `Runs the room server: websocket transport on /ws plus /health and /rooms.`,
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(serve())
	},
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := room.NewManager(clock.New())
	s := server.New(manager, serveOrigins, constants.SendBuffer)
	return s.ListenAndServe(ctx, ":"+servePort)
}
