package cmd

import (
	"github.com/jsphweid/harmonyjam/constants"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "harmonyjam",
	Short: "Real-time jam rooms",
	Long:  `Play notes together in shared rooms, record takes and play them back.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := log.ParseLevel(constants.GetLogLevel())
		if err != nil {
			level = log.InfoLevel
		}
		if debug {
			level = log.DebugLevel
		}
		log.SetLevel(level)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
