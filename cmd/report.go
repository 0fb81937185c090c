package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jsphweid/harmonyjam/constants"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var reportAddr string

func init() {
	reportCmd.Flags().StringVar(&reportAddr, "addr", "http://localhost:"+constants.GetPort(), "room server base url")
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Reports on a running room server",
	Long:  `Fetches /health and /rooms from a running server and prints them.`,
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(report())
	},
}

func getJSON(c *http.Client, url string, v any) error {
	res, err := c.Get(url)
	if err != nil {
		return errors.Wrap(err, "get "+url)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("get %s: %s", url, res.Status)
	}
	return errors.Wrap(json.NewDecoder(res.Body).Decode(v), "decode "+url)
}

func report() error {
	c := &http.Client{Timeout: 5 * time.Second}

	var health model.HealthResponse
	if err := getJSON(c, reportAddr+"/health", &health); err != nil {
		return err
	}
	var rooms []model.RoomSummary
	if err := getJSON(c, reportAddr+"/rooms", &rooms); err != nil {
		return err
	}

	fmt.Printf("status: %v\n", health.Status)
	fmt.Printf("timestamp: %v\n", health.Timestamp.Local())
	fmt.Printf("clients: %v\n", health.Clients)
	fmt.Printf("rooms: %v\n", health.Rooms)
	for _, r := range rooms {
		fmt.Printf("  %s: %v participants\n", r.RoomID, r.Participants)
	}
	return nil
}
