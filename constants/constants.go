package constants

import (
	"os"
	"strings"
	"time"
)

func GetPort() string {
	port := os.Getenv("PORT")
	if port != "" {
		return port
	}
	return "5000"
}

func GetSocketURL() string {
	url := os.Getenv("SOCKET_URL")
	if url != "" {
		return url
	}
	return "ws://localhost:" + GetPort() + "/ws"
}

func GetAllowedOriginPrefixes() []string {
	raw := os.Getenv("ALLOWED_ORIGIN_PREFIXES")
	if raw == "" {
		return []string{"http://localhost:", "http://127.0.0.1:"}
	}
	var res []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}

func GetLogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level != "" {
		return level
	}
	return "info"
}

// shortest note the recorder will produce, avoids zero-length clicks
const MinDurationMs = 50

// pad after the last release before playback goes back to idle
const SettlingMarginMs = 100

const DefaultVelocity = 0.8

const DefaultBPM = 120

const DefaultDisplayName = "Anonymous"

const ExportVersion = "1.0.0"

const ReconnectAttempts = 5

const ReconnectDelay = time.Second

// per connection outbound buffer; deliveries beyond it are dropped
const SendBuffer = 64

// ticks per quarter note for exported MIDI files
const MidiResolution = 960
