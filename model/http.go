package model

import "time"

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Clients   int       `json:"clients"`
	Rooms     int       `json:"rooms"`
}

type RoomSummary struct {
	RoomID       string `json:"roomId"`
	Participants int    `json:"participants"`
}

type ErrorResponse struct {
	Error string `json:"detail"`
}
