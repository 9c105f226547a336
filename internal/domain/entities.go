package domain

import (
	"time"
)

// CreateMatchParams is the input to match creation. Sport and Venue are optional.
type CreateMatchParams struct {
	Title string
	TeamA string
	TeamB string
	Sport string
	Venue string
}

// MatchSnapshot is the externally visible view of a match. It never carries
// connection identifiers.
type MatchSnapshot struct {
	Code      string           `json:"code"`
	Title     string           `json:"title"`
	TeamA     string           `json:"teamA"`
	TeamB     string           `json:"teamB"`
	Sport     string           `json:"sport"`
	Venue     string           `json:"venue"`
	CreatedAt time.Time        `json:"createdAt"`
	IsLive    bool             `json:"isLive"`
	Cameras   []CameraSnapshot `json:"cameras"`
}

type CameraSnapshot struct {
	Number      int    `json:"number"`
	Role        string `json:"role"`
	IsStreaming bool   `json:"isStreaming"`
}

// Camera returns the snapshot of camera slot n, if occupied.
func (s MatchSnapshot) Camera(n int) (CameraSnapshot, bool) {
	for _, cam := range s.Cameras {
		if cam.Number == n {
			return cam, true
		}
	}
	return CameraSnapshot{}, false
}

// SlotLocation identifies a camera slot released from a match.
type SlotLocation struct {
	Code         string
	CameraNumber int
}

type RegistryStats struct {
	Matches     int `json:"matches"`
	LiveMatches int `json:"liveMatches"`
	Cameras     int `json:"cameras"`
	Streaming   int `json:"streaming"`
}

type MatchEvent struct {
	ID           string         `json:"id"`
	Type         MatchEventType `json:"type"`
	MatchCode    string         `json:"matchCode"`
	CameraNumber int            `json:"cameraNumber,omitempty"`
	IsLive       bool           `json:"isLive"`
	Timestamp    time.Time      `json:"timestamp"`
}

type MatchEventType string

const (
	MatchCreated  MatchEventType = "match_created"
	CameraJoined  MatchEventType = "camera_joined"
	CameraLeft    MatchEventType = "camera_left"
	StreamStarted MatchEventType = "stream_started"
	StreamStopped MatchEventType = "stream_stopped"
)
