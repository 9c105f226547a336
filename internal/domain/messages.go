package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Relay event names. Inbound and outbound events share one namespace.
const (
	EventJoinMatch       = "join-match"
	EventStreamToggle    = "stream-toggle"
	EventWatchMatch      = "watch-match"
	EventRequestStream   = "webrtc-request-stream"
	EventOffer           = "webrtc-offer"
	EventAnswer          = "webrtc-answer"
	EventICECandidate    = "webrtc-ice-candidate"
	EventPing            = "ping"
	EventPong            = "pong"
	EventConnected       = "connected"
	EventAck             = "ack"
	EventMatchUpdated    = "match-updated"
	EventIncomingRequest = "webrtc-incoming-request"
)

// Envelope is the frame every client message arrives in. Ack is set when the
// client expects a reply to this specific message.
type Envelope struct {
	Event string          `json:"event"`
	Ack   *uint64         `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundMessage is the frame every server message leaves in.
type OutboundMessage struct {
	Event string      `json:"event"`
	Ack   *uint64     `json:"ack,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, errors.New("message missing event")
	}
	return env, nil
}

// DecodeData unmarshals the envelope payload into v. A missing payload is an error.
func (e Envelope) DecodeData(v interface{}) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return fmt.Errorf("%s: missing data", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: %w", e.Event, err)
	}
	return nil
}

type JoinMatchRequest struct {
	Code         string `json:"code"`
	CameraNumber int    `json:"cameraNumber"`
	CameraRole   string `json:"cameraRole"`
}

type StreamToggleRequest struct {
	Code         string `json:"code"`
	CameraNumber int    `json:"cameraNumber"`
	IsStreaming  bool   `json:"isStreaming"`
}

type WatchMatchRequest struct {
	Code string `json:"code"`
}

type RequestStreamRequest struct {
	MatchCode    string `json:"matchCode"`
	CameraNumber int    `json:"cameraNumber"`
}

type OfferRequest struct {
	ViewerConnectionID string          `json:"viewerConnectionId"`
	CameraNumber       int             `json:"cameraNumber"`
	SDP                json.RawMessage `json:"sdp"`
}

type AnswerRequest struct {
	CameraConnectionID string          `json:"cameraConnectionId"`
	SDP                json.RawMessage `json:"sdp"`
}

type ICECandidateRequest struct {
	TargetConnectionID string          `json:"targetConnectionId"`
	Candidate          json.RawMessage `json:"candidate"`
}

// AckResponse answers join-match and watch-match.
type AckResponse struct {
	OK    bool           `json:"ok,omitempty"`
	Error string         `json:"error,omitempty"`
	Match *MatchSnapshot `json:"match,omitempty"`
}

type ConnectedNotice struct {
	ConnectionID string `json:"connectionId"`
}

type IncomingRequestNotice struct {
	ViewerConnectionID string `json:"viewerConnectionId"`
	MatchCode          string `json:"matchCode"`
	CameraNumber       int    `json:"cameraNumber"`
}

type OfferNotice struct {
	CameraConnectionID string          `json:"cameraConnectionId"`
	CameraNumber       int             `json:"cameraNumber"`
	SDP                json.RawMessage `json:"sdp"`
}

type AnswerNotice struct {
	ViewerConnectionID string          `json:"viewerConnectionId"`
	SDP                json.RawMessage `json:"sdp"`
}

type ICECandidateNotice struct {
	SenderConnectionID string          `json:"senderConnectionId"`
	Candidate          json.RawMessage `json:"candidate"`
}
