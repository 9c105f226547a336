package services

import (
	"context"
	"errors"
	"fmt"

	"nocaps-server/internal/domain"
	"nocaps-server/pkg/logger"
)

var ErrRelayStopped = errors.New("signaling relay stopped")

type inboundKind int

const (
	inboundConnect inboundKind = iota
	inboundMessage
	inboundDisconnect
)

type inbound struct {
	kind         inboundKind
	conn         domain.Connection
	connectionID string
	data         []byte
}

// SignalingRelay turns client messages into registry mutations, match-updated
// broadcasts and point-to-point WebRTC negotiation relays. Events are handled
// one at a time by Run, so broadcasts leave in the order mutations happened.
type SignalingRelay struct {
	registry *MatchRegistry
	conns    domain.ConnectionManager
	events   domain.MatchEventPublisher
	log      logger.Logger

	inbox chan inbound
	done  chan struct{}
}

func NewSignalingRelay(registry *MatchRegistry, conns domain.ConnectionManager,
	events domain.MatchEventPublisher, inboxSize int, log logger.Logger) *SignalingRelay {
	return &SignalingRelay{
		registry: registry,
		conns:    conns,
		events:   events,
		log:      log,
		inbox:    make(chan inbound, inboxSize),
		done:     make(chan struct{}),
	}
}

// Run processes inbound events until ctx is cancelled, then closes every
// remaining connection.
func (r *SignalingRelay) Run(ctx context.Context) error {
	r.log.Info("Signaling relay started")
	defer func() {
		close(r.done)
		r.conns.CloseAll()
		r.log.Info("Signaling relay stopped")
	}()

	for {
		select {
		case ev := <-r.inbox:
			r.handle(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *SignalingRelay) Connect(conn domain.Connection) error {
	return r.enqueue(inbound{kind: inboundConnect, conn: conn, connectionID: conn.ID()})
}

func (r *SignalingRelay) Receive(connectionID string, data []byte) error {
	return r.enqueue(inbound{kind: inboundMessage, connectionID: connectionID, data: data})
}

func (r *SignalingRelay) Disconnect(connectionID string) error {
	return r.enqueue(inbound{kind: inboundDisconnect, connectionID: connectionID})
}

func (r *SignalingRelay) enqueue(ev inbound) error {
	select {
	case <-r.done:
		return ErrRelayStopped
	default:
	}

	select {
	case r.inbox <- ev:
		return nil
	case <-r.done:
		return ErrRelayStopped
	}
}

func (r *SignalingRelay) handle(ev inbound) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Recovered from panic in relay handler",
				"connection_id", ev.connectionID, "panic", fmt.Sprint(rec))
		}
	}()

	switch ev.kind {
	case inboundConnect:
		r.handleConnect(ev.conn)
	case inboundMessage:
		r.handleMessage(ev.connectionID, ev.data)
	case inboundDisconnect:
		r.handleDisconnect(ev.connectionID)
	}
}

func (r *SignalingRelay) handleConnect(conn domain.Connection) {
	if err := r.conns.RegisterConnection(conn); err != nil {
		r.log.Error("Failed to register connection", "connection_id", conn.ID(), "error", err)
		conn.Close()
		return
	}
	r.send(conn.ID(), domain.OutboundMessage{
		Event: domain.EventConnected,
		Data:  domain.ConnectedNotice{ConnectionID: conn.ID()},
	})
	r.log.Info("Connection opened", "connection_id", conn.ID())
}

// handleDisconnect runs at most once per connection: only the call that
// actually unregisters it releases slots.
func (r *SignalingRelay) handleDisconnect(connectionID string) {
	if !r.conns.UnregisterConnection(connectionID) {
		return
	}

	released := r.registry.ReleaseConnection(connectionID)
	if len(released) == 0 {
		r.log.Info("Connection closed", "connection_id", connectionID)
		return
	}

	for _, loc := range released {
		snapshot, err := r.registry.GetMatch(loc.Code)
		if err != nil {
			continue
		}
		r.broadcastMatch(snapshot)
		r.publish(domain.CameraLeft, snapshot, loc.CameraNumber)
		r.log.Info("Connection closed, camera released", "connection_id", connectionID,
			"match_code", loc.Code, "camera_number", loc.CameraNumber)
	}
}

func (r *SignalingRelay) handleMessage(connectionID string, data []byte) {
	env, err := domain.ParseEnvelope(data)
	if err != nil {
		r.log.Debug("Dropping malformed message", "connection_id", connectionID, "error", err)
		return
	}

	switch env.Event {
	case domain.EventJoinMatch:
		r.handleJoinMatch(connectionID, env)
	case domain.EventStreamToggle:
		r.handleStreamToggle(connectionID, env)
	case domain.EventWatchMatch:
		r.handleWatchMatch(connectionID, env)
	case domain.EventRequestStream:
		r.handleRequestStream(connectionID, env)
	case domain.EventOffer:
		r.handleOffer(connectionID, env)
	case domain.EventAnswer:
		r.handleAnswer(connectionID, env)
	case domain.EventICECandidate:
		r.handleICECandidate(connectionID, env)
	case domain.EventPing:
		r.send(connectionID, domain.OutboundMessage{Event: domain.EventPong, Ack: env.Ack})
	default:
		r.log.Debug("Dropping unknown event", "connection_id", connectionID, "event", env.Event)
	}
}

func (r *SignalingRelay) handleJoinMatch(connectionID string, env domain.Envelope) {
	var req domain.JoinMatchRequest
	if err := env.DecodeData(&req); err != nil {
		r.ack(connectionID, env, domain.AckResponse{Error: "invalid payload"})
		return
	}

	snapshot, vacated, err := r.registry.ClaimSlot(req.Code, req.CameraNumber, connectionID, req.CameraRole)
	if err != nil {
		r.ack(connectionID, env, domain.AckResponse{Error: joinErrorMessage(req.CameraNumber, err)})
		if !errors.Is(err, domain.ErrMatchNotFound) && !errors.Is(err, domain.ErrSlotTaken) &&
			!errors.Is(err, domain.ErrInvalidSlot) {
			r.log.Error("Failed to claim camera slot", "connection_id", connectionID, "error", err)
		}
		return
	}

	if err := r.conns.JoinMatch(snapshot.Code, connectionID); err != nil {
		r.log.Warn("Failed to join match group", "connection_id", connectionID,
			"match_code", snapshot.Code, "error", err)
	}
	r.broadcastMatch(snapshot)
	r.ack(connectionID, env, domain.AckResponse{OK: true})
	if vacated != 0 {
		r.publish(domain.CameraLeft, snapshot, vacated)
	}
	r.publish(domain.CameraJoined, snapshot, req.CameraNumber)

	r.log.Info("Camera joined match", "connection_id", connectionID,
		"match_code", snapshot.Code, "camera_number", req.CameraNumber, "role", req.CameraRole)
}

func joinErrorMessage(cameraNumber int, err error) string {
	switch {
	case errors.Is(err, domain.ErrMatchNotFound):
		return "match not found"
	case errors.Is(err, domain.ErrSlotTaken):
		return fmt.Sprintf("camera %d is already taken", cameraNumber)
	case errors.Is(err, domain.ErrInvalidSlot):
		return "invalid camera number"
	default:
		return "internal error"
	}
}

// Toggles from anyone but the slot owner are ignored without a reply.
func (r *SignalingRelay) handleStreamToggle(connectionID string, env domain.Envelope) {
	var req domain.StreamToggleRequest
	if err := env.DecodeData(&req); err != nil {
		r.log.Debug("Dropping invalid stream-toggle", "connection_id", connectionID, "error", err)
		return
	}

	snapshot, err := r.registry.SetStreaming(req.Code, req.CameraNumber, connectionID, req.IsStreaming)
	if err != nil {
		r.log.Debug("Ignoring stream-toggle", "connection_id", connectionID,
			"match_code", req.Code, "camera_number", req.CameraNumber, "error", err)
		return
	}

	r.broadcastMatch(snapshot)
	eventType := domain.StreamStopped
	if req.IsStreaming {
		eventType = domain.StreamStarted
	}
	r.publish(eventType, snapshot, req.CameraNumber)

	r.log.Info("Camera streaming toggled", "match_code", snapshot.Code,
		"camera_number", req.CameraNumber, "streaming", req.IsStreaming, "live", snapshot.IsLive)
}

func (r *SignalingRelay) handleWatchMatch(connectionID string, env domain.Envelope) {
	var req domain.WatchMatchRequest
	if err := env.DecodeData(&req); err != nil {
		r.ack(connectionID, env, domain.AckResponse{Error: "invalid payload"})
		return
	}

	snapshot, err := r.registry.GetMatch(req.Code)
	if err != nil {
		r.ack(connectionID, env, domain.AckResponse{Error: "match not found"})
		return
	}

	if err := r.conns.JoinMatch(snapshot.Code, connectionID); err != nil {
		r.log.Warn("Failed to join match group", "connection_id", connectionID,
			"match_code", snapshot.Code, "error", err)
	}
	r.ack(connectionID, env, domain.AckResponse{Match: &snapshot})

	r.log.Info("Viewer watching match", "connection_id", connectionID, "match_code", snapshot.Code)
}

func (r *SignalingRelay) handleRequestStream(connectionID string, env domain.Envelope) {
	var req domain.RequestStreamRequest
	if err := env.DecodeData(&req); err != nil {
		r.log.Debug("Dropping invalid stream request", "connection_id", connectionID, "error", err)
		return
	}

	cameraID, ok := r.registry.StreamingOwner(req.MatchCode, req.CameraNumber)
	if !ok {
		r.log.Debug("Dropping stream request, camera not streaming", "connection_id", connectionID,
			"match_code", req.MatchCode, "camera_number", req.CameraNumber)
		return
	}

	r.send(cameraID, domain.OutboundMessage{
		Event: domain.EventIncomingRequest,
		Data: domain.IncomingRequestNotice{
			ViewerConnectionID: connectionID,
			MatchCode:          normalizeCode(req.MatchCode),
			CameraNumber:       req.CameraNumber,
		},
	})
	r.log.Info("Viewer requested stream", "connection_id", connectionID,
		"match_code", normalizeCode(req.MatchCode), "camera_number", req.CameraNumber)
}

func (r *SignalingRelay) handleOffer(connectionID string, env domain.Envelope) {
	var req domain.OfferRequest
	if err := env.DecodeData(&req); err != nil || req.ViewerConnectionID == "" {
		r.log.Debug("Dropping invalid offer", "connection_id", connectionID)
		return
	}
	r.send(req.ViewerConnectionID, domain.OutboundMessage{
		Event: domain.EventOffer,
		Data: domain.OfferNotice{
			CameraConnectionID: connectionID,
			CameraNumber:       req.CameraNumber,
			SDP:                req.SDP,
		},
	})
}

func (r *SignalingRelay) handleAnswer(connectionID string, env domain.Envelope) {
	var req domain.AnswerRequest
	if err := env.DecodeData(&req); err != nil || req.CameraConnectionID == "" {
		r.log.Debug("Dropping invalid answer", "connection_id", connectionID)
		return
	}
	r.send(req.CameraConnectionID, domain.OutboundMessage{
		Event: domain.EventAnswer,
		Data: domain.AnswerNotice{
			ViewerConnectionID: connectionID,
			SDP:                req.SDP,
		},
	})
}

func (r *SignalingRelay) handleICECandidate(connectionID string, env domain.Envelope) {
	var req domain.ICECandidateRequest
	if err := env.DecodeData(&req); err != nil || req.TargetConnectionID == "" {
		r.log.Debug("Dropping invalid ice candidate", "connection_id", connectionID)
		return
	}
	r.send(req.TargetConnectionID, domain.OutboundMessage{
		Event: domain.EventICECandidate,
		Data: domain.ICECandidateNotice{
			SenderConnectionID: connectionID,
			Candidate:          req.Candidate,
		},
	})
}

func (r *SignalingRelay) ack(connectionID string, env domain.Envelope, resp domain.AckResponse) {
	if env.Ack == nil {
		return
	}
	r.send(connectionID, domain.OutboundMessage{Event: domain.EventAck, Ack: env.Ack, Data: resp})
}

func (r *SignalingRelay) send(connectionID string, msg domain.OutboundMessage) {
	if err := r.conns.SendToConnection(connectionID, msg); err != nil {
		r.log.Debug("Dropping directed message", "connection_id", connectionID,
			"event", msg.Event, "error", err)
	}
}

func (r *SignalingRelay) broadcastMatch(snapshot domain.MatchSnapshot) {
	msg := domain.OutboundMessage{Event: domain.EventMatchUpdated, Data: snapshot}
	if err := r.conns.BroadcastToMatch(snapshot.Code, msg); err != nil {
		r.log.Error("Failed to broadcast match update", "match_code", snapshot.Code, "error", err)
	}
}

func (r *SignalingRelay) publish(eventType domain.MatchEventType, snapshot domain.MatchSnapshot, cameraNumber int) {
	if r.events == nil {
		return
	}
	if err := r.events.PublishMatchEvent(context.Background(), newMatchEvent(eventType, snapshot, cameraNumber)); err != nil {
		r.log.Debug("Match event not published", "type", eventType, "error", err)
	}
}
