package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"nocaps-server/internal/domain"
	"nocaps-server/internal/infrastructure/websocket"
	"nocaps-server/pkg/logger"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	sent   []domain.OutboundMessage
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, message.(domain.OutboundMessage))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) messages(event string) []domain.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.OutboundMessage
	for _, msg := range c.sent {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// last returns the most recent message with the given event, failing the test if none.
func (c *fakeConn) last(t *testing.T, event string) domain.OutboundMessage {
	t.Helper()
	msgs := c.messages(event)
	if len(msgs) == 0 {
		t.Fatalf("connection %s received no %q message", c.id, event)
	}
	return msgs[len(msgs)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.MatchEvent
}

func (p *recordingPublisher) PublishMatchEvent(ctx context.Context, event *domain.MatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.MatchEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.MatchEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type relayFixture struct {
	registry *MatchRegistry
	conns    *websocket.ConnectionManager
	events   *recordingPublisher
	relay    *SignalingRelay
}

func newRelayFixture() *relayFixture {
	log := logger.NewNop()
	registry := NewMatchRegistry(NewCodeGenerator())
	conns := websocket.NewConnectionManager(log)
	events := &recordingPublisher{}
	return &relayFixture{
		registry: registry,
		conns:    conns,
		events:   events,
		relay:    NewSignalingRelay(registry, conns, events, 16, log),
	}
}

func (f *relayFixture) createMatch(t *testing.T) domain.MatchSnapshot {
	t.Helper()
	snapshot, err := f.registry.CreateMatch(domain.CreateMatchParams{Title: "Final", TeamA: "Reds", TeamB: "Blues"})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	return snapshot
}

func (f *relayFixture) connect(id string) *fakeConn {
	conn := newFakeConn(id)
	f.relay.handle(inbound{kind: inboundConnect, conn: conn, connectionID: id})
	return conn
}

func (f *relayFixture) disconnect(id string) {
	f.relay.handle(inbound{kind: inboundDisconnect, connectionID: id})
}

// emit delivers one client frame. A nil ack sends the frame without an ack id.
func (f *relayFixture) emit(t *testing.T, id, event string, ack *uint64, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	frame, err := json.Marshal(domain.Envelope{Event: event, Ack: ack, Data: raw})
	if err != nil {
		t.Fatalf("marshal %s envelope: %v", event, err)
	}
	f.relay.handle(inbound{kind: inboundMessage, connectionID: id, data: frame})
}

func ackID(n uint64) *uint64 { return &n }

func ackResponse(t *testing.T, msg domain.OutboundMessage) domain.AckResponse {
	t.Helper()
	resp, ok := msg.Data.(domain.AckResponse)
	if !ok {
		t.Fatalf("ack data is %T, want domain.AckResponse", msg.Data)
	}
	return resp
}

func matchUpdate(t *testing.T, msg domain.OutboundMessage) domain.MatchSnapshot {
	t.Helper()
	snapshot, ok := msg.Data.(domain.MatchSnapshot)
	if !ok {
		t.Fatalf("match-updated data is %T, want domain.MatchSnapshot", msg.Data)
	}
	return snapshot
}

// stepClock returns a clock that advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current := now
		now = now.Add(step)
		return current
	}
}
