package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"nocaps-server/internal/domain"
)

func TestConnectSendsConnectionID(t *testing.T) {
	f := newRelayFixture()
	c := f.connect("c1")

	msg := c.last(t, domain.EventConnected)
	notice, ok := msg.Data.(domain.ConnectedNotice)
	if !ok || notice.ConnectionID != "c1" {
		t.Fatalf("connected data=%+v, want connection id c1", msg.Data)
	}
	if f.conns.ConnectionCount() != 1 {
		t.Fatalf("connections=%d, want 1", f.conns.ConnectionCount())
	}
}

func TestCameraAndViewerNegotiation(t *testing.T) {
	f := newRelayFixture()
	m := f.createMatch(t)
	camera := f.connect("c1")
	viewer := f.connect("v1")

	f.emit(t, "c1", domain.EventJoinMatch, ackID(1), domain.JoinMatchRequest{
		Code: m.Code, CameraNumber: 1, CameraRole: "wide",
	})
	ack := camera.last(t, domain.EventAck)
	if *ack.Ack != 1 || !ackResponse(t, ack).OK {
		t.Fatalf("join ack=%+v, want ok for ack 1", ack)
	}
	if cams := matchUpdate(t, camera.last(t, domain.EventMatchUpdated)).Cameras; len(cams) != 1 {
		t.Fatalf("camera saw cameras=%+v, want 1", cams)
	}

	f.emit(t, "v1", domain.EventWatchMatch, ackID(7), domain.WatchMatchRequest{Code: m.Code})
	watch := ackResponse(t, viewer.last(t, domain.EventAck))
	if watch.Match == nil || watch.Match.Code != m.Code || len(watch.Match.Cameras) != 1 {
		t.Fatalf("watch ack=%+v, want snapshot with one camera", watch)
	}

	f.emit(t, "c1", domain.EventStreamToggle, nil, domain.StreamToggleRequest{
		Code: m.Code, CameraNumber: 1, IsStreaming: true,
	})
	for _, conn := range []*fakeConn{camera, viewer} {
		update := matchUpdate(t, conn.last(t, domain.EventMatchUpdated))
		if !update.IsLive || !update.Cameras[0].IsStreaming {
			t.Fatalf("%s saw %+v, want live streaming camera", conn.id, update)
		}
	}

	f.emit(t, "v1", domain.EventRequestStream, nil, domain.RequestStreamRequest{MatchCode: m.Code, CameraNumber: 1})
	request, ok := camera.last(t, domain.EventIncomingRequest).Data.(domain.IncomingRequestNotice)
	if !ok || request.ViewerConnectionID != "v1" || request.MatchCode != m.Code || request.CameraNumber != 1 {
		t.Fatalf("incoming request=%+v", request)
	}

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	f.emit(t, "c1", domain.EventOffer, nil, domain.OfferRequest{ViewerConnectionID: "v1", CameraNumber: 1, SDP: sdp})
	offer, ok := viewer.last(t, domain.EventOffer).Data.(domain.OfferNotice)
	if !ok || offer.CameraConnectionID != "c1" || offer.CameraNumber != 1 || string(offer.SDP) != string(sdp) {
		t.Fatalf("offer=%+v", offer)
	}

	answerSDP := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	f.emit(t, "v1", domain.EventAnswer, nil, domain.AnswerRequest{CameraConnectionID: "c1", SDP: answerSDP})
	answer, ok := camera.last(t, domain.EventAnswer).Data.(domain.AnswerNotice)
	if !ok || answer.ViewerConnectionID != "v1" || string(answer.SDP) != string(answerSDP) {
		t.Fatalf("answer=%+v", answer)
	}

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0"}`)
	f.emit(t, "c1", domain.EventICECandidate, nil, domain.ICECandidateRequest{TargetConnectionID: "v1", Candidate: candidate})
	f.emit(t, "v1", domain.EventICECandidate, nil, domain.ICECandidateRequest{TargetConnectionID: "c1", Candidate: candidate})
	toViewer, _ := viewer.last(t, domain.EventICECandidate).Data.(domain.ICECandidateNotice)
	toCamera, _ := camera.last(t, domain.EventICECandidate).Data.(domain.ICECandidateNotice)
	if toViewer.SenderConnectionID != "c1" || toCamera.SenderConnectionID != "v1" {
		t.Fatalf("ice senders=%q/%q, want c1/v1", toViewer.SenderConnectionID, toCamera.SenderConnectionID)
	}

	f.disconnect("c1")
	final := matchUpdate(t, viewer.last(t, domain.EventMatchUpdated))
	if final.IsLive || len(final.Cameras) != 0 {
		t.Fatalf("after camera left viewer saw %+v, want empty and not live", final)
	}

	want := []domain.MatchEventType{domain.CameraJoined, domain.StreamStarted, domain.CameraLeft}
	got := f.events.types()
	if len(got) != len(want) {
		t.Fatalf("events=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events=%v, want %v", got, want)
		}
	}
}

func TestTwoCamerasSlotOneLeaves(t *testing.T) {
	cases := []struct {
		name         string
		slot2Streams bool
		wantLive     bool
	}{
		{"slot 2 idle", false, false},
		{"slot 2 streaming", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRelayFixture()
			m := f.createMatch(t)
			c1 := f.connect("c1")
			c2 := f.connect("c2")
			viewer := f.connect("v1")

			f.emit(t, "c1", domain.EventJoinMatch, nil, domain.JoinMatchRequest{Code: m.Code, CameraNumber: 1})
			f.emit(t, "c2", domain.EventJoinMatch, nil, domain.JoinMatchRequest{Code: m.Code, CameraNumber: 2})
			f.emit(t, "v1", domain.EventWatchMatch, nil, domain.WatchMatchRequest{Code: m.Code})
			if tc.slot2Streams {
				f.emit(t, "c2", domain.EventStreamToggle, nil, domain.StreamToggleRequest{
					Code: m.Code, CameraNumber: 2, IsStreaming: true,
				})
			}

			f.emit(t, "c1", domain.EventStreamToggle, nil, domain.StreamToggleRequest{
				Code: m.Code, CameraNumber: 1, IsStreaming: true,
			})
			for _, conn := range []*fakeConn{c1, c2, viewer} {
				update := matchUpdate(t, conn.last(t, domain.EventMatchUpdated))
				cam, ok := update.Camera(1)
				if !update.IsLive || !ok || !cam.IsStreaming {
					t.Fatalf("%s saw %+v, want live with slot 1 streaming", conn.id, update)
				}
			}

			f.disconnect("c1")
			for _, conn := range []*fakeConn{c2, viewer} {
				update := matchUpdate(t, conn.last(t, domain.EventMatchUpdated))
				if _, ok := update.Camera(1); ok {
					t.Fatalf("%s still sees slot 1: %+v", conn.id, update)
				}
				if _, ok := update.Camera(2); !ok || len(update.Cameras) != 1 {
					t.Fatalf("%s saw cameras=%+v, want only slot 2", conn.id, update.Cameras)
				}
				if update.IsLive != tc.wantLive {
					t.Fatalf("%s saw isLive=%t, want %t", conn.id, update.IsLive, tc.wantLive)
				}
			}
		})
	}
}

func TestMovingSlotPublishesCameraLeft(t *testing.T) {
	f := newRelayFixture()
	m := f.createMatch(t)
	f.connect("c1")

	f.emit(t, "c1", domain.EventJoinMatch, nil, domain.JoinMatchRequest{Code: m.Code, CameraNumber: 1})
	f.emit(t, "c1", domain.EventJoinMatch, nil, domain.JoinMatchRequest{Code: m.Code, CameraNumber: 3})

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	type published struct {
		kind   domain.MatchEventType
		camera int
	}
	want := []published{{domain.CameraJoined, 1}, {domain.CameraLeft, 1}, {domain.CameraJoined, 3}}
	if len(f.events.events) != len(want) {
		t.Fatalf("published %d events, want %d", len(f.events.events), len(want))
	}
	for i, ev := range f.events.events {
		if ev.Type != want[i].kind || ev.CameraNumber != want[i].camera {
			t.Fatalf("event %d=%s camera %d, want %s camera %d", i, ev.Type, ev.CameraNumber, want[i].kind, want[i].camera)
		}
	}
}

func TestJoinMatchErrors(t *testing.T) {
	f := newRelayFixture()
	m := f.createMatch(t)
	f.connect("c1")
	c2 := f.connect("c2")

	f.emit(t, "c1", domain.EventJoinMatch, nil, domain.JoinMatchRequest{Code: m.Code, CameraNumber: 2})

	cases := []struct {
		name string
		data interface{}
		want string
	}{
		{"unknown match", domain.JoinMatchRequest{Code: "NOPE99", CameraNumber: 1}, "match not found"},
		{"taken", domain.JoinMatchRequest{Code: m.Code, CameraNumber: 2}, "camera 2 is already taken"},
		{"zero slot", domain.JoinMatchRequest{Code: m.Code, CameraNumber: 0}, "invalid camera number"},
		{"bad payload", "not an object", "invalid payload"},
	}
	for i, tc := range cases {
		f.emit(t, "c2", domain.EventJoinMatch, ackID(uint64(i+10)), tc.data)
		msg := c2.last(t, domain.EventAck)
		if *msg.Ack != uint64(i+10) {
			t.Fatalf("%s: ack id=%d, want %d", tc.name, *msg.Ack, i+10)
		}
		resp := ackResponse(t, msg)
		if resp.OK || resp.Error != tc.want {
			t.Fatalf("%s: ack=%+v, want error %q", tc.name, resp, tc.want)
		}
	}

	got, _ := f.registry.GetMatch(m.Code)
	if len(got.Cameras) != 1 {
		t.Fatalf("cameras=%+v, want only c1's slot", got.Cameras)
	}
}

func TestJoinWithoutAckStillBroadcasts(t *testing.T) {
	f := newRelayFixture()
	m := f.createMatch(t)
	camera := f.connect("c1")

	f.emit(t, "c1", domain.EventJoinMatch, nil, domain.JoinMatchRequest{Code: m.Code, CameraNumber: 1})

	if acks := camera.messages(domain.EventAck); len(acks) != 0 {
		t.Fatalf("acks=%+v, want none without ack id", acks)
	}
	if updates := camera.messages(domain.EventMatchUpdated); len(updates) != 1 {
		t.Fatalf("match-updated count=%d, want 1", len(updates))
	}
}

func TestWatchUnknownMatch(t *testing.T) {
	f := newRelayFixture()
	viewer := f.connect("v1")

	f.emit(t, "v1", domain.EventWatchMatch, ackID(3), domain.WatchMatchRequest{Code: "NOPE99"})

	resp := ackResponse(t, viewer.last(t, domain.EventAck))
	if resp.Error != "match not found" || resp.Match != nil {
		t.Fatalf("ack=%+v, want match not found", resp)
	}
}

func TestNonOwnerToggleIsSilent(t *testing.T) {
	f := newRelayFixture()
	m := f.createMatch(t)
	camera := f.connect("c1")
	intruder := f.connect("x1")
	f.emit(t, "c1", domain.EventJoinMatch, nil, domain.JoinMatchRequest{Code: m.Code, CameraNumber: 1})

	before, intruderBefore := camera.count(), intruder.count()
	f.emit(t, "x1", domain.EventStreamToggle, ackID(1), domain.StreamToggleRequest{
		Code: m.Code, CameraNumber: 1, IsStreaming: true,
	})

	if camera.count() != before || intruder.count() != intruderBefore {
		t.Fatal("non-owner toggle produced messages")
	}
	if got, _ := f.registry.GetMatch(m.Code); got.IsLive {
		t.Fatal("non-owner toggle made match live")
	}
}

func TestRequestStreamDroppedWhenNotStreaming(t *testing.T) {
	f := newRelayFixture()
	m := f.createMatch(t)
	camera := f.connect("c1")
	f.connect("v1")
	f.emit(t, "c1", domain.EventJoinMatch, nil, domain.JoinMatchRequest{Code: m.Code, CameraNumber: 1})

	f.emit(t, "v1", domain.EventRequestStream, nil, domain.RequestStreamRequest{MatchCode: m.Code, CameraNumber: 1})
	f.emit(t, "v1", domain.EventRequestStream, nil, domain.RequestStreamRequest{MatchCode: m.Code, CameraNumber: 5})

	if reqs := camera.messages(domain.EventIncomingRequest); len(reqs) != 0 {
		t.Fatalf("incoming requests=%+v, want none", reqs)
	}
}

func TestOfferReachesOnlyTarget(t *testing.T) {
	f := newRelayFixture()
	f.connect("c1")
	v1 := f.connect("v1")
	v2 := f.connect("v2")

	f.emit(t, "c1", domain.EventOffer, nil, domain.OfferRequest{
		ViewerConnectionID: "v1", CameraNumber: 1, SDP: json.RawMessage(`"sdp"`),
	})
	f.emit(t, "c1", domain.EventOffer, nil, domain.OfferRequest{CameraNumber: 1, SDP: json.RawMessage(`"sdp"`)})
	f.emit(t, "c1", domain.EventOffer, nil, domain.OfferRequest{
		ViewerConnectionID: "gone", CameraNumber: 1, SDP: json.RawMessage(`"sdp"`),
	})

	if n := len(v1.messages(domain.EventOffer)); n != 1 {
		t.Fatalf("v1 offers=%d, want 1", n)
	}
	if n := len(v2.messages(domain.EventOffer)); n != 0 {
		t.Fatalf("v2 offers=%d, want 0", n)
	}
}

func TestDisconnectOfViewerDoesNotBroadcast(t *testing.T) {
	f := newRelayFixture()
	m := f.createMatch(t)
	camera := f.connect("c1")
	f.connect("v1")
	f.emit(t, "c1", domain.EventJoinMatch, nil, domain.JoinMatchRequest{Code: m.Code, CameraNumber: 1})
	f.emit(t, "v1", domain.EventWatchMatch, nil, domain.WatchMatchRequest{Code: m.Code})

	before := len(camera.messages(domain.EventMatchUpdated))
	f.disconnect("v1")

	if after := len(camera.messages(domain.EventMatchUpdated)); after != before {
		t.Fatalf("match-updated %d -> %d after viewer left, want no broadcast", before, after)
	}
	if f.conns.ConnectionCount() != 1 {
		t.Fatalf("connections=%d, want 1", f.conns.ConnectionCount())
	}
}

func TestDisconnectHandledOnce(t *testing.T) {
	f := newRelayFixture()
	m := f.createMatch(t)
	f.connect("c1")
	viewer := f.connect("v1")
	f.emit(t, "c1", domain.EventJoinMatch, nil, domain.JoinMatchRequest{Code: m.Code, CameraNumber: 1})
	f.emit(t, "v1", domain.EventWatchMatch, nil, domain.WatchMatchRequest{Code: m.Code})

	before := len(viewer.messages(domain.EventMatchUpdated))
	f.disconnect("c1")
	f.disconnect("c1")

	if after := len(viewer.messages(domain.EventMatchUpdated)); after != before+1 {
		t.Fatalf("match-updated %d -> %d, want exactly one broadcast", before, after)
	}
	left := 0
	for _, typ := range f.events.types() {
		if typ == domain.CameraLeft {
			left++
		}
	}
	if left != 1 {
		t.Fatalf("camera_left events=%d, want 1", left)
	}
}

func TestMalformedFramesAndPing(t *testing.T) {
	f := newRelayFixture()
	c := f.connect("c1")
	before := c.count()

	for _, frame := range []string{`not json`, `{}`, `{"event":"no-such-event","data":{}}`, `{"event":"join-match"}`} {
		f.relay.handle(inbound{kind: inboundMessage, connectionID: "c1", data: []byte(frame)})
	}
	if c.count() != before {
		t.Fatalf("malformed frames produced %d messages", c.count()-before)
	}

	f.relay.handle(inbound{kind: inboundMessage, connectionID: "c1", data: []byte(`{"event":"ping","ack":42}`)})
	pong := c.last(t, domain.EventPong)
	if pong.Ack == nil || *pong.Ack != 42 {
		t.Fatalf("pong=%+v, want ack 42", pong)
	}
}

func TestRunStopsAndClosesConnections(t *testing.T) {
	f := newRelayFixture()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.relay.Run(ctx) }()

	conn := newFakeConn("c1")
	if err := f.relay.Connect(conn); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.conns.ConnectionCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	if !conn.isClosed() {
		t.Fatal("connection left open after relay stopped")
	}
	if err := f.relay.Receive("c1", []byte(`{"event":"ping"}`)); !errors.Is(err, ErrRelayStopped) {
		t.Fatalf("Receive after stop err=%v, want ErrRelayStopped", err)
	}
}
