package control

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/riveraj33/kanvas-ios/internal/recorder"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers, have %d", n, h.ClientCount())
}

func readEvent(t *testing.T, conn *websocket.Conn) eventMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var msg eventMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return msg
}

func TestHub_delivers_events(t *testing.T) {
	hub := NewHub(testLogger())
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Publish(recorder.Event{
		Type:     recorder.EventClipFinished,
		Mode:     recorder.ModeStopMotion,
		Path:     "/out/clip-1.flv",
		Duration: 1500 * time.Millisecond,
	})

	msg := readEvent(t, conn)
	if msg.Type != string(recorder.EventClipFinished) {
		t.Errorf("expected type %q, got %q", recorder.EventClipFinished, msg.Type)
	}
	if msg.Mode != string(recorder.ModeStopMotion) {
		t.Errorf("expected mode %q, got %q", recorder.ModeStopMotion, msg.Mode)
	}
	if msg.Path != "/out/clip-1.flv" {
		t.Errorf("unexpected path %q", msg.Path)
	}
	if msg.Duration != 1.5 {
		t.Errorf("expected duration 1.5s, got %v", msg.Duration)
	}
}

func TestHub_broadcasts_to_all(t *testing.T) {
	hub := NewHub(testLogger())
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	first := dialHub(t, srv)
	defer first.Close()
	second := dialHub(t, srv)
	defer second.Close()
	waitForClients(t, hub, 2)

	hub.Publish(recorder.Event{Type: recorder.EventReset})

	for _, conn := range []*websocket.Conn{first, second} {
		if msg := readEvent(t, conn); msg.Type != string(recorder.EventReset) {
			t.Errorf("expected type %q, got %q", recorder.EventReset, msg.Type)
		}
	}
}

func TestHub_drops_slow_subscriber(t *testing.T) {
	hub := NewHub(testLogger())

	// A subscriber with nothing draining its queue must not stall
	// Publish; it gets dropped instead.
	stalled := &client{send: make(chan []byte)}
	hub.clients[stalled] = struct{}{}

	done := make(chan struct{})
	go func() {
		hub.Publish(recorder.Event{Type: recorder.EventReset})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}

	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("expected the stalled subscriber to be dropped, have %d", n)
	}
}

func TestHub_removes_disconnected_subscriber(t *testing.T) {
	hub := NewHub(testLogger())
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_Close_rejects_new_subscribers(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed by the hub")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("expected 0 subscribers after close, have %d", n)
	}
}

func TestHub_streams_recorder_events(t *testing.T) {
	hub := NewHub(testLogger())
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	coord := newCoordinator(t, testSettings(t), &stillStub{}, nil)
	coord.SetEventSink(hub)

	conn := dialHub(t, srv)
	defer conn.Close()
	waitForClients(t, hub, 1)

	res := <-coord.TakePhoto(context.Background(), recorder.PositionBack)
	if res.Err != nil {
		t.Fatalf("take photo: %v", res.Err)
	}

	msg := readEvent(t, conn)
	if msg.Type != string(recorder.EventPhotoTaken) {
		t.Errorf("expected type %q, got %q", recorder.EventPhotoTaken, msg.Type)
	}
	if msg.Path != res.Segment.Path {
		t.Errorf("expected path %q, got %q", res.Segment.Path, msg.Path)
	}
}
