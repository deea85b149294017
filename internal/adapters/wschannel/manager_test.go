package wschannel

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"viewsync/pkg/vsp"
)

type closeEvent struct {
	epoch         uint64
	willReconnect bool
	retryIn       time.Duration
}

type eventRecorder struct {
	opened   chan uint64
	closed   chan closeEvent
	timeouts chan uint64
	msgs     chan vsp.ServerMessage
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{
		opened:   make(chan uint64, 8),
		closed:   make(chan closeEvent, 8),
		timeouts: make(chan uint64, 8),
		msgs:     make(chan vsp.ServerMessage, 8),
	}
}

func (r *eventRecorder) ChannelOpened(epoch uint64) {
	r.opened <- epoch
}

func (r *eventRecorder) ChannelClosed(epoch uint64, willReconnect bool, retryIn time.Duration) {
	r.closed <- closeEvent{epoch, willReconnect, retryIn}
}

func (r *eventRecorder) SnapshotTimeout(epoch uint64) {
	r.timeouts <- epoch
}

func (r *eventRecorder) HandleServerMessage(epoch uint64, msg vsp.ServerMessage) {
	r.msgs <- msg
}

func wait[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestBackoffSchedule(t *testing.T) {
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for attempt, expected := range want {
		got := Backoff(attempt, time.Second, 30*time.Second)
		if got != expected {
			t.Fatalf("attempt %d: expected %v, got %v", attempt, expected, got)
		}
	}
	if got := Backoff(100, time.Second, 30*time.Second); got != 30*time.Second {
		t.Fatalf("large attempts must stay capped, got %v", got)
	}
}

func TestConnectOpensAndExchangesMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan vsp.ClientMessage, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/video-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("unexpected authorization %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		data, _ := vsp.EncodeServerMessage(vsp.StateSync{Session: vsp.DefaultSessionState()})
		conn.WriteMessage(websocket.TextMessage, data)

		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := vsp.DecodeClientMessage(frame)
		if err != nil {
			t.Errorf("decode client message: %v", err)
			return
		}
		received <- msg
	}))
	defer server.Close()

	events := newEventRecorder()
	m := NewManager(Options{ServerURL: wsURL(server), Token: "sekrit", Events: events})
	m.Connect("video-1", 7)
	defer m.Disconnect()

	if epoch := wait(t, events.opened, "channel open"); epoch != 7 {
		t.Fatalf("expected epoch 7, got %d", epoch)
	}
	msg := wait(t, events.msgs, "snapshot")
	if _, ok := msg.(vsp.StateSync); !ok {
		t.Fatalf("expected StateSync, got %T", msg)
	}

	m.Send(vsp.UpdatePlaybackPosition{CurrentTime: 12.5, Version: 4})
	sent := wait(t, received, "client message on server")
	update, ok := sent.(vsp.UpdatePlaybackPosition)
	if !ok || update.CurrentTime != 12.5 || update.Version != 4 {
		t.Fatalf("unexpected client message %#v", sent)
	}
}

func TestReconnectsAfterServerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	attempts := make(chan struct{}, 8)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts <- struct{}{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	events := newEventRecorder()
	m := NewManager(Options{
		ServerURL:      wsURL(server),
		Events:         events,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	})
	m.Connect("video-1", 1)
	defer m.Disconnect()

	wait(t, attempts, "first attempt")
	closed := wait(t, events.closed, "close event")
	if !closed.willReconnect {
		t.Fatalf("expected reconnect after server-side close, got %#v", closed)
	}
	wait(t, attempts, "second attempt")
}

func TestDisconnectStopsReconnecting(t *testing.T) {
	upgrader := websocket.Upgrader{}
	attempts := make(chan struct{}, 8)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts <- struct{}{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	events := newEventRecorder()
	m := NewManager(Options{
		ServerURL:      wsURL(server),
		Events:         events,
		InitialBackoff: 10 * time.Millisecond,
	})
	m.Connect("video-1", 1)
	wait(t, events.opened, "channel open")
	wait(t, attempts, "first attempt")

	m.Disconnect()

	select {
	case <-attempts:
		t.Fatalf("manager must not redial after Disconnect")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSendWithoutConnectionDrops(t *testing.T) {
	events := newEventRecorder()
	m := NewManager(Options{ServerURL: "ws://localhost:1", Events: events})

	// Nothing connected: must not panic and must not queue.
	m.Send(vsp.UpdatePlaybackPosition{CurrentTime: 1, Version: 1})
}

func TestMalformedFramesAreDiscarded(t *testing.T) {
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Bogus"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not even json`))
		data, _ := vsp.EncodeServerMessage(vsp.TestMessage{Text: "still alive"})
		conn.WriteMessage(websocket.TextMessage, data)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	events := newEventRecorder()
	m := NewManager(Options{ServerURL: wsURL(server), Events: events})
	m.Connect("video-1", 1)
	defer m.Disconnect()

	msg := wait(t, events.msgs, "valid message after garbage")
	test, ok := msg.(vsp.TestMessage)
	if !ok || test.Text != "still alive" {
		t.Fatalf("expected the valid frame only, got %#v", msg)
	}
}

func TestSnapshotTimeoutFires(t *testing.T) {
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never send a snapshot.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	events := newEventRecorder()
	m := NewManager(Options{
		ServerURL:    wsURL(server),
		Events:       events,
		SnapshotWait: 20 * time.Millisecond,
	})
	m.Connect("video-1", 3)
	defer m.Disconnect()

	wait(t, events.opened, "channel open")
	if epoch := wait(t, events.timeouts, "snapshot timeout"); epoch != 3 {
		t.Fatalf("expected epoch 3, got %d", epoch)
	}
}

func TestStaleCloseDoesNotCancelSnapshotTimer(t *testing.T) {
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never send a snapshot.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	events := newEventRecorder()
	m := NewManager(Options{
		ServerURL:    wsURL(server),
		Events:       events,
		SnapshotWait: 50 * time.Millisecond,
	})
	m.Connect("video-1", 2)
	defer m.Disconnect()
	wait(t, events.opened, "channel open")

	// A close from the superseded connection arrives after the new session
	// armed its snapshot timer. It must not cancel that timer.
	m.handleClose(1, nil, errors.New("connection reset"))

	if epoch := wait(t, events.timeouts, "snapshot timeout"); epoch != 2 {
		t.Fatalf("expected snapshot timeout for epoch 2, got %d", epoch)
	}
}
