package ipc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/chaz8081/murmur/internal/session"
	"github.com/chaz8081/murmur/internal/sound"
)

type fakeController struct {
	mu     sync.Mutex
	state  session.State
	loaded bool
	cues   []sound.Cue
}

func (f *fakeController) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
func (f *fakeController) ModelLoaded() bool      { return f.loaded }
func (f *fakeController) ModelsDir() string      { return "/data/models" }
func (f *fakeController) LastTranscript() string { return "last words" }
func (f *fakeController) TestSound(cue sound.Cue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cues = append(f.cues, cue)
}

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func startServer(t *testing.T, hub *Hub, ctrl Controller, metrics http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(hub, ctrl, metrics).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readMessage reads one text frame and decodes it.
func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return m
}

func send(t *testing.T, conn *websocket.Conn, req Request) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(req)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Clients() == n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("hub has %d clients, want %d", hub.Clients(), n)
}

func TestGreetingCarriesState(t *testing.T) {
	hub := NewHub()
	srv := startServer(t, hub, &fakeController{state: session.Recording}, nil)
	conn := dial(t, srv)

	m := readMessage(t, conn)
	if m.Type != "status" || m.State != "Recording" {
		t.Errorf("greeting = %+v, want status Recording", m)
	}
}

func TestEventsArriveInOrder(t *testing.T) {
	hub := NewHub()
	srv := startServer(t, hub, &fakeController{}, nil)
	conn := dial(t, srv)
	readMessage(t, conn) // greeting
	waitClients(t, hub, 1)

	events := []session.Event{
		{Type: session.EventStatus, SessionID: "s1", State: session.Recording},
		{Type: session.EventPreview, SessionID: "s1", Text: "hel"},
		{Type: session.EventPreview, SessionID: "s1"},
		{Type: session.EventStatus, SessionID: "s1", State: session.Transcribing},
		{Type: session.EventNotice, SessionID: "s1", Code: session.CodeFormatting, Message: "timeout"},
		{Type: session.EventComplete, SessionID: "s1", Text: "hello"},
		{Type: session.EventStatus, SessionID: "s1", State: session.Idle},
	}
	for _, e := range events {
		hub.Notify(e)
	}

	want := []Message{
		{Type: "status", State: "Recording", SessionID: "s1"},
		{Type: "preview", Text: "hel", SessionID: "s1"},
		{Type: "preview", SessionID: "s1"},
		{Type: "status", State: "Transcribing", SessionID: "s1"},
		{Type: "notice", Code: "formatting", Message: "timeout", SessionID: "s1"},
		{Type: "complete", Text: "hello", SessionID: "s1"},
		{Type: "status", State: "Idle", SessionID: "s1"},
	}
	for i, w := range want {
		got := readMessage(t, conn)
		if got.Type != w.Type || got.State != w.State || got.Text != w.Text ||
			got.Code != w.Code || got.Message != w.Message || got.SessionID != w.SessionID {
			t.Errorf("message %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestRequests(t *testing.T) {
	ctrl := &fakeController{state: session.Injecting, loaded: true}
	srv := startServer(t, NewHub(), ctrl, nil)
	conn := dial(t, srv)
	readMessage(t, conn)

	send(t, conn, Request{Op: OpStatus})
	if m := readMessage(t, conn); m.Type != "reply" || m.Op != OpStatus || m.State != "Injecting" {
		t.Errorf("status reply = %+v", m)
	}

	send(t, conn, Request{Op: OpModelLoaded})
	if m := readMessage(t, conn); m.Loaded == nil || !*m.Loaded || m.Path != "/data/models" {
		t.Errorf("model_loaded reply = %+v", m)
	}

	send(t, conn, Request{Op: OpModelsDir})
	if m := readMessage(t, conn); m.Path != "/data/models" {
		t.Errorf("models_dir reply = %+v", m)
	}

	send(t, conn, Request{Op: OpLastTranscript})
	if m := readMessage(t, conn); m.Text != "last words" {
		t.Errorf("last_transcript reply = %+v", m)
	}

	send(t, conn, Request{Op: OpTestSound, Cue: "stop"})
	if m := readMessage(t, conn); m.Op != OpTestSound || m.Code != "" {
		t.Errorf("test_sound reply = %+v", m)
	}
	ctrl.mu.Lock()
	cues := append([]sound.Cue(nil), ctrl.cues...)
	ctrl.mu.Unlock()
	if len(cues) != 1 || cues[0] != sound.CueStop {
		t.Errorf("cues = %v, want [stop]", cues)
	}
}

func TestBadRequests(t *testing.T) {
	srv := startServer(t, NewHub(), &fakeController{}, nil)
	conn := dial(t, srv)
	readMessage(t, conn)

	tests := []struct {
		name string
		raw  string
	}{
		{"unknown op", `{"op":"reboot"}`},
		{"bad cue", `{"op":"test_sound","cue":"boom"}`},
		{"not json", `{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := conn.Write(ctx, websocket.MessageText, []byte(tt.raw)); err != nil {
				t.Fatalf("Write: %v", err)
			}
			m := readMessage(t, conn)
			if m.Type != "reply" || m.Code != "bad_request" || m.Message == "" {
				t.Errorf("reply = %+v, want bad_request", m)
			}
		})
	}
}

func TestSlowClientDropped(t *testing.T) {
	hub := NewHub(WithQueueSize(2))
	slow := newClient(2)
	hub.attach(slow, func() []byte { return []byte(`{}`) })

	for range 3 {
		hub.Notify(session.Event{Type: session.EventStatus, State: session.Recording})
	}

	if hub.Clients() != 0 {
		t.Errorf("Clients() = %d, want 0 after overflow", hub.Clients())
	}
	select {
	case <-slow.gone:
	default:
		t.Error("slow client not closed")
	}
	// Later events do not panic on the closed client.
	hub.Notify(session.Event{Type: session.EventStatus, State: session.Idle})
}

func TestDisconnectUnregisters(t *testing.T) {
	hub := NewHub()
	srv := startServer(t, hub, &fakeController{}, nil)
	conn := dial(t, srv)
	readMessage(t, conn)
	waitClients(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitClients(t, hub, 0)
}

func TestHealthzAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("murmur_sessions_total 1\n"))
	})
	srv := startServer(t, NewHub(), &fakeController{}, metrics)

	for path, want := range map[string]string{
		"/healthz": "ok",
		"/metrics": "murmur_sessions_total",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), want) {
			t.Errorf("GET %s = %d %q", path, resp.StatusCode, body)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	srv := startServer(t, NewHub(), &fakeController{}, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /metrics = %d, want 404", resp.StatusCode)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := NewServer(NewHub(), &fakeController{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}
