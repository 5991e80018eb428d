package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/chaz8081/murmur/internal/session"
	"github.com/chaz8081/murmur/internal/sound"
)

// Controller is the query surface clients can reach.
type Controller interface {
	State() session.State
	ModelLoaded() bool
	ModelsDir() string
	LastTranscript() string
	TestSound(cue sound.Cue)
}

// Request is a client query.
type Request struct {
	Op  string `json:"op"`
	Cue string `json:"cue,omitempty"`
}

// Client ops.
const (
	OpStatus         = "status"
	OpModelLoaded    = "model_loaded"
	OpModelsDir      = "models_dir"
	OpLastTranscript = "last_transcript"
	OpTestSound      = "test_sound"
)

const writeTimeout = 5 * time.Second

// Server exposes the Hub and Controller over HTTP.
type Server struct {
	hub     *Hub
	ctrl    Controller
	metrics http.Handler
	log     *slog.Logger
}

// NewServer creates a Server. metrics may be nil, in which case /metrics is
// not served.
func NewServer(hub *Hub, ctrl Controller, metrics http.Handler) *Server {
	return &Server{
		hub:     hub,
		ctrl:    ctrl,
		metrics: metrics,
		log:     slog.With("component", "ipc"),
	}
}

// Handler returns the HTTP routes: /ws, /healthz and optionally /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ipc: listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("ipc: serve: %w", err)
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ipc: shutdown: %w", err)
	}
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.log.Debug("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	c := newClient(s.hub.queue)
	// The first frame tells a new client where the Controller is.
	s.hub.attach(c, func() []byte {
		return encode(Message{Type: string(session.EventStatus), State: s.ctrl.State().String()})
	})
	defer s.hub.remove(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.readLoop(ctx, conn, c)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.gone:
			conn.Close(websocket.StatusPolicyViolation, "client too slow")
			return
		case data := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				s.log.Debug("websocket write failed", "err", err)
				return
			}
		}
	}
}

// readLoop answers requests until the connection fails, then marks the
// client gone.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	defer c.close()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		reply := s.answer(data)
		if !c.enqueue(encode(reply)) {
			return
		}
	}
}

func (s *Server) answer(data []byte) Message {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Message{Type: "reply", Code: "bad_request", Message: "invalid JSON request"}
	}

	reply := Message{Type: "reply", Op: req.Op}
	switch req.Op {
	case OpStatus:
		reply.State = s.ctrl.State().String()
	case OpModelLoaded:
		loaded := s.ctrl.ModelLoaded()
		reply.Loaded = &loaded
		reply.Path = s.ctrl.ModelsDir()
	case OpModelsDir:
		reply.Path = s.ctrl.ModelsDir()
	case OpLastTranscript:
		reply.Text = s.ctrl.LastTranscript()
	case OpTestSound:
		cue, err := sound.ParseCue(req.Cue)
		if err != nil {
			reply.Code = "bad_request"
			reply.Message = err.Error()
			break
		}
		s.ctrl.TestSound(cue)
	default:
		reply.Code = "bad_request"
		reply.Message = fmt.Sprintf("unknown op %q", req.Op)
	}
	return reply
}

func encode(m Message) []byte {
	data, _ := json.Marshal(m)
	return data
}
