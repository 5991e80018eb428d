// Package ipc streams session events to display clients over a websocket
// and answers their queries.
package ipc

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/chaz8081/murmur/internal/session"
)

// Message is the JSON frame sent to clients. Events use Type, State, Text,
// Code, Message and SessionID; replies set Type to "reply" and Op to the
// request's op.
type Message struct {
	Type      string `json:"type"`
	Op        string `json:"op,omitempty"`
	State     string `json:"state,omitempty"`
	Text      string `json:"text,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Loaded    *bool  `json:"loaded,omitempty"`
	Path      string `json:"path,omitempty"`
}

// fromEvent converts a session event to its wire form.
func fromEvent(e session.Event) Message {
	m := Message{
		Type:      string(e.Type),
		Text:      e.Text,
		Code:      e.Code,
		Message:   e.Message,
		SessionID: e.SessionID,
	}
	if e.Type == session.EventStatus {
		m.State = e.State.String()
	}
	return m
}

const defaultQueueSize = 64

type client struct {
	send chan []byte
	gone chan struct{}
	once sync.Once
}

func newClient(queue int) *client {
	return &client{
		send: make(chan []byte, queue),
		gone: make(chan struct{}),
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.gone) })
}

// enqueue queues data without blocking. It reports false when the queue is
// full.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.gone:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Hub fans session events out to connected clients. Each client has its own
// queue; a client that falls behind is disconnected so it can never hold up
// the Controller or see events out of order.
type Hub struct {
	queue int
	log   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithQueueSize sets how many frames may wait for a slow client.
func WithQueueSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.queue = n
		}
	}
}

// NewHub creates an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		queue:   defaultQueueSize,
		log:     slog.With("component", "ipc"),
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Notify implements session.Notifier. It never blocks.
func (h *Hub) Notify(e session.Event) {
	data, err := json.Marshal(fromEvent(e))
	if err != nil {
		h.log.Error("encoding event", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.enqueue(data) {
			h.log.Warn("dropping slow client")
			delete(h.clients, c)
			c.close()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// attach registers c after queueing greeting, so no event can slip in
// between the greeting and the first event.
func (h *Hub) attach(c *client, greeting func() []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.enqueue(greeting())
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}
