// Package wsfeed pushes classification results to browser clients over
// websockets.
//
// Every connected client gets its own buffered send queue and write pump, so
// one slow client never blocks the others. A client whose queue is full is
// disconnected. Messages are JSON text frames of the form
// {"type": "gesture", "ts": ..., "data": {...}}.
package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mikesmitty/gesture-predictor/pkg/inference"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

type envelope struct {
	Type string           `json:"type"`
	Ts   time.Time        `json:"ts"`
	Data inference.Result `json:"data"`
}

// Encode builds the wire frame for a result.
func Encode(r inference.Result) ([]byte, error) {
	ts := r.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return json.Marshal(envelope{Type: "gesture", Ts: ts.UTC(), Data: r})
}

type Hub struct {
	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	mu      sync.Mutex
	clients map[*client]struct{}
	sendBuf int
}

func NewHub(sendBuf int) *Hub {
	if sendBuf <= 0 {
		sendBuf = 16
	}
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		clients:    make(map[*client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run services the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			slog.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n, "module", "wsfeed")
		case c := <-h.unregister:
			h.remove(c, "unregister")
		case msg := <-h.broadcast:
			var slow []*client
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()
			for _, c := range slow {
				h.remove(c, "slow_client")
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues msg for every client without blocking.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		slog.Warn("ws broadcast queue full, dropping message", "bytes", len(msg), "module", "wsfeed")
	}
}

// Feed broadcasts each result until results closes.
func (h *Hub) Feed(results <-chan inference.Result) func() error {
	return func() error {
		for r := range results {
			msg, err := Encode(r)
			if err != nil {
				slog.Error("json marshal error", "error", err, "module", "wsfeed")
				continue
			}
			h.Broadcast(msg)
		}
		return nil
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) remove(c *client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = c.conn.Close()
	c.closeSend()
	slog.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n, "module", "wsfeed")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades requests and attaches them to the hub. ctx bounds the
// lifetime of every connection it accepts.
func (h *Hub) Handler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws upgrade failed", "error", err, "remote_addr", r.RemoteAddr, "module", "wsfeed")
			return
		}
		c := &client{
			hub:        h,
			conn:       conn,
			send:       make(chan []byte, h.sendBuf),
			remoteAddr: r.RemoteAddr,
		}
		select {
		case h.register <- c:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
		go c.writePump(ctx)
		go c.readPump(ctx)
	}
}

type client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	closeOnce  sync.Once
	remoteAddr string
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					slog.Debug("ws write failed", "remote_addr", c.remoteAddr, "error", err, "module", "wsfeed")
				}
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to process control frames and
// notice disconnects.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-ctx.Done():
		}
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
