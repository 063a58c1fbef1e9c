package surface

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loqalabs/voicepay/internal/protocol"
)

const (
	writeTimeout    = 5 * time.Second
	pongTimeout     = 60 * time.Second
	pingInterval    = 20 * time.Second
	maxMessageBytes = 4096
	sendBuffer      = 16
)

// EventHandler receives UI actions from any surface transport.
type EventHandler func(protocol.UIEvent)

// Hub fans snapshots out to websocket clients and forwards their UI events.
// A client that cannot keep up is disconnected rather than slowing the others.
type Hub struct {
	log      *slog.Logger
	origins  map[string]struct{}
	onEvent  EventHandler
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	latest  []byte
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewHub(allowOrigins []string, onEvent EventHandler, log *slog.Logger) *Hub {
	h := &Hub{
		log:     log.With(slog.String("component", "surface-hub")),
		origins: make(map[string]struct{}, len(allowOrigins)),
		onEvent: onEvent,
		clients: make(map[*client]struct{}),
	}
	for _, o := range allowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			h.origins[o] = struct{}{}
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

// originAllowed accepts requests without an Origin header (non-browser
// clients) and browser requests from a configured origin. "*" allows all.
func (h *Hub) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if _, ok := h.origins["*"]; ok {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slogError(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.latest != nil {
		c.send <- h.latest
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Info("surface client connected", slog.String("remote", r.RemoteAddr), slog.Int("clients", count))

	go h.writeLoop(c)
	h.readLoop(c)
}

// Broadcast sends snap to every connected client and keeps it for clients
// that connect later.
func (h *Hub) Broadcast(snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		h.log.Error("encode snapshot", slogError(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("surface client too slow, disconnecting")
			h.dropLocked(c)
		}
	}
}

// Clients reports the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.drop(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("surface client read failed", slogError(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var evt protocol.UIEvent
		if err := json.Unmarshal(data, &evt); err != nil || evt.Type == "" {
			h.log.Warn("invalid ui event from websocket client")
			continue
		}
		if h.onEvent != nil {
			h.onEvent(evt)
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeTimeout))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
