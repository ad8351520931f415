package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentbridge/supervisor/internal/metrics"
)

// envelope is the {type, data} shape every WebSocket message uses,
// generalizing the daemon's {v, type, ts, seq, payload} client
// envelope down to what a browser viewer actually needs.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // origin checked explicitly in Hub.Upgrade
}

// wsClient wraps one connected viewer: a mutex-guarded conn (mirroring
// the daemon ws.Client's own connection guard) plus a bounded outbound
// queue so one slow reader can't block the broadcaster.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
	send chan []byte
	done chan struct{}
}

func (c *wsClient) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn("ws client send buffer full, dropping message")
	}
}

func (c *wsClient) writePump() {
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			c.mu.Lock()
			err := c.conn.WriteMessage(websocket.TextMessage, data)
			c.mu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Hub tracks connected WebSocket viewers and broadcasts session and
// event messages to all of them.
type Hub struct {
	corsOrigins []string

	mu      sync.Mutex
	clients map[*wsClient]bool

	onMessage func(client *wsClient, msgType string, raw json.RawMessage)
}

func NewHub(corsOrigins []string) *Hub {
	return &Hub{corsOrigins: corsOrigins, clients: make(map[*wsClient]bool)}
}

func (h *Hub) SetMessageHandler(fn func(client *wsClient, msgType string, raw json.RawMessage)) {
	h.onMessage = fn
}

// originAllowed reports whether origin matches one of the configured
// glob patterns (only `*` as a wildcard, the way the daemon's own CORS
// defaults are expressed).
func originAllowed(origin string, patterns []string) bool {
	if origin == "" {
		return true
	}
	for _, pattern := range patterns {
		if globMatch(pattern, origin) {
			return true
		}
	}
	return false
}

func globMatch(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	idx := strings.Index(pattern, "*")
	if idx < 0 {
		return pattern == value
	}
	prefix, suffix := pattern[:idx], pattern[idx+1:]
	return strings.HasPrefix(value, prefix) && strings.HasSuffix(value, suffix)
}

// Upgrade handles the WebSocket handshake at the root path, rejecting
// disallowed origins with close code 4003 and sending the initial
// `init` frame on success.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, initData any) {
	origin := r.Header.Get("Origin")
	if !originAllowed(origin, h.corsOrigins) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(4003, "origin not allowed"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("ws upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[client] = true
	metrics.WebSocketClients.Set(float64(len(h.clients)))
	h.mu.Unlock()

	client.writeJSON(envelope{Type: "init", Data: initData})

	go client.writePump()
	h.readPump(client)
}

func (h *Hub) readPump(client *wsClient) {
	defer h.remove(client)
	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == "ping" {
			client.writeJSON(envelope{Type: "pong"})
			continue
		}

		if h.onMessage != nil {
			h.onMessage(client, msg.Type, msg.Data)
		}
	}
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.done)
		close(client.send)
		metrics.WebSocketClients.Set(float64(len(h.clients)))
	}
	h.mu.Unlock()
	client.conn.Close()
}

// Broadcast sends {type, data} to every connected viewer.
func (h *Hub) Broadcast(msgType string, data any) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	env := envelope{Type: msgType, Data: data}
	for _, c := range clients {
		c.writeJSON(env)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
