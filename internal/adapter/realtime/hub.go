package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var pongFrame = []byte(`{"type":"pong"}`)

// Hub tracks live notification connections per owner. It is local to the
// process; a restart drops every connection and clients reconnect with a
// fresh token.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uuid.UUID]map[*Conn]struct{}
	sendBuffer int
	log        zerolog.Logger
}

// NewHub creates a hub whose connections queue up to sendBuffer frames.
func NewHub(sendBuffer int, log zerolog.Logger) *Hub {
	if sendBuffer < 1 {
		sendBuffer = 1
	}
	return &Hub{
		conns:      make(map[uuid.UUID]map[*Conn]struct{}),
		sendBuffer: sendBuffer,
		log:        log,
	}
}

// Conn is one websocket bound to an owner.
type Conn struct {
	owner     uuid.UUID
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(owner uuid.UUID, ws *websocket.Conn, buffer int) *Conn {
	return &Conn{
		owner: owner,
		ws:    ws,
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
}

// close signals the write pump, which sends a close frame and releases the
// socket.
func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue queues frame without blocking and reports whether it was accepted.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Serve binds ws to owner and blocks until the connection ends.
func (h *Hub) Serve(ws *websocket.Conn, owner uuid.UUID) {
	c := newConn(owner, ws, h.sendBuffer)
	h.register(c)
	defer h.unregister(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	set, ok := h.conns[c.owner]
	if !ok {
		set = make(map[*Conn]struct{})
		h.conns[c.owner] = set
	}
	set[c] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	h.log.Info().Str("owner_id", c.owner.String()).Int("connections", n).Msg("notification channel opened")
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	if set, ok := h.conns[c.owner]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.owner)
		}
	}
	h.mu.Unlock()
	c.close()

	h.log.Info().Str("owner_id", c.owner.String()).Msg("notification channel closed")
}

// Send queues payload on every connection of owner. A connection whose
// buffer is full misses the frame.
func (h *Hub) Send(owner uuid.UUID, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.conns[owner] {
		if c.enqueue(payload) {
			delivered++
			continue
		}
		h.log.Warn().Str("owner_id", owner.String()).Msg("notification dropped, client too slow")
	}
	return delivered
}

// DisconnectOwner closes every connection of owner.
func (h *Hub) DisconnectOwner(owner uuid.UUID) int {
	h.mu.Lock()
	set := h.conns[owner]
	delete(h.conns, owner)
	h.mu.Unlock()

	for c := range set {
		c.close()
	}
	return len(set)
}

// Connections returns the number of live connections of owner.
func (h *Hub) Connections(owner uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[owner])
}

// Close disconnects everyone. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.conns
	h.conns = make(map[uuid.UUID]map[*Conn]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.close()
		}
	}
}

type clientFrame struct {
	Type string `json:"type"`
}

func (h *Hub) readPump(c *Conn) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("owner_id", c.owner.String()).Msg("notification channel read error")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame clientFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Type == "ping" {
			c.enqueue(pongFrame)
		}
	}
}

func (h *Hub) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
				time.Now().Add(writeWait))
			return
		}
	}
}
