package rpc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/klingon-exchange/htlc-resolver/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = 30 * time.Second
	wsSendBuffer  = 256
	wsEventQueue  = 256
	wsMaxReadSize = 4096
)

// EventType is a WebSocket event name. Coordinator events keep their names.
type EventType string

// WSEvent is one message on the event stream.
type WSEvent struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// WSSubscription narrows the events a client receives. A client that never
// subscribes receives every event.
type WSSubscription struct {
	Action string   `json:"action"` // subscribe or unsubscribe
	Events []string `json:"events"`
}

// WSClient is one connected event stream.
type WSClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub

	mu     sync.RWMutex
	filter map[EventType]bool
}

// WSHub fans coordinator events out to connected clients.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	closed  bool

	events   chan *WSEvent
	quit     chan struct{}
	stopOnce sync.Once
	log      *logging.Logger
}

// NewWSHub creates a hub. Call Run to start delivery.
func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[*WSClient]struct{}),
		events:  make(chan *WSEvent, wsEventQueue),
		quit:    make(chan struct{}),
		log:     logging.GetDefault().Component("ws"),
	}
}

// Run delivers queued events until Stop.
func (h *WSHub) Run() {
	for {
		select {
		case <-h.quit:
			h.closeAll()
			return
		case event := <-h.events:
			h.deliver(event)
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Broadcast queues an event for delivery. Events are dropped when the queue is full.
func (h *WSHub) Broadcast(eventType EventType, data interface{}) {
	event := &WSEvent{Type: eventType, Data: data, Timestamp: time.Now().Unix()}
	select {
	case h.events <- event:
	default:
		h.log.Warn("Event queue full, dropping event", "type", eventType)
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WSHub) deliver(event *WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to marshal event", "type", event.Type, "error", err)
		return
	}

	var slow []*WSClient
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(event.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("Dropping slow WebSocket client", "remote", c.conn.RemoteAddr())
		h.remove(c)
	}
}

func (h *WSHub) add(c *WSClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.log.Debug("WebSocket client connected", "clients", len(h.clients))
	return true
}

func (h *WSHub) remove(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.log.Debug("WebSocket client disconnected", "clients", len(h.clients))
}

func (h *WSHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// handleWS upgrades the request and attaches it to the hub.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		hub:    s.wsHub,
		filter: make(map[EventType]bool),
	}
	if !s.wsHub.add(c) {
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

func (c *WSClient) wants(t EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filter) == 0 || c.filter[t]
}

func (c *WSClient) apply(sub *WSSubscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range sub.Events {
		switch sub.Action {
		case "subscribe":
			c.filter[EventType(name)] = true
		case "unsubscribe":
			delete(c.filter, EventType(name))
		}
	}
}

// readLoop applies subscription messages until the connection drops.
func (c *WSClient) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxReadSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket read error", "error", err)
			}
			return
		}

		// Anything that is not a subscription request is ignored.
		var sub WSSubscription
		if json.Unmarshal(msg, &sub) == nil {
			c.apply(&sub)
		}
	}
}

// writeLoop sends one event per frame plus keepalive pings.
func (c *WSClient) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
