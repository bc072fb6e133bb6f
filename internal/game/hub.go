package game

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

const (
	BROADCAST_BUFFER = 100
	CLIENT_BUFFER    = 32
	WRITE_DEADLINE   = 10 * time.Second
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one websocket subscriber. A single writer goroutine drains its
// outbound queue, so frames reach the connection in the order queued.
type Client struct {
	conn      Conn
	sessionID string
	log       *zap.SugaredLogger
	outbound  chan []byte
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newClient(conn Conn, sessionID string, log *zap.SugaredLogger) *Client {
	c := &Client{
		conn:      conn,
		sessionID: sessionID,
		log:       log,
		outbound:  make(chan []byte, CLIENT_BUFFER),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go c.writePump()
	return c
}

type frame struct {
	sessionID string
	payload   []byte
}

// Hub pushes session snapshots to the websocket clients watching them.
type Hub struct {
	clients    map[string]map[*Client]bool
	broadcast  chan frame
	register   chan *Client
	unregister chan *Client
	stopChan   chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	log        *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan frame, BROADCAST_BUFFER),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopChan:   make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.sessionID] == nil {
				h.clients[client.sessionID] = make(map[*Client]bool)
			}
			h.clients[client.sessionID][client] = true
			h.mu.Unlock()
			h.log.Infof("[WS] Client connected to session %s (Total: %d)", client.sessionID, h.GetClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			client.close()
			h.log.Infof("[WS] Client left session %s (Total: %d)", client.sessionID, h.GetClientCount())

		case f := <-h.broadcast:
			var slow []*Client
			h.mu.Lock()
			for client := range h.clients[f.sessionID] {
				if !client.enqueue(f.payload) {
					h.remove(client)
					slow = append(slow, client)
				}
			}
			h.mu.Unlock()
			// A client that skipped a frame would show a stale state, so it is
			// dropped and has to reconnect for a fresh initial_state.
			for _, client := range slow {
				h.log.Warnf("[WS] Client of session %s too slow, disconnecting", client.sessionID)
				client.close()
			}

		case <-h.stopChan:
			h.mu.Lock()
			for _, set := range h.clients {
				for client := range set {
					client.close()
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(client *Client) {
	set, ok := h.clients[client.sessionID]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.sessionID)
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

// Render implements Renderer by queuing a state frame for the session's clients.
func (h *Hub) Render(s Snapshot) {
	data, err := json.Marshal(WSMessage{Type: "state", Data: s})
	if err != nil {
		h.log.Errorf("[WS] Marshal error: %v", err)
		return
	}
	select {
	case h.broadcast <- frame{sessionID: s.SessionID, payload: data}:
	default:
		h.log.Warn("[WS] Broadcast channel full, dropping message")
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) sessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// RegisterClient subscribes conn to a session and returns its handle.
func (h *Hub) RegisterClient(conn Conn, sessionID string) *Client {
	client := newClient(conn, sessionID, h.log)
	select {
	case h.register <- client:
	case <-h.stopChan:
		client.close()
	}
	return client
}

// UnregisterClient returns once the client's writer has stopped, so the
// connection is no longer written to.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopChan:
		client.close()
	}
	<-client.stopped
}

// Send queues a message for this client only, behind any frames already
// queued for it.
func (c *Client) Send(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		c.log.Errorf("[WS] Send marshal error: %v", err)
		return
	}
	if !c.enqueue(data) {
		c.log.Warnf("[WS] Dropped reply for session %s, client closed or backed up", c.sessionID)
	}
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbound <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) writePump() {
	defer close(c.stopped)
	defer c.conn.Close()
	for {
		select {
		case data := <-c.outbound:
			c.write(data)
		case <-c.done:
			return
		}
	}
}

func (c *Client) write(data []byte) {
	c.conn.SetWriteDeadline(time.Now().Add(WRITE_DEADLINE))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Warnf("[WS] Write error for session %s: %v", c.sessionID, err)
	}
}
