package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mikepea/parley/pkg/parley/apperr"
	"github.com/mikepea/parley/pkg/parley/auth"
	"github.com/mikepea/parley/pkg/parley/respond"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Outbound events buffered per channel before delivery fails.
	sendBuffer = 64
)

// Hub owns the websocket channels of this process and implements Transport
// for them.
type Hub struct {
	registry *Registry
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client // channel id -> client
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	userID    uint
	channelID string
}

// NewHub creates a hub that records connections in registry
func NewHub(registry *Registry) *Hub {
	return &Hub{
		registry: registry,
		clients:  make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handle upgrades an authenticated request to a live channel
func (h *Hub) Handle(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		respond.Fail(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an error response
		log.Printf("presence: upgrade for user %d: %v", userID, err)
		return
	}

	cl := &client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		userID:    userID,
		channelID: uuid.NewString(),
	}
	h.register(cl)

	go cl.writePump()
	go cl.readPump()
}

// Deliver queues event on the channel. It never blocks: a full buffer or an
// unknown channel is reported as a transport error.
func (h *Hub) Deliver(ctx context.Context, channelID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return apperr.Transport(err)
	}
	return h.send(channelID, payload)
}

func (h *Hub) send(channelID string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cl, ok := h.clients[channelID]
	if !ok {
		return apperr.Transport(fmt.Errorf("channel %s is not connected", channelID))
	}
	select {
	case cl.send <- payload:
		return nil
	default:
		return apperr.Transport(fmt.Errorf("channel %s send buffer is full", channelID))
	}
}

// Connections returns the number of open channels
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl.channelID] = cl
	h.mu.Unlock()

	h.registry.Connect(cl.userID, cl.channelID)
	log.Printf("presence: user %d connected on channel %s", cl.userID, cl.channelID)
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl.channelID]
	if ok {
		delete(h.clients, cl.channelID)
		close(cl.send)
	}
	h.mu.Unlock()

	if ok {
		h.registry.Disconnect(cl.userID, cl.channelID)
		log.Printf("presence: user %d disconnected from channel %s", cl.userID, cl.channelID)
	}
}

// readPump drains the connection so control frames are processed and a
// closed socket is noticed. Clients do not send data over the channel.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("presence: read from channel %s: %v", c.channelID, err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
