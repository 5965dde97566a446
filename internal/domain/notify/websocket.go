package notify

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins (configure in prod)
}

// wsCommand is what clients send to manage their subscriptions.
type wsCommand struct {
	Type      string `json:"type"` // subscribe | unsubscribe | subscribe_all
	VersionID int64  `json:"version_id,omitempty"`
}

// wsFrame is what the server pushes.
type wsFrame struct {
	Type    string      `json:"type"`
	Payload StatusEvent `json:"payload"`
}

// WSHandler bridges hub subscriptions onto a websocket connection.
type WSHandler struct {
	hub *Hub
}

func NewWSHandler(hub *Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// ServeWS godoc
// @Summary Subscribe to thumbnail status transitions
// @Tags Realtime
// @Router /ws/thumbnails [get]
func (h *WSHandler) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 64),
		cancels: make(map[int64]func()),
	}

	go client.writePump()
	client.readPump() // blocks until disconnect
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu        sync.Mutex
	cancels   map[int64]func() // versionID -> unsubscribe
	cancelAll func()
	closed    bool
}

func (c *wsClient) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var cmd wsCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			continue
		}

		switch cmd.Type {
		case "subscribe":
			c.subscribe(cmd.VersionID)
		case "unsubscribe":
			c.unsubscribe(cmd.VersionID)
		case "subscribe_all":
			c.subscribeAll()
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (c *wsClient) subscribe(versionID int64) {
	if versionID <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, exists := c.cancels[versionID]; exists {
		return
	}
	events, cancel := c.hub.Subscribe(versionID)
	c.cancels[versionID] = cancel
	go c.forward(events)
}

func (c *wsClient) unsubscribe(versionID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.cancels[versionID]; ok {
		cancel()
		delete(c.cancels, versionID)
	}
}

func (c *wsClient) subscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.cancelAll != nil {
		return
	}
	events, cancel := c.hub.SubscribeAll()
	c.cancelAll = cancel
	go c.forward(events)
}

// forward pushes hub events into the connection's send channel until the
// subscription is cancelled, which closes the event channel and ends the
// loop.
func (c *wsClient) forward(events <-chan StatusEvent) {
	for e := range events {
		data, err := json.Marshal(wsFrame{Type: "thumbnail_status", Payload: e})
		if err != nil {
			continue
		}
		c.trySend(data)
	}
}

func (c *wsClient) trySend(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		// client too slow, drop the frame
	}
}

func (c *wsClient) teardown() {
	c.mu.Lock()
	c.closed = true
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = map[int64]func(){}
	if c.cancelAll != nil {
		c.cancelAll()
		c.cancelAll = nil
	}
	c.mu.Unlock()

	close(c.send)
	c.conn.Close()
}
