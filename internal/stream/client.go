package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sentimentflow/internal/models"
	"sentimentflow/logger"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// subscribeMessage is what a connected client sends to replace its
// subscription. Empty lists widen the subscription back to everything.
type subscribeMessage struct {
	Action      string   `json:"action"`
	Tickers     []string `json:"tickers"`
	Resolutions []string `json:"resolutions"`
}

// Client is one live websocket subscriber. The subscription is owned here
// and read by the hub on every dispatch; a private debouncer gates bucket
// events per key.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan models.Event
	debounce *Debouncer
	log      *logger.Log

	mu  sync.RWMutex
	sub models.Subscription
}

// NewClient wraps an upgraded connection. The initial subscription
// usually comes from query parameters on the upgrade request.
func NewClient(hub *Hub, conn *websocket.Conn, sub models.Subscription) *Client {
	if sub.ConnectionID == "" {
		sub.ConnectionID = uuid.NewString()
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan models.Event, hub.sendBuffer),
		debounce: NewDebouncer(hub.debounceInterval),
		log:      logger.GetLogger(),
		sub:      sub,
	}
}

func (c *Client) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub.ConnectionID
}

// Subscription returns the current subscription value.
func (c *Client) Subscription() models.Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub
}

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump consumes subscription updates and acts as the connection
// watchdog.
func (c *Client) readPump() {
	log := c.log.WithComponent("stream_client")
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Debug("websocket read error")
			}
			return
		}

		var msg subscribeMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Action != "subscribe" {
			log.Debug("ignoring unrecognised client message")
			continue
		}

		sub, err := models.NewSubscription(c.ID(), msg.Resolutions, msg.Tickers)
		if err != nil {
			log.WithError(err).Warn("rejecting subscription update")
			continue
		}

		c.mu.Lock()
		c.sub = sub
		c.mu.Unlock()
		c.debounce.Reset()
	}
}

// writePump serialises events to the socket and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
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
