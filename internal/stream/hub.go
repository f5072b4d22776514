package stream

import (
	"context"
	"sync/atomic"
	"time"

	"sentimentflow/internal/models"
	"sentimentflow/logger"
)

// Hub owns the set of live streaming connections. Events produced by the
// ingest pipeline are fanned out to every client whose subscription
// matches, gated by that client's own debouncer so a subscriber sees at
// most one update per (ticker, resolution) key per debounce interval, no
// matter how bursty the merges are.
type Hub struct {
	log               *logger.Log
	register          chan *Client
	unregister        chan *Client
	done              chan struct{}
	events            <-chan models.Event
	clients           map[*Client]struct{}
	heartbeatInterval time.Duration
	debounceInterval  time.Duration
	sendBuffer        int

	delivered  int64
	suppressed int64
}

func NewHub(events <-chan models.Event, debounceInterval, heartbeatInterval time.Duration, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	return &Hub{
		log:               logger.GetLogger(),
		register:          make(chan *Client),
		unregister:        make(chan *Client),
		done:              make(chan struct{}),
		events:            events,
		clients:           make(map[*Client]struct{}),
		heartbeatInterval: heartbeatInterval,
		debounceInterval:  debounceInterval,
		sendBuffer:        sendBuffer,
	}
}

// Register attaches a client. A no-op once the hub has stopped.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister detaches a client. Client pumps call this on exit; it must
// not block after the hub loop has returned, or each live connection
// would leak a goroutine at shutdown.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run drives the hub loop until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	log := h.log.WithComponent("stream_hub")
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			log.WithFields(logger.Fields{
				"connection_id": client.ID(),
				"clients":       len(h.clients),
			}).Info("client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.WithFields(logger.Fields{
					"connection_id": client.ID(),
					"clients":       len(h.clients),
				}).Info("client disconnected")
			}

		case ev, ok := <-h.events:
			if !ok {
				return
			}
			h.dispatch(ev)

		case <-heartbeat.C:
			h.dispatch(models.Event{Type: models.EventHeartbeat, Timestamp: time.Now().UTC()})
		}
	}
}

func (h *Hub) dispatch(ev models.Event) {
	for client := range h.clients {
		if !ShouldSendEvent(client.Subscription(), ev) {
			continue
		}
		if ev.Type != models.EventHeartbeat {
			if !client.debounce.ShouldEmit(EventKey(ev.Ticker, ev.Resolution)) {
				atomic.AddInt64(&h.suppressed, 1)
				continue
			}
		}
		select {
		case client.send <- ev:
			atomic.AddInt64(&h.delivered, 1)
		default:
			// Slow consumer: evict rather than block the hub loop.
			h.drop(client)
			h.log.WithComponent("stream_hub").WithFields(logger.Fields{
				"connection_id": client.ID(),
			}).Warn("dropping slow client")
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}

// Delivered and Suppressed expose counters for metrics reporting.
func (h *Hub) Delivered() int64  { return atomic.LoadInt64(&h.delivered) }
func (h *Hub) Suppressed() int64 { return atomic.LoadInt64(&h.suppressed) }
