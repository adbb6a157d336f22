package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub is a minimal topic-based relay: clients subscribe to topics and every
// publish on a topic is fanned out to all of that topic's subscribers,
// including the publisher itself. It gives two race participants a shared
// channel when no NATS broker is around, with the same best-effort delivery
// semantics.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*client]bool

	upgrader websocket.Upgrader
	config   Config
}

// Config holds per-connection tuning for the hub.
type Config struct {
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	CheckOrigin    func(r *http.Request) bool
}

// DefaultConfig returns the hub defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     64,
		CheckOrigin: func(r *http.Request) bool {
			// Race clients are CLIs, not browsers; origin checks buy nothing.
			return true
		},
	}
}

type client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan Frame
	topics map[string]bool
}

// NewHub creates a hub with the given config.
func NewHub(config Config) *Hub {
	return &Hub{
		topics: make(map[string]map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// Handler returns the HTTP handler that upgrades connections into the hub.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("failed to upgrade relay connection")
			return
		}

		c := &client{
			id:     uuid.New().String()[:8],
			hub:    h,
			conn:   conn,
			send:   make(chan Frame, h.config.SendBuffer),
			topics: make(map[string]bool),
		}

		go c.writePump()
		go c.readPump()

		log.Info().Str("client_id", c.id).Str("remote", r.RemoteAddr).Msg("relay client connected")
	})
}

func (h *Hub) subscribe(c *client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*client]bool)
	}
	h.topics[topic][c] = true
	c.topics[topic] = true

	log.Debug().
		Str("client_id", c.id).
		Str("topic", topic).
		Int("subscribers", len(h.topics[topic])).
		Msg("client subscribed")
}

// broadcast fans a message out to every subscriber of the topic, the sender
// included. A slow subscriber's frame is dropped, never queued unboundedly.
func (h *Hub) broadcast(frame Frame) {
	h.mu.RLock()
	subscribers := make([]*client, 0, len(h.topics[frame.Topic]))
	for c := range h.topics[frame.Topic] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	for _, c := range subscribers {
		select {
		case c.send <- frame:
		default:
			log.Warn().
				Str("client_id", c.id).
				Str("topic", frame.Topic).
				Msg("send buffer full, dropping frame")
		}
	}
}

// drop removes a client from every topic it subscribed to.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic := range c.topics {
		if subs, ok := h.topics[topic]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	close(c.send)

	log.Info().Str("client_id", c.id).Msg("relay client disconnected")
}

func (c *client) readPump() {
	defer c.hub.drop(c)

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.PongTimeout))
		return nil
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("client_id", c.id).Msg("relay read error")
			}
			return
		}
		if frame.Topic == "" {
			continue
		}

		switch frame.Op {
		case OpSubscribe:
			c.hub.subscribe(c, frame.Topic)
		case OpPublish:
			c.hub.broadcast(Frame{Op: OpMessage, Topic: frame.Topic, Data: frame.Data})
		default:
			log.Warn().Str("client_id", c.id).Str("op", string(frame.Op)).Msg("unknown relay op, ignoring")
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
