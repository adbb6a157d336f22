package transport

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typerace/go/internal/relay"
)

// Relay is the alternate adapter: a WebSocket connection to a relay hub
// speaking the relay frame protocol. The hub echoes publishes back to the
// publisher, so this transport exercises the engine's loopback filter.
type Relay struct {
	conn    *websocket.Conn
	inbound chan Inbound

	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

// ConnectRelay dials a relay hub, e.g. ws://localhost:8787/ws.
func ConnectRelay(url string) (*Relay, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial relay %s: %v", ErrConnection, url, err)
	}

	t := &Relay{
		conn:    conn,
		inbound: make(chan Inbound, inboundBuffer),
		closed:  make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *Relay) readLoop() {
	defer close(t.inbound)

	for {
		var frame relay.Frame
		if err := t.conn.ReadJSON(&frame); err != nil {
			select {
			case <-t.closed:
			default:
				log.Error().Err(err).Msg("relay read loop terminated")
			}
			return
		}
		if frame.Op != relay.OpMessage {
			continue
		}
		select {
		case t.inbound <- Inbound{Topic: frame.Topic, Data: frame.Data}:
		default:
			log.Warn().Str("topic", frame.Topic).Msg("inbound channel full, dropping message")
		}
	}
}

func (t *Relay) writeFrame(frame relay.Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(frame)
}

// Subscribe asks the hub to deliver the topic's traffic.
func (t *Relay) Subscribe(topic string) error {
	if err := t.writeFrame(relay.Frame{Op: relay.OpSubscribe, Topic: topic}); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends a payload through the hub. Fire-and-forget: the hub sends no
// acknowledgment and none is awaited.
func (t *Relay) Publish(topic string, data []byte) error {
	if err := t.writeFrame(relay.Frame{Op: relay.OpPublish, Topic: topic, Data: data}); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Messages yields inbound payloads from subscribed topics.
func (t *Relay) Messages() <-chan Inbound {
	return t.inbound
}

// Close tears the connection down; Messages() is closed once the read loop
// observes the closed socket.
func (t *Relay) Close() {
	t.once.Do(func() {
		close(t.closed)
		t.writeMu.Lock()
		t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		t.conn.Close()
	})
}
