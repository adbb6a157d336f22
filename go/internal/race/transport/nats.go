package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	natsMaxReconnects = 10
	natsReconnectWait = 2 * time.Second

	inboundBuffer = 256
)

// NATS is the primary adapter: one core NATS connection carrying a match
// topic. Core pub/sub, not JetStream — match traffic is ephemeral and the
// protocol already tolerates loss, so persistence would buy nothing.
type NATS struct {
	nc      *nats.Conn
	inbound chan Inbound

	mu   sync.Mutex
	subs []*nats.Subscription
}

// ConnectNATS dials the broker. NoEcho stops the server from delivering our
// own publishes back to us; the engine still filters by sender id in case
// the adapter is swapped for a transport that echoes.
func ConnectNATS(url string) (*NATS, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.NoEcho(),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to NATS %s: %v", ErrConnection, url, err)
	}

	return &NATS{
		nc:      nc,
		inbound: make(chan Inbound, inboundBuffer),
	}, nil
}

// Subscribe starts delivering messages on the topic into Messages().
func (t *NATS) Subscribe(topic string) error {
	sub, err := t.nc.Subscribe(topic, func(msg *nats.Msg) {
		select {
		case t.inbound <- Inbound{Topic: msg.Subject, Data: msg.Data}:
		default:
			log.Warn().Str("topic", msg.Subject).Msg("inbound channel full, dropping message")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	log.Debug().Str("topic", topic).Msg("subscribed")
	return nil
}

// Publish sends without waiting for any broker acknowledgment.
func (t *NATS) Publish(topic string, data []byte) error {
	if err := t.nc.Publish(topic, data); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Messages yields every inbound payload from subscribed topics.
func (t *NATS) Messages() <-chan Inbound {
	return t.inbound
}

// Close unsubscribes everything and drains the connection.
func (t *NATS) Close() {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Msg("unsubscribe failed during close")
		}
	}
	t.nc.Close()
}
