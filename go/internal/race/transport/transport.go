// Package transport wraps a publish/subscribe connection behind a small
// contract the protocol engine can drive. Adapters carry raw payloads both
// ways and do no protocol work; delivery is best-effort with no ordering or
// acknowledgment guarantees, which is exactly what the race protocol is
// built to tolerate.
package transport

import "errors"

// ErrConnection marks a broker that could not be reached. Fatal to the match
// attempt; the caller may retry with a fresh session.
var ErrConnection = errors.New("transport connection failed")

// Inbound is one raw message received on a subscribed topic.
type Inbound struct {
	Topic string
	Data  []byte
}

// Transport is the pub/sub contract the engine depends on. Publish is
// fire-and-forget: no broker acknowledgment is awaited and no retries happen
// at this layer. Messages() yields every inbound payload; a full inbound
// buffer drops messages rather than blocking the adapter's read loop.
type Transport interface {
	Publish(topic string, data []byte) error
	Subscribe(topic string) error
	Messages() <-chan Inbound
	Close()
}
