package relay

import "encoding/json"

// Op is the frame type exchanged between a relay client and the hub.
type Op string

const (
	// OpSubscribe asks the hub to deliver future messages on a topic.
	OpSubscribe Op = "sub"
	// OpPublish carries a payload the hub fans out to a topic's subscribers.
	OpPublish Op = "pub"
	// OpMessage is a hub-to-client delivery on a subscribed topic.
	OpMessage Op = "msg"
)

// Frame is the single JSON message shape on a relay WebSocket. The hub
// echoes publishes back to the publisher when it is subscribed to the topic;
// clients that care must filter their own traffic.
type Frame struct {
	Op    Op              `json:"op"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}
