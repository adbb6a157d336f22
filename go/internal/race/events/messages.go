package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event payload types shared between the protocol engine and any peer on the
// match topic. Every message for one match travels on the single rendezvous
// topic, so the action tag is the only dispatch key.

// Action tags a protocol message on the wire.
type Action string

const (
	ActionJoin           Action = "join"
	ActionStartGame      Action = "start_game"
	ActionProgressUpdate Action = "progress_update"
	ActionPlayerFinished Action = "player_finished"
)

// ErrMalformed marks payloads that cannot be decoded into a protocol message.
var ErrMalformed = errors.New("malformed protocol message")

// Envelope is the outer frame for every message on a match topic. SenderID
// identifies the publishing process so echoed publishes can be filtered out;
// some brokers deliver a publish back to the publisher's own subscription.
type Envelope struct {
	Action   Action          `json:"action"`
	SenderID string          `json:"sender_id"`
	Payload  json.RawMessage `json:"payload"`
}

// JoinPayload announces a guest on the rendezvous topic.
type JoinPayload struct {
	Name string `json:"name"`
}

// StartGamePayload is the host's reply to a join: the race text both sides
// type, and the host's display name.
type StartGamePayload struct {
	Text string `json:"text"`
	Name string `json:"name"`
}

// ProgressPayload carries periodic typing telemetry. Finished is set only on
// the one terminal update a losing participant sends after completing.
type ProgressPayload struct {
	Name     string  `json:"name"`
	WPM      float64 `json:"wpm"`
	Progress float64 `json:"progress"`
	Accuracy float64 `json:"accuracy"`
	Finished bool    `json:"finished,omitempty"`
}

// FinishedPayload is published by the participant that completed the text
// first, carrying its final figures.
type FinishedPayload struct {
	Name          string  `json:"name"`
	FinalWPM      float64 `json:"final_wpm"`
	FinalAccuracy float64 `json:"final_accuracy"`
}

// Encode wraps a payload in an envelope and marshals the whole frame.
func Encode(action Action, senderID string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", action, err)
	}
	frame, err := json.Marshal(Envelope{Action: action, SenderID: senderID, Payload: body})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", action, err)
	}
	return frame, nil
}

// Decode parses an envelope off the wire. Payload contents are decoded later
// at the dispatch site, once the action is known.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Action {
	case ActionJoin, ActionStartGame, ActionProgressUpdate, ActionPlayerFinished:
	default:
		return Envelope{}, fmt.Errorf("%w: unknown action %q", ErrMalformed, env.Action)
	}
	if env.SenderID == "" {
		return Envelope{}, fmt.Errorf("%w: missing sender id", ErrMalformed)
	}
	return env, nil
}
