package engine

import "errors"

var (
	// ErrOpponentTimeout means no opponent completed the handshake within
	// the configured bound. Fatal to the match attempt, not the process.
	ErrOpponentTimeout = errors.New("no opponent found before the join deadline")

	// ErrNoRaceText means a host was constructed without a text to race on.
	ErrNoRaceText = errors.New("host requires a race text")
)
