// Package engine implements the match state machine for a two-party typing
// race: the Join/StartGame handshake, periodic progress telemetry, and the
// completion ordering that decides who won. It sits on a best-effort pub/sub
// transport and tolerates loss, duplication and reordering of messages.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/telemetry"
	"github.com/mcdev12/typerace/go/internal/race/transport"
)

const (
	defaultJoinTimeout      = 120 * time.Second
	defaultProgressInterval = 200 * time.Millisecond

	defaultOpponentName = "Opponent"
)

// Config describes one match attempt.
type Config struct {
	Topic string
	Role  Role
	Name  string

	// RaceText is required for a host; a guest adopts the host's text.
	RaceText string

	// JoinTimeout bounds the handshake wait. Defaults to 120s.
	JoinTimeout time.Duration

	// ProgressInterval is the telemetry broadcast cadence. Defaults to
	// 200ms; updates are sent at this rate whether or not the buffer
	// changed, to bound how stale the opponent's view can get.
	ProgressInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = defaultJoinTimeout
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = defaultProgressInterval
	}
	return c
}

// Engine drives one match session. Two flows touch it concurrently: the
// inbound message flow inside Run, and the local flow (UpdateTyped calls
// plus the broadcast ticker). A single mutex serializes both; local fields
// are written only by the local flow and remote fields only by the inbound
// flow, but transitions read across sides.
type Engine struct {
	tr       transport.Transport
	clock    clockwork.Clock
	cfg      Config
	senderID string

	mu              sync.Mutex
	session         matchSession
	typingStartedAt time.Time

	ready        chan struct{}
	done         chan struct{}
	readyOnce    sync.Once
	completeOnce sync.Once
}

// New builds an engine for one match attempt. The engine owns the transport
// from here on and closes it when Run returns.
func New(tr transport.Transport, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.Role == RoleHost && cfg.RaceText == "" {
		return nil, ErrNoRaceText
	}

	e := &Engine{
		tr:       tr,
		clock:    clockwork.NewRealClock(),
		cfg:      cfg,
		senderID: uuid.New().String()[:8],
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.session = matchSession{
		topic:    cfg.Topic,
		role:     cfg.Role,
		phase:    PhaseAwaitingOpponent,
		raceText: cfg.RaceText,
		local:    ParticipantState{Name: cfg.Name, Accuracy: 100},
		remote:   ParticipantState{Name: defaultOpponentName, Accuracy: 100},
	}
	return e, nil
}

// Run executes the match: handshake, racing, completion. It returns nil on
// MatchComplete, ErrOpponentTimeout when nobody joins in time, and ctx.Err()
// when the caller abandons the session. The transport is released on every
// path; no partial-teardown state is observable afterwards.
func (e *Engine) Run(ctx context.Context) error {
	defer e.tr.Close()

	if err := e.tr.Subscribe(e.cfg.Topic); err != nil {
		return fmt.Errorf("subscribe match topic: %w", err)
	}

	if e.cfg.Role == RoleGuest {
		e.publish(e.encode(events.ActionJoin, events.JoinPayload{Name: e.cfg.Name}))
	}

	if err := e.awaitOpponent(ctx); err != nil {
		return err
	}

	ticker := e.clock.NewTicker(e.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return nil
		case <-ticker.Chan():
			e.publish(e.progressFrame())
		case in, ok := <-e.tr.Messages():
			if !ok {
				return fmt.Errorf("%w: inbound stream closed", transport.ErrConnection)
			}
			e.handleInbound(in)
		}
	}
}

// awaitOpponent blocks until the handshake completes or the bound expires.
func (e *Engine) awaitOpponent(ctx context.Context) error {
	timer := e.clock.NewTimer(e.cfg.JoinTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
			e.mu.Lock()
			e.session.phase = PhaseTimedOut
			e.mu.Unlock()
			log.Warn().
				Str("topic", e.cfg.Topic).
				Dur("timeout", e.cfg.JoinTimeout).
				Msg("no opponent joined in time")
			return ErrOpponentTimeout
		case in, ok := <-e.tr.Messages():
			if !ok {
				return fmt.Errorf("%w: inbound stream closed", transport.ErrConnection)
			}
			e.handleInbound(in)
			if e.Phase() == PhaseRacing {
				return nil
			}
		}
	}
}

// UpdateTyped feeds the current typed buffer from the keystroke flow. It
// recomputes local telemetry and, when the buffer matches the race text
// exactly, runs the completion branch. Input outside Racing is ignored.
func (e *Engine) UpdateTyped(typed string) {
	e.mu.Lock()

	if e.session.phase != PhaseRacing || e.session.local.Finished {
		e.mu.Unlock()
		return
	}

	if e.typingStartedAt.IsZero() && typed != "" {
		e.typingStartedAt = e.clock.Now()
	}
	var elapsed time.Duration
	if !e.typingStartedAt.IsZero() {
		elapsed = e.clock.Since(e.typingStartedAt)
	}

	local := &e.session.local
	prev := telemetry.Stats{WPM: local.WPM, Progress: local.Progress, Accuracy: local.Accuracy}
	st := telemetry.Compute(typed, e.session.raceText, elapsed, prev)
	local.WPM, local.Progress, local.Accuracy = st.WPM, st.Progress, st.Accuracy

	var frame []byte
	if typed == e.session.raceText {
		frame = e.finishLocalLocked(elapsed)
	}
	e.mu.Unlock()

	e.publish(frame)
}

// finishLocalLocked runs the completion branch. If the opponent has not
// already won, the local side is the winner and announces it; otherwise it
// sends one terminal progress update so the winner's view of the loser
// converges to done. Called with the lock held; returns the frame to send.
func (e *Engine) finishLocalLocked(elapsed time.Duration) []byte {
	local := &e.session.local
	local.Finished = true
	local.FinishTime = elapsed.Seconds()
	local.Progress = 100

	var frame []byte
	if !e.session.remote.Winner {
		local.Winner = true
		frame = e.encode(events.ActionPlayerFinished, events.FinishedPayload{
			Name:          local.Name,
			FinalWPM:      local.WPM,
			FinalAccuracy: local.Accuracy,
		})
	} else {
		frame = e.encode(events.ActionProgressUpdate, events.ProgressPayload{
			Name:     local.Name,
			WPM:      local.WPM,
			Progress: local.Progress,
			Accuracy: local.Accuracy,
			Finished: true,
		})
	}

	e.session.phase = PhaseLocalFinishedWaiting
	log.Info().
		Bool("winner", local.Winner).
		Float64("wpm", local.WPM).
		Float64("finish_time_sec", local.FinishTime).
		Msg("local participant finished")

	if e.session.remote.Finished {
		e.completeLocked()
	}
	return frame
}

// completeLocked transitions to MatchComplete. Exactly one side holds the
// winner flag at this point; the inbound handlers defend that invariant.
func (e *Engine) completeLocked() {
	e.session.phase = PhaseMatchComplete
	e.completeOnce.Do(func() { close(e.done) })
	log.Info().
		Bool("local_winner", e.session.local.Winner).
		Bool("remote_winner", e.session.remote.Winner).
		Msg("match complete")
}

// progressFrame builds the periodic telemetry broadcast, or nil when no
// broadcast is due (handshake, or local already finished).
func (e *Engine) progressFrame() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.phase != PhaseRacing || e.session.local.Finished {
		return nil
	}
	local := e.session.local
	return e.encode(events.ActionProgressUpdate, events.ProgressPayload{
		Name:     local.Name,
		WPM:      local.WPM,
		Progress: local.Progress,
		Accuracy: local.Accuracy,
	})
}

// handleInbound decodes one raw payload and dispatches it through the
// transition table. Malformed payloads and the engine's own echoed messages
// are dropped here; nothing on the wire may crash the match.
func (e *Engine) handleInbound(in transport.Inbound) {
	env, err := events.Decode(in.Data)
	if err != nil {
		log.Debug().Err(err).Str("topic", in.Topic).Msg("dropping malformed message")
		return
	}
	if env.SenderID == e.senderID {
		return
	}

	var frame []byte
	switch env.Action {
	case events.ActionJoin:
		var p events.JoinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Debug().Err(err).Msg("dropping malformed join payload")
			return
		}
		frame = e.onJoin(p)

	case events.ActionStartGame:
		var p events.StartGamePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Text == "" {
			log.Debug().Err(err).Msg("dropping malformed start_game payload")
			return
		}
		e.onStartGame(p)

	case events.ActionProgressUpdate:
		var p events.ProgressPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Debug().Err(err).Msg("dropping malformed progress payload")
			return
		}
		e.onProgress(p)

	case events.ActionPlayerFinished:
		var p events.FinishedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Debug().Err(err).Msg("dropping malformed player_finished payload")
			return
		}
		e.onPlayerFinished(p)
	}

	e.publish(frame)
}

// onJoin handles a guest's join. Only a host in the handshake acts on it; a
// duplicate join while racing re-sends StartGame so a lost reply cannot
// strand the guest.
func (e *Engine) onJoin(p events.JoinPayload) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.role != RoleHost {
		log.Warn().Msg("protocol violation: join received by non-host, ignoring")
		return nil
	}

	switch e.session.phase {
	case PhaseAwaitingOpponent:
		if p.Name != "" {
			e.session.remote.Name = p.Name
		}
		e.session.phase = PhaseRacing
		e.readyOnce.Do(func() { close(e.ready) })
		log.Info().Str("opponent", e.session.remote.Name).Msg("opponent joined, starting race")
		return e.encode(events.ActionStartGame, events.StartGamePayload{
			Text: e.session.raceText,
			Name: e.session.local.Name,
		})
	case PhaseRacing:
		log.Debug().Msg("duplicate join while racing, re-sending start_game")
		return e.encode(events.ActionStartGame, events.StartGamePayload{
			Text: e.session.raceText,
			Name: e.session.local.Name,
		})
	default:
		log.Warn().Stringer("phase", e.session.phase).Msg("protocol violation: join in terminal phase, ignoring")
		return nil
	}
}

// onStartGame handles the host's reply: the guest adopts the race text and
// the host's name. Duplicates and misdirected copies are ignored; the text
// is immutable once adopted.
func (e *Engine) onStartGame(p events.StartGamePayload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.role != RoleGuest {
		log.Warn().Msg("protocol violation: start_game received by host, ignoring")
		return
	}
	if e.session.phase != PhaseAwaitingOpponent {
		log.Debug().Msg("duplicate start_game, ignoring")
		return
	}

	e.session.raceText = p.Text
	if p.Name != "" {
		e.session.remote.Name = p.Name
	}
	e.session.phase = PhaseRacing
	e.readyOnce.Do(func() { close(e.ready) })
	log.Info().Str("host", e.session.remote.Name).Msg("race text received, starting race")
}

// onProgress applies opponent telemetry. A finished opponent's stats are
// frozen; later non-final updates must not overwrite them.
func (e *Engine) onProgress(p events.ProgressPayload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.phase == PhaseAwaitingOpponent {
		log.Warn().Msg("protocol violation: progress_update before race start, ignoring")
		return
	}
	remote := &e.session.remote
	if remote.Finished {
		return
	}

	remote.WPM = p.WPM
	remote.Progress = p.Progress
	remote.Accuracy = p.Accuracy
	if p.Name != "" {
		remote.Name = p.Name
	}

	if p.Finished {
		remote.Finished = true
		if e.session.local.Finished {
			e.completeLocked()
		}
	}
}

// onPlayerFinished records the opponent's completion claim. The winner flag
// is granted only if the local side has not already claimed it, defending
// the exactly-one-winner invariant against duplicated or conflicting
// messages under a reordering transport.
func (e *Engine) onPlayerFinished(p events.FinishedPayload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.phase == PhaseAwaitingOpponent {
		log.Warn().Msg("protocol violation: player_finished before race start, ignoring")
		return
	}
	remote := &e.session.remote
	if remote.Finished {
		log.Debug().Msg("duplicate player_finished, ignoring")
		return
	}

	remote.Finished = true
	remote.WPM = p.FinalWPM
	remote.Accuracy = p.FinalAccuracy
	remote.Progress = 100
	if p.Name != "" {
		remote.Name = p.Name
	}

	if e.session.local.Winner {
		log.Warn().Msg("protocol violation: opponent claims victory after local win, keeping local winner")
	} else {
		remote.Winner = true
	}

	if e.session.local.Finished {
		e.completeLocked()
	}
}

// Ready is closed once the handshake completes and racing begins.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Done is closed when the match reaches MatchComplete.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Phase returns the current state machine position.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.phase
}

// Snapshot returns a read-only copy of the session for rendering.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Phase:    e.session.phase,
		RaceText: e.session.raceText,
		Local:    e.session.local,
		Remote:   e.session.remote,
	}
}

// Result reports the outcome; ok is false until the match completes.
func (e *Engine) Result() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.phase != PhaseMatchComplete {
		return Result{}, false
	}
	return Result{
		Won:    e.session.local.Winner,
		Local:  e.session.local,
		Remote: e.session.remote,
	}, true
}

// encode builds a wire frame; a marshal failure is a local bug and is
// logged, never propagated into the match.
func (e *Engine) encode(action events.Action, payload any) []byte {
	frame, err := events.Encode(action, e.senderID, payload)
	if err != nil {
		log.Error().Err(err).Str("action", string(action)).Msg("failed to encode protocol message")
		return nil
	}
	return frame
}

// publish is fire-and-forget: transport failures are logged, and retry
// policy stays with the cadence (the next tick re-sends fresher state).
func (e *Engine) publish(frame []byte) {
	if frame == nil {
		return
	}
	if err := e.tr.Publish(e.cfg.Topic, frame); err != nil {
		log.Error().Err(err).Str("topic", e.cfg.Topic).Msg("publish failed")
	}
}
