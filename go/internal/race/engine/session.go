package engine

// Role identifies which side of the handshake this process plays.
type Role int

const (
	// RoleHost creates the match: it picks the race text, owns the
	// rendezvous topic, and answers the guest's join.
	RoleHost Role = iota
	// RoleGuest joins an existing match via a shared topic.
	RoleGuest
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleGuest:
		return "guest"
	default:
		return "unknown"
	}
}

// Phase is the match state machine position.
type Phase int

const (
	// PhaseAwaitingOpponent is the handshake: the host waits for a join,
	// the guest waits for the start message.
	PhaseAwaitingOpponent Phase = iota
	// PhaseRacing means both sides share the text and are typing.
	PhaseRacing
	// PhaseLocalFinishedWaiting means the local side completed the text and
	// is waiting for the opponent to finish.
	PhaseLocalFinishedWaiting
	// PhaseMatchComplete is terminal: both sides finished, one winner.
	PhaseMatchComplete
	// PhaseTimedOut is terminal: no opponent appeared within the bound.
	PhaseTimedOut
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingOpponent:
		return "awaiting_opponent"
	case PhaseRacing:
		return "racing"
	case PhaseLocalFinishedWaiting:
		return "local_finished_waiting"
	case PhaseMatchComplete:
		return "match_complete"
	case PhaseTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ParticipantState is one side's view of a racer. The engine owns two: the
// local one, written only by the local typing flow, and the remote one,
// written only by inbound protocol messages.
type ParticipantState struct {
	Name       string
	WPM        float64
	Progress   float64
	Accuracy   float64
	Finished   bool
	FinishTime float64 // seconds from first keystroke to completion; 0 until finished
	Winner     bool
}

// matchSession is the single mutable match record, guarded by Engine.mu.
// Both the inbound flow and the local flow read across sides when deciding
// transitions, so every access goes through the lock.
type matchSession struct {
	topic    string
	role     Role
	phase    Phase
	raceText string
	local    ParticipantState
	remote   ParticipantState
}

// Snapshot is a read-only copy of the session for the presentation layer.
type Snapshot struct {
	Phase    Phase
	RaceText string
	Local    ParticipantState
	Remote   ParticipantState
}

// Result is the outcome the caller acts on once the match completes.
type Result struct {
	Won    bool
	Local  ParticipantState
	Remote ParticipantState
}
