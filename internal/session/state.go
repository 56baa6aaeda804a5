// Package session coordinates one outstanding send/stream attempt per
// conversation key. The lifecycle is a pure reducer over a small state
// value; the Coordinator wraps it with message-ID minting, provider stream
// consumption, and stale-callback guarding.
package session

// Phase names the variant of the per-key machine state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSending   Phase = "sending"
	PhaseStreaming Phase = "streaming"
	PhaseStopped   Phase = "stopped"
	PhaseError     Phase = "error"
)

// State is the machine value for one conversation key. The zero value is
// idle. MessageID identifies the attempt the state belongs to; Content
// accumulates streamed text while streaming.
type State struct {
	Phase     Phase
	MessageID string
	Content   string
	Err       error
	Retryable bool
}

// CanSend reports whether a new attempt may begin for this key. Only one
// active attempt is permitted at a time.
func (s State) CanSend() bool {
	switch s.Phase {
	case PhaseSending, PhaseStreaming:
		return false
	default:
		return true
	}
}

// Terminal reports whether the state is a resting one with no attempt in
// flight.
func (s State) Terminal() bool {
	return s.CanSend()
}

// EventType names a machine transition trigger.
type EventType string

const (
	EventSend  EventType = "send"
	EventStart EventType = "start"
	EventChunk EventType = "chunk"
	EventEnd   EventType = "end"
	EventStop  EventType = "stop"
	EventError EventType = "error"
	EventReset EventType = "reset"
)

// Event is one transition trigger. MessageID, when set, must match the
// active attempt or the event is discarded as stale.
type Event struct {
	Type      EventType
	MessageID string
	Text      string
	Err       error
	Retryable bool
}

// ErrorEvent builds an error transition with the default retryable flag.
// Stream and provider failures are retryable unless stated otherwise;
// validation failures should pass retryable=false explicitly.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Err: err, Retryable: true}
}

// Reduce is the pure transition function from (state, event) to state.
// Illegal or stale events return the state unchanged; they are expected
// races, never faults.
func Reduce(s State, ev Event) State {
	switch ev.Type {
	case EventSend:
		if !s.CanSend() {
			return s
		}
		return State{Phase: PhaseSending, MessageID: ev.MessageID}

	case EventStart:
		if s.Phase != PhaseSending || s.MessageID != ev.MessageID {
			return s
		}
		return State{Phase: PhaseStreaming, MessageID: s.MessageID, Content: ""}

	case EventChunk:
		if s.Phase != PhaseStreaming {
			return s
		}
		if ev.MessageID != "" && ev.MessageID != s.MessageID {
			return s
		}
		return State{Phase: PhaseStreaming, MessageID: s.MessageID, Content: s.Content + ev.Text}

	case EventEnd:
		if s.Phase != PhaseStreaming {
			return s
		}
		if ev.MessageID != "" && ev.MessageID != s.MessageID {
			return s
		}
		return State{Phase: PhaseIdle}

	case EventStop:
		if s.Phase != PhaseStreaming {
			return s
		}
		return State{Phase: PhaseStopped, MessageID: s.MessageID}

	case EventError:
		return State{Phase: PhaseError, Err: ev.Err, Retryable: ev.Retryable}

	case EventReset:
		return State{Phase: PhaseIdle}
	}
	return s
}
