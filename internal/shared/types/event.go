package types

import "time"

// EventKind distinguishes output from exit notifications
type EventKind string

const (
	EventOutput EventKind = "output"
	EventExit   EventKind = "exit"
)

// Stream names the output stream an event came from
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Event is an output or exit notification for one session. Output events
// carry Data and Stream; exit events carry ExitCode and, when the process
// was killed by a signal, Signal.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Data      []byte    `json:"data,omitempty"`
	Stream    Stream    `json:"stream,omitempty"`
	ExitCode  int       `json:"exit_code"`
	Signal    string    `json:"signal,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OutputEvent builds an output event stamped with the current time
func OutputEvent(sessionID string, stream Stream, data []byte) Event {
	return Event{
		Kind:      EventOutput,
		SessionID: sessionID,
		Data:      data,
		Stream:    stream,
		Timestamp: time.Now(),
	}
}

// ExitEvent builds an exit event stamped with the current time
func ExitEvent(sessionID string, exitCode int, signal string) Event {
	return Event{
		Kind:      EventExit,
		SessionID: sessionID,
		ExitCode:  exitCode,
		Signal:    signal,
		Timestamp: time.Now(),
	}
}
