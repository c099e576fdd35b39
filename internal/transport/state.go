package transport

import (
	"fmt"
	"time"
)

// ConnectionState is the transport's position in its connection lifecycle
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

// States lists every state
var States = []ConnectionState{StateDisconnected, StateConnecting, StateConnected, StateReconnecting, StateError}

// String returns the human-readable name of the state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name
func (s *ConnectionState) UnmarshalText(text []byte) error {
	for _, st := range States {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", text)
}

// stateNames feeds the per-state metrics gauge
func stateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = s.String()
	}
	return names
}

// transitions is the automaton. Any state may also move to Disconnected.
var transitions = map[ConnectionState][]ConnectionState{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateReconnecting, StateError},
	StateConnected:    {StateReconnecting},
	StateReconnecting: {StateConnected, StateError},
	StateError:        {StateConnecting},
}

// CanTransition reports whether from → to is an edge of the automaton
func CanTransition(from, to ConnectionState) bool {
	if from == to {
		return false
	}
	if to == StateDisconnected {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func successors(from ConnectionState) []ConnectionState {
	next := transitions[from]
	if from != StateDisconnected {
		next = append(next[:len(next):len(next)], StateDisconnected)
	}
	return next
}

// Path returns the shortest legal walk from → to, excluding from. It is
// empty when from == to.
func Path(from, to ConnectionState) []ConnectionState {
	if from == to {
		return nil
	}

	prev := map[ConnectionState]ConnectionState{from: from}
	queue := []ConnectionState{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			break
		}
		for _, next := range successors(cur) {
			if _, seen := prev[next]; !seen {
				prev[next] = cur
				queue = append(queue, next)
			}
		}
	}
	if _, ok := prev[to]; !ok {
		return nil
	}

	var path []ConnectionState
	for s := to; s != from; s = prev[s] {
		path = append([]ConnectionState{s}, path...)
	}
	return path
}

// historySize is the number of raw transitions kept for debugging
const historySize = 64

// Transition records one raw state change
type Transition struct {
	From      ConnectionState `json:"from"`
	To        ConnectionState `json:"to"`
	Timestamp time.Time       `json:"timestamp"`
	Reason    string          `json:"reason"`
}

// transitionLog is a fixed-size ring of transitions
type transitionLog struct {
	entries [historySize]Transition
	head    int
	count   int
}

func (l *transitionLog) record(t Transition) {
	l.entries[l.head] = t
	l.head = (l.head + 1) % historySize
	if l.count < historySize {
		l.count++
	}
}

// list returns the transitions oldest first
func (l *transitionLog) list() []Transition {
	if l.count == 0 {
		return nil
	}
	out := make([]Transition, l.count)
	if l.count < historySize {
		copy(out, l.entries[:l.count])
	} else {
		n := copy(out, l.entries[l.head:])
		copy(out[n:], l.entries[:l.head])
	}
	return out
}
