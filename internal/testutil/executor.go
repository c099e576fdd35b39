package testutil

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/sholden3/aiorchestration-sub008/internal/providers/terminal"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/shell"
)

// Call is one call received by a FakeExecutor
type Call struct {
	Target    string
	SessionID string
	Params    map[string]interface{}
}

type fakeSession struct {
	info   types.SessionInfo
	input  []byte
	output []byte
}

// FakeExecutor is an in-memory session host for transport.Serve. It keeps
// a registry of fake sessions, records every call and publishes an exit
// event when a session is killed, like the real registry does.
type FakeExecutor struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	calls    []Call
	subs     map[id.SubscriptionID]func(types.Event)
	shells   []shell.Descriptor
	nextPID  int
}

// NewFakeExecutor creates an empty host offering a single /bin/sh
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{
		sessions: make(map[string]*fakeSession),
		subs:     make(map[id.SubscriptionID]func(types.Event)),
		shells: []shell.Descriptor{{
			Kind:      shell.KindSh,
			Role:      shell.RoleBaseline,
			Path:      "/bin/sh",
			Available: true,
		}},
		nextPID: 4000,
	}
}

func (f *FakeExecutor) Execute(ctx context.Context, target string, params map[string]interface{}) (interface{}, error) {
	sessionID, _ := params["session_id"].(string)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Target: target, SessionID: sessionID, Params: params})
	f.mu.Unlock()

	switch target {
	case terminal.TargetCreateSession:
		return f.create(sessionID, params)
	case terminal.TargetWrite:
		return f.write(sessionID, params)
	case terminal.TargetResize:
		return f.update(sessionID, func(s *fakeSession) {
			s.info.Cols = number(params["cols"])
			s.info.Rows = number(params["rows"])
		})
	case terminal.TargetClear:
		return f.update(sessionID, func(s *fakeSession) { s.output = nil })
	case terminal.TargetRead:
		f.mu.Lock()
		defer f.mu.Unlock()
		s, ok := f.sessions[sessionID]
		if !ok {
			return nil, errs.SessionNotFound(sessionID)
		}
		return terminal.ReadResult{Output: s.output, Length: len(s.output)}, nil
	case terminal.TargetKill:
		return f.kill(sessionID)
	case terminal.TargetGetSession:
		f.mu.Lock()
		defer f.mu.Unlock()
		s, ok := f.sessions[sessionID]
		if !ok {
			return nil, errs.SessionNotFound(sessionID)
		}
		return s.info, nil
	case terminal.TargetListSessions:
		f.mu.Lock()
		defer f.mu.Unlock()
		list := types.SessionList{}
		for _, s := range f.sessions {
			list.Sessions = append(list.Sessions, s.info)
		}
		list.Count = len(list.Sessions)
		return list, nil
	case terminal.TargetHistory:
		return []types.HistoryEntry{}, nil
	case terminal.TargetShells:
		return terminal.ShellList{Shells: f.shells}, nil
	case terminal.TargetOptimalShell:
		return f.shells[0], nil
	default:
		return nil, errs.New(errs.CodeInvalidArgument, "unknown target: %s", target)
	}
}

func (f *FakeExecutor) create(sessionID string, params map[string]interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sessionID == "" {
		sessionID = id.NewSessionID().String()
	}
	if _, ok := f.sessions[sessionID]; ok {
		return nil, errs.New(errs.CodeDuplicateSession, "session already exists: %s", sessionID)
	}
	f.nextPID++
	info := types.SessionInfo{
		ID:        sessionID,
		ShellKind: "sh",
		ShellPath: "/bin/sh",
		Cols:      number(params["cols"]),
		Rows:      number(params["rows"]),
		PID:       f.nextPID,
		StartedAt: time.Now(),
		Active:    true,
	}
	info.WorkingDir, _ = params["working_dir"].(string)
	f.sessions[sessionID] = &fakeSession{info: info}
	return info, nil
}

func (f *FakeExecutor) write(sessionID string, params map[string]interface{}) (interface{}, error) {
	var data []byte
	if encoded, ok := params["input_base64"].(string); ok {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, errs.Wrap(errs.CodeInvalidArgument, err, "input_base64 is not valid base64")
		}
		data = decoded
	} else {
		str, _ := params["input"].(string)
		data = []byte(str)
	}
	return f.update(sessionID, func(s *fakeSession) { s.input = append(s.input, data...) })
}

func (f *FakeExecutor) update(sessionID string, fn func(*fakeSession)) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || !s.info.Active {
		return nil, errs.SessionNotFound(sessionID)
	}
	fn(s)
	return terminal.Ack{Success: true}, nil
}

func (f *FakeExecutor) kill(sessionID string) (interface{}, error) {
	f.mu.Lock()
	s, ok := f.sessions[sessionID]
	if !ok {
		f.mu.Unlock()
		return nil, errs.SessionNotFound(sessionID)
	}
	delete(f.sessions, sessionID)
	wasActive := s.info.Active
	f.mu.Unlock()

	if wasActive {
		f.Emit(types.ExitEvent(sessionID, -1, "SIGTERM"))
	}
	return terminal.Ack{Success: true}, nil
}

func (f *FakeExecutor) SubscribeAll(handler func(types.Event)) id.SubscriptionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	subID := id.NewSubscriptionID()
	f.subs[subID] = handler
	return subID
}

func (f *FakeExecutor) Unsubscribe(subID id.SubscriptionID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[subID]
	delete(f.subs, subID)
	return ok
}

// Emit publishes an event to every subscriber
func (f *FakeExecutor) Emit(ev types.Event) {
	f.mu.Lock()
	handlers := make([]func(types.Event), 0, len(f.subs))
	for _, h := range f.subs {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Output publishes stdout for a session
func (f *FakeExecutor) Output(sessionID, data string) {
	f.mu.Lock()
	if s, ok := f.sessions[sessionID]; ok {
		s.output = append(s.output, data...)
	}
	f.mu.Unlock()
	f.Emit(types.OutputEvent(sessionID, types.StreamStdout, []byte(data)))
}

// ExitSession marks a session exited, as if its shell quit, and publishes
// the exit event
func (f *FakeExecutor) ExitSession(sessionID string, code int) {
	f.mu.Lock()
	if s, ok := f.sessions[sessionID]; ok {
		s.info.Active = false
		s.info.ExitCode = &code
	}
	f.mu.Unlock()
	f.Emit(types.ExitEvent(sessionID, code, ""))
}

// Subscribers returns the number of SubscribeAll registrations
func (f *FakeExecutor) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Calls returns the calls received for target, or all calls if target is
// empty
func (f *FakeExecutor) Calls(target string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if target == "" || c.Target == target {
			out = append(out, c)
		}
	}
	return out
}

// CountCalls returns how many calls for target named sessionID
func (f *FakeExecutor) CountCalls(target, sessionID string) int {
	n := 0
	for _, c := range f.Calls(target) {
		if c.SessionID == sessionID {
			n++
		}
	}
	return n
}

// Input returns everything written to a session
func (f *FakeExecutor) Input(sessionID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		return string(s.input)
	}
	return ""
}

// Session returns a session's info and whether it is registered
func (f *FakeExecutor) Session(sessionID string) (types.SessionInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return types.SessionInfo{}, false
	}
	return s.info, true
}

func number(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
