package terminal

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/shell"
)

// Call targets understood by Provider.Execute
const (
	TargetCreateSession = "terminal.create_session"
	TargetWrite         = "terminal.write"
	TargetRead          = "terminal.read"
	TargetClear         = "terminal.clear"
	TargetResize        = "terminal.resize"
	TargetKill          = "terminal.kill"
	TargetGetSession    = "terminal.get_session"
	TargetListSessions  = "terminal.list_sessions"
	TargetHistory       = "terminal.history"
	TargetShells        = "terminal.shells"
	TargetOptimalShell  = "terminal.optimal_shell"
)

// Targets lists every call target
var Targets = []string{
	TargetCreateSession, TargetWrite, TargetRead, TargetClear, TargetResize, TargetKill,
	TargetGetSession, TargetListSessions, TargetHistory, TargetShells, TargetOptimalShell,
}

// Provider dispatches transport calls to the session registry
type Provider struct {
	manager *Manager
	shells  Shells
}

// NewProvider creates a provider over a registry
func NewProvider(manager *Manager, shells Shells) *Provider {
	return &Provider{manager: manager, shells: shells}
}

// Manager returns the underlying registry
func (p *Provider) Manager() *Manager {
	return p.manager
}

// ShellList is the result of terminal.shells
type ShellList struct {
	Shells []shell.Descriptor `json:"shells"`
}

// ReadResult is the result of terminal.read
type ReadResult struct {
	Output []byte `json:"output"`
	Length int    `json:"length"`
}

// Ack is the result of calls that return nothing
type Ack struct {
	Success bool `json:"success"`
}

// Execute routes a call to the matching operation
func (p *Provider) Execute(ctx context.Context, target string, params map[string]interface{}) (interface{}, error) {
	switch target {
	case TargetCreateSession:
		return p.createSession(ctx, params)
	case TargetWrite:
		return p.write(params)
	case TargetRead:
		return p.read(params)
	case TargetClear:
		return p.clear(params)
	case TargetResize:
		return p.resize(params)
	case TargetKill:
		return p.kill(ctx, params)
	case TargetGetSession:
		return p.getSession(params)
	case TargetListSessions:
		sessions := p.manager.List()
		return types.SessionList{Sessions: sessions, Count: len(sessions)}, nil
	case TargetHistory:
		return p.history(params)
	case TargetShells:
		return ShellList{Shells: p.shells.Available()}, nil
	case TargetOptimalShell:
		return p.shells.Optimal(), nil
	default:
		return nil, errs.New(errs.CodeInvalidArgument, "unknown target: %s", target)
	}
}

// SubscribeAll forwards every session event to handler
func (p *Provider) SubscribeAll(handler func(types.Event)) id.SubscriptionID {
	return p.manager.SubscribeAll(handler)
}

// Unsubscribe releases a SubscribeAll registration
func (p *Provider) Unsubscribe(subID id.SubscriptionID) bool {
	return p.manager.Unsubscribe(subID)
}

func (p *Provider) createSession(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	req := types.CreateRequest{}
	req.SessionID, _ = params["session_id"].(string)
	req.Shell, _ = params["shell"].(string)
	req.WorkingDir, _ = params["working_dir"].(string)
	req.Cols = intParam(params, "cols")
	req.Rows = intParam(params, "rows")

	if envMap, ok := params["env"].(map[string]interface{}); ok {
		req.Env = make(map[string]string, len(envMap))
		for k, v := range envMap {
			if str, ok := v.(string); ok {
				req.Env[k] = str
			}
		}
	}

	return p.manager.Create(ctx, req)
}

func (p *Provider) write(params map[string]interface{}) (interface{}, error) {
	sessionID, err := sessionParam(params)
	if err != nil {
		return nil, err
	}

	var input []byte
	if encoded, ok := params["input_base64"].(string); ok {
		input, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, errs.Wrap(errs.CodeInvalidArgument, err, "input_base64 is not valid base64")
		}
	} else if str, ok := params["input"].(string); ok {
		input = []byte(str)
	} else {
		return nil, errs.New(errs.CodeInvalidArgument, "input is required")
	}

	if err := p.manager.Write(sessionID, input); err != nil {
		return nil, err
	}
	return Ack{Success: true}, nil
}

func (p *Provider) read(params map[string]interface{}) (interface{}, error) {
	sessionID, err := sessionParam(params)
	if err != nil {
		return nil, err
	}
	output, err := p.manager.Read(sessionID)
	if err != nil {
		return nil, err
	}
	return ReadResult{Output: output, Length: len(output)}, nil
}

func (p *Provider) clear(params map[string]interface{}) (interface{}, error) {
	sessionID, err := sessionParam(params)
	if err != nil {
		return nil, err
	}
	if err := p.manager.Clear(sessionID); err != nil {
		return nil, err
	}
	return Ack{Success: true}, nil
}

func (p *Provider) resize(params map[string]interface{}) (interface{}, error) {
	sessionID, err := sessionParam(params)
	if err != nil {
		return nil, err
	}
	cols, rows := intParam(params, "cols"), intParam(params, "rows")
	if err := p.manager.Resize(sessionID, cols, rows); err != nil {
		return nil, err
	}
	return Ack{Success: true}, nil
}

func (p *Provider) kill(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	sessionID, err := sessionParam(params)
	if err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}
	if err := p.manager.Terminate(ctx, sessionID); err != nil {
		return nil, err
	}
	return Ack{Success: true}, nil
}

func (p *Provider) getSession(params map[string]interface{}) (interface{}, error) {
	sessionID, err := sessionParam(params)
	if err != nil {
		return nil, err
	}
	return p.manager.Get(sessionID)
}

func (p *Provider) history(params map[string]interface{}) (interface{}, error) {
	sessionID, err := sessionParam(params)
	if err != nil {
		return nil, err
	}
	entries, err := p.manager.History(sessionID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func sessionParam(params map[string]interface{}) (string, error) {
	sessionID, ok := params["session_id"].(string)
	if !ok || sessionID == "" {
		return "", errs.New(errs.CodeInvalidArgument, "session_id is required")
	}
	return sessionID, nil
}

// intParam reads a JSON number, which decodes as float64
func intParam(params map[string]interface{}, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
