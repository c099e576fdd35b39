package session

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/sholden3/aiorchestration-sub008/internal/providers/terminal"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/shell"
	"github.com/sholden3/aiorchestration-sub008/internal/transport"
)

// ClientOptions configures a Client
type ClientOptions struct {
	// CallTimeout bounds each call; zero uses the transport default
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// Client calls the session host over a transport. One Client, and one
// transport, is shared by every Terminal of a consumer.
type Client struct {
	transport *transport.Transport
	timeout   time.Duration
	logger    *zap.Logger
}

// NewClient creates a client over tr
func NewClient(tr *transport.Transport, opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		transport: tr,
		timeout:   opts.CallTimeout,
		logger:    opts.Logger.Named("session"),
	}
}

// Transport returns the underlying transport
func (c *Client) Transport() *transport.Transport {
	return c.transport
}

// State returns the raw connection state
func (c *Client) State() transport.ConnectionState {
	return c.transport.State()
}

// OnStateChange observes the debounced connection state. handler runs at
// once with the current value.
func (c *Client) OnStateChange(handler transport.StateHandler) *transport.Subscription {
	return c.transport.Subscribe(handler)
}

// Events delivers output and exit events for one session until the
// registration is released
func (c *Client) Events(sessionID string, handler transport.EventHandler) *transport.Registration {
	return c.transport.Listen(sessionID, handler)
}

// CreateSession starts a session on the host. An empty SessionID lets the
// host pick one.
func (c *Client) CreateSession(ctx context.Context, req types.CreateRequest) (types.SessionInfo, error) {
	payload := map[string]interface{}{
		"session_id":  req.SessionID,
		"shell":       req.Shell,
		"working_dir": req.WorkingDir,
		"cols":        req.Cols,
		"rows":        req.Rows,
	}
	if len(req.Env) > 0 {
		env := make(map[string]interface{}, len(req.Env))
		for k, v := range req.Env {
			env[k] = v
		}
		payload["env"] = env
	}

	var info types.SessionInfo
	if err := c.call(ctx, terminal.TargetCreateSession, payload, &info); err != nil {
		return types.SessionInfo{}, err
	}
	return info, nil
}

// WriteToSession sends input to a session. Input travels base64-encoded so
// control bytes survive the wire.
func (c *Client) WriteToSession(ctx context.Context, sessionID string, data []byte) error {
	return c.call(ctx, terminal.TargetWrite, map[string]interface{}{
		"session_id":   sessionID,
		"input_base64": base64.StdEncoding.EncodeToString(data),
	}, nil)
}

// ResizeSession changes a session's terminal size
func (c *Client) ResizeSession(ctx context.Context, sessionID string, cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return errs.New(errs.CodeInvalidArgument, "invalid size %dx%d", cols, rows)
	}
	return c.call(ctx, terminal.TargetResize, map[string]interface{}{
		"session_id": sessionID,
		"cols":       cols,
		"rows":       rows,
	}, nil)
}

// KillSession terminates a session and its process tree
func (c *Client) KillSession(ctx context.Context, sessionID string) error {
	return c.call(ctx, terminal.TargetKill, map[string]interface{}{"session_id": sessionID}, nil)
}

// ClearSession discards a session's buffered output on the host
func (c *Client) ClearSession(ctx context.Context, sessionID string) error {
	return c.call(ctx, terminal.TargetClear, map[string]interface{}{"session_id": sessionID}, nil)
}

// ReadSession returns a session's buffered output
func (c *Client) ReadSession(ctx context.Context, sessionID string) ([]byte, error) {
	var res terminal.ReadResult
	if err := c.call(ctx, terminal.TargetRead, map[string]interface{}{"session_id": sessionID}, &res); err != nil {
		return nil, err
	}
	return res.Output, nil
}

// GetSession returns one session
func (c *Client) GetSession(ctx context.Context, sessionID string) (types.SessionInfo, error) {
	var info types.SessionInfo
	if err := c.call(ctx, terminal.TargetGetSession, map[string]interface{}{"session_id": sessionID}, &info); err != nil {
		return types.SessionInfo{}, err
	}
	return info, nil
}

// ListSessions returns every session on the host
func (c *Client) ListSessions(ctx context.Context) ([]types.SessionInfo, error) {
	var list types.SessionList
	if err := c.call(ctx, terminal.TargetListSessions, nil, &list); err != nil {
		return nil, err
	}
	return list.Sessions, nil
}

// History returns the commands submitted to a session
func (c *Client) History(ctx context.Context, sessionID string) ([]types.HistoryEntry, error) {
	var entries []types.HistoryEntry
	if err := c.call(ctx, terminal.TargetHistory, map[string]interface{}{"session_id": sessionID}, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AvailableShells lists the shells installed on the host
func (c *Client) AvailableShells(ctx context.Context) ([]shell.Descriptor, error) {
	var list terminal.ShellList
	if err := c.call(ctx, terminal.TargetShells, nil, &list); err != nil {
		return nil, err
	}
	return list.Shells, nil
}

// OptimalShell returns the host's preferred shell
func (c *Client) OptimalShell(ctx context.Context) (shell.Descriptor, error) {
	var desc shell.Descriptor
	if err := c.call(ctx, terminal.TargetOptimalShell, nil, &desc); err != nil {
		return shell.Descriptor{}, err
	}
	return desc, nil
}

func (c *Client) call(ctx context.Context, target string, payload map[string]interface{}, out interface{}) error {
	data, err := c.transport.Invoke(ctx, target, payload, c.timeout)
	if err != nil {
		c.logger.Debug("Call failed", zap.String("target", target), zap.Error(err))
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return errs.Wrap(errs.CodeInternal, err, "decode %s result", target)
	}
	return nil
}
