package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/transport"
)

// ErrClosed is returned by a Terminal after Close
var ErrClosed = errors.New("session: terminal closed")

const defaultOutputLimit = 1 << 20

// Options describe the session an owning Terminal creates
type Options struct {
	Shell      string
	WorkingDir string
	Cols       int
	Rows       int
	Env        map[string]string
	// OutputLimit caps the locally retained output; zero means 1 MiB
	OutputLimit int
}

func (o Options) request(sessionID string) types.CreateRequest {
	return types.CreateRequest{
		SessionID:  sessionID,
		Shell:      o.Shell,
		WorkingDir: o.WorkingDir,
		Cols:       o.Cols,
		Rows:       o.Rows,
		Env:        o.Env,
	}
}

// OutputHandler receives output for the terminal's session
type OutputHandler func(data []byte, stream types.Stream)

// ExitHandler receives the session's exit
type ExitHandler func(exitCode int, signal string)

// Terminal is one consumer's handle on one session
type Terminal struct {
	client *Client
	opts   Options
	logger *zap.Logger

	// life serializes Restart and Close. mu is never held across a call:
	// events for the session arrive on the transport's read loop.
	life sync.Mutex

	mu        sync.Mutex
	sessionID string
	owned     bool
	info      types.SessionInfo
	reg       *transport.Registration
	output    []byte
	exited    bool
	killed    bool
	closed    bool
	onOutput  []OutputHandler
	onExit    []ExitHandler
}

// Open creates a session with a generated id and returns a Terminal that
// owns it
func Open(ctx context.Context, client *Client, opts Options) (*Terminal, error) {
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = defaultOutputLimit
	}
	t := &Terminal{client: client, opts: opts, logger: client.logger}
	if err := t.create(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Attach binds to a session owned elsewhere. Close detaches without
// terminating it.
func Attach(client *Client, sessionID string) *Terminal {
	t := &Terminal{
		client:    client,
		opts:      Options{OutputLimit: defaultOutputLimit},
		logger:    client.logger,
		sessionID: sessionID,
	}
	t.reg = client.Events(sessionID, t.dispatch)
	t.logger.Debug("Attached to session", zap.String("session_id", sessionID))
	return t
}

// create starts a new owned session. The id is adopted and its listener
// registered before the host creates it, so no early output is missed.
func (t *Terminal) create(ctx context.Context) error {
	sessionID := id.NewSessionID().String()

	t.mu.Lock()
	t.sessionID = sessionID
	t.owned = true
	t.exited = false
	t.killed = false
	req := t.opts.request(sessionID)
	t.mu.Unlock()

	reg := t.client.Events(sessionID, t.dispatch)
	info, err := t.client.CreateSession(ctx, req)
	if err != nil {
		reg.Release()
		t.mu.Lock()
		t.sessionID = ""
		t.mu.Unlock()
		if !rejected(err) {
			t.abandon(ctx, sessionID, err)
		}
		return err
	}

	t.mu.Lock()
	t.info = info
	t.reg = reg
	t.mu.Unlock()
	t.logger.Debug("Opened session", zap.String("session_id", sessionID), zap.Int("pid", info.PID))
	return nil
}

// rejected reports whether the host refused a create outright, leaving no
// session behind. Any other failure may have created it anyway.
func rejected(err error) bool {
	switch errs.CodeOf(err) {
	case errs.CodeCapacityExceeded, errs.CodeShellNotAvailable, errs.CodeInvalidArgument,
		errs.CodeDuplicateSession, errs.CodeProcessSpawn:
		return true
	}
	return false
}

// abandon terminates a session whose create failed after the call may
// have reached the host. Unknown ids are a no-op there.
func (t *Terminal) abandon(ctx context.Context, sessionID string, cause error) {
	err := t.client.KillSession(context.WithoutCancel(ctx), sessionID)
	if err != nil && !errors.Is(err, errs.ErrSessionNotFound) {
		t.logger.Warn("Could not terminate session after failed create",
			zap.String("session_id", sessionID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

// SessionID returns the current session id
func (t *Terminal) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Owned reports whether Close terminates the session
func (t *Terminal) Owned() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owned
}

// Info returns the session as reported when it was created. Attached
// terminals have only the id.
func (t *Terminal) Info() types.SessionInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.info.ID == "" {
		return types.SessionInfo{ID: t.sessionID}
	}
	return t.info
}

// Exited reports whether the session's exit has been seen
func (t *Terminal) Exited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exited
}

// Output returns the output received so far
func (t *Terminal) Output() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.output...)
}

// OnOutput registers an output handler for the life of the terminal
func (t *Terminal) OnOutput(handler OutputHandler) {
	t.mu.Lock()
	t.onOutput = append(t.onOutput, handler)
	t.mu.Unlock()
}

// Follow hands the output retained so far to handler, then registers it
// like OnOutput. Nothing is lost or repeated between the two. The replay
// runs with the terminal locked, so handler must not call back into it.
func (t *Terminal) Follow(handler OutputHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.output) > 0 {
		handler(append([]byte(nil), t.output...), types.StreamStdout)
	}
	t.onOutput = append(t.onOutput, handler)
}

// OnExit registers an exit handler for the life of the terminal
func (t *Terminal) OnExit(handler ExitHandler) {
	t.mu.Lock()
	t.onExit = append(t.onExit, handler)
	t.mu.Unlock()
}

func (t *Terminal) current() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", ErrClosed
	}
	return t.sessionID, nil
}

// Write sends input to the session
func (t *Terminal) Write(ctx context.Context, data []byte) error {
	sessionID, err := t.current()
	if err != nil {
		return err
	}
	return t.client.WriteToSession(ctx, sessionID, data)
}

// Resize changes the session's terminal size
func (t *Terminal) Resize(ctx context.Context, cols, rows int) error {
	sessionID, err := t.current()
	if err != nil {
		return err
	}
	if err := t.client.ResizeSession(ctx, sessionID, cols, rows); err != nil {
		return err
	}
	t.mu.Lock()
	t.opts.Cols, t.opts.Rows = cols, rows
	t.mu.Unlock()
	return nil
}

// Clear discards buffered output locally and on the host
func (t *Terminal) Clear(ctx context.Context) error {
	sessionID, err := t.current()
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.output = nil
	t.mu.Unlock()
	return t.client.ClearSession(ctx, sessionID)
}

// Kill terminates the session. A Terminal may kill a session it merely
// attached to; Close never does.
func (t *Terminal) Kill(ctx context.Context) error {
	sessionID, err := t.current()
	if err != nil {
		return err
	}
	if err := t.client.KillSession(ctx, sessionID); err != nil {
		return err
	}
	t.mu.Lock()
	if t.sessionID == sessionID {
		t.killed = true
	}
	t.mu.Unlock()
	return nil
}

// Restart terminates the current session, clears local output and starts
// a fresh session with the same options. The new session is owned by the
// terminal.
func (t *Terminal) Restart(ctx context.Context) error {
	t.life.Lock()
	defer t.life.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	old := t.sessionID
	alive := old != "" && !t.exited && !t.killed
	t.mu.Unlock()

	if alive {
		if err := t.client.KillSession(ctx, old); err != nil && !errors.Is(err, errs.ErrSessionNotFound) {
			return err
		}
	}

	t.mu.Lock()
	reg := t.reg
	t.reg = nil
	t.output = nil
	t.info = types.SessionInfo{}
	t.mu.Unlock()
	if reg != nil {
		reg.Release()
	}

	if err := t.create(ctx); err != nil {
		return err
	}
	t.logger.Info("Restarted session", zap.String("old", old), zap.String("session_id", t.SessionID()))
	return nil
}

// Close releases the terminal. An owning terminal terminates its session
// unless it already exited or was killed; if that fails the terminal stays
// open and Close may be retried. Close is idempotent once it succeeds.
func (t *Terminal) Close(ctx context.Context) error {
	t.life.Lock()
	defer t.life.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	sessionID := t.sessionID
	terminate := t.owned && sessionID != "" && !t.exited && !t.killed
	t.mu.Unlock()

	if terminate {
		err := t.client.KillSession(ctx, sessionID)
		if err != nil && !errors.Is(err, errs.ErrSessionNotFound) {
			t.logger.Warn("Failed to terminate session on close",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			return err
		}
	}

	t.mu.Lock()
	t.closed = true
	reg := t.reg
	t.reg = nil
	t.mu.Unlock()
	if reg != nil {
		reg.Release()
	}
	t.logger.Debug("Closed terminal",
		zap.String("session_id", sessionID),
		zap.Bool("terminated", terminate),
	)
	return nil
}

func (t *Terminal) dispatch(ev types.Event) {
	t.mu.Lock()
	if ev.SessionID != t.sessionID {
		t.mu.Unlock()
		return
	}

	switch ev.Kind {
	case types.EventOutput:
		t.output = append(t.output, ev.Data...)
		if over := len(t.output) - t.opts.OutputLimit; over > 0 {
			t.output = append([]byte(nil), t.output[over:]...)
		}
		handlers := append([]OutputHandler(nil), t.onOutput...)
		t.mu.Unlock()
		for _, h := range handlers {
			h(ev.Data, ev.Stream)
		}
	case types.EventExit:
		t.exited = true
		handlers := append([]ExitHandler(nil), t.onExit...)
		t.mu.Unlock()
		for _, h := range handlers {
			h(ev.ExitCode, ev.Signal)
		}
	default:
		t.mu.Unlock()
	}
}
