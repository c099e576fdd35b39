package terminal

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/monitoring"
	"github.com/sholden3/aiorchestration-sub008/internal/proctree"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/utils"
	"github.com/sholden3/aiorchestration-sub008/internal/shell"
)

// Shells resolves shell requests; *shell.Catalog implements it
type Shells interface {
	Lookup(hint string) (shell.Descriptor, error)
	Available() []shell.Descriptor
	Optimal() shell.Descriptor
}

// Options configures a Manager
type Options struct {
	MaxSessions     int
	HistoryLimit    int
	BufferSize      int
	MonitorInterval time.Duration
	DefaultCols     int
	DefaultRows     int
	DefaultDir      string
	Logger          *zap.Logger
	Metrics         *monitoring.Metrics
}

func (o *Options) setDefaults() {
	if o.MaxSessions <= 0 {
		o.MaxSessions = 10
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 500
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 1024 * 1024
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = time.Second
	}
	if o.DefaultCols <= 0 {
		o.DefaultCols = 80
	}
	if o.DefaultRows <= 0 {
		o.DefaultRows = 24
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// drainTimeout bounds how long an exiting session waits for its output
// readers before closing the terminal under them
const drainTimeout = 500 * time.Millisecond

// Manager is the registry of live PTY sessions
type Manager struct {
	opts    Options
	shells  Shells
	procs   *proctree.Manager
	spawner Spawner
	bus     *Bus
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	reserved map[string]struct{}
	retired  map[string]struct{}
}

// NewManager creates a session registry
func NewManager(shells Shells, procs *proctree.Manager, spawner Spawner, opts Options) *Manager {
	opts.setDefaults()
	logger := opts.Logger.Named("terminal")
	return &Manager{
		opts:     opts,
		shells:   shells,
		procs:    procs,
		spawner:  spawner,
		bus:      NewBus(logger),
		logger:   logger,
		metrics:  opts.Metrics,
		sessions: make(map[string]*Session),
		reserved: make(map[string]struct{}),
		retired:  make(map[string]struct{}),
	}
}

// Create starts a shell on a new PTY and registers the session. Capacity
// is checked before anything is spawned.
func (m *Manager) Create(ctx context.Context, req types.CreateRequest) (types.SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return types.SessionInfo{}, errs.Wrap(errs.CodeTimeout, err, "create session")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = id.NewSessionID().String()
	}
	if err := utils.ValidateID(sessionID, "session_id", true); err != nil {
		return types.SessionInfo{}, errs.Wrap(errs.CodeInvalidArgument, err, "invalid session id")
	}
	if err := utils.ValidateShellHint(req.Shell); err != nil {
		return types.SessionInfo{}, errs.Wrap(errs.CodeInvalidArgument, err, "invalid shell")
	}

	if err := m.reserve(sessionID); err != nil {
		return types.SessionInfo{}, err
	}

	s, err := m.start(sessionID, req)
	if err != nil {
		m.release(sessionID)
		return types.SessionInfo{}, err
	}

	m.mu.Lock()
	delete(m.reserved, sessionID)
	m.sessions[sessionID] = s
	active := len(m.sessions)
	m.mu.Unlock()

	m.metrics.IncSessionsCreated()
	m.metrics.SetSessionsActive(active)

	m.run(s)

	m.logger.Info("Session created",
		zap.String("session_id", s.ID),
		zap.String("shell", s.Shell.Path),
		zap.Int("pid", s.proc.PID()),
	)
	return s.Info(), nil
}

// reserve claims an id and a capacity slot
func (m *Manager) reserve(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; ok {
		m.metrics.IncSessionsRejected("duplicate")
		return errs.New(errs.CodeDuplicateSession, "session id already in use: %s", sessionID)
	}
	if _, ok := m.reserved[sessionID]; ok {
		m.metrics.IncSessionsRejected("duplicate")
		return errs.New(errs.CodeDuplicateSession, "session id already in use: %s", sessionID)
	}
	if _, ok := m.retired[sessionID]; ok {
		m.metrics.IncSessionsRejected("duplicate")
		return errs.New(errs.CodeDuplicateSession, "session id was used by an earlier session: %s", sessionID)
	}
	if len(m.sessions)+len(m.reserved) >= m.opts.MaxSessions {
		m.metrics.IncSessionsRejected("capacity")
		return errs.New(errs.CodeCapacityExceeded, "session limit %d reached", m.opts.MaxSessions)
	}
	m.reserved[sessionID] = struct{}{}
	return nil
}

func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	delete(m.reserved, sessionID)
	m.mu.Unlock()
}

// start resolves defaults and spawns the shell
func (m *Manager) start(sessionID string, req types.CreateRequest) (*Session, error) {
	desc, err := m.shells.Lookup(req.Shell)
	if err != nil {
		m.metrics.IncSessionsRejected("shell")
		return nil, err
	}

	dir, err := m.workingDir(req.WorkingDir)
	if err != nil {
		return nil, err
	}

	cols, rows := req.Cols, req.Rows
	if cols <= 0 {
		cols = m.opts.DefaultCols
	}
	if rows <= 0 {
		rows = m.opts.DefaultRows
	}

	env := append(os.Environ(), "TERM=xterm-256color")
	for key, value := range req.Env {
		env = append(env, key+"="+value)
	}

	proc, err := m.spawner.Spawn(SpawnRequest{Shell: desc, Dir: dir, Env: env, Cols: cols, Rows: rows})
	if err != nil {
		m.metrics.IncSpawnFailures()
		m.logger.Warn("Shell failed to start", zap.String("shell", desc.Path), zap.Error(err))
		return nil, errs.Wrap(errs.CodeProcessSpawn, err, "spawn %s", desc.Path)
	}

	return &Session{
		ID:         sessionID,
		Shell:      desc,
		WorkingDir: dir,
		StartedAt:  time.Now(),
		proc:       proc,
		output:     NewBuffer(m.opts.BufferSize),
		history:    NewHistory(m.opts.HistoryLimit),
		cols:       cols,
		rows:       rows,
		waitDone:   make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

func (m *Manager) workingDir(dir string) (string, error) {
	if dir == "" {
		dir = m.opts.DefaultDir
	}
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = home
		} else {
			dir = os.TempDir()
		}
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", errs.New(errs.CodeInvalidArgument, "working directory not found: %s", dir)
	}
	return dir, nil
}

// run starts the readers, the waiter and the exit monitor
func (m *Manager) run(s *Session) {
	for _, stream := range s.proc.Streams() {
		s.readers.Add(1)
		go m.readOutput(s, stream)
	}

	s.monitor = m.procs.Monitor(s.proc.PID(), func(int) {
		m.onProcessGone(s)
	}, m.opts.MonitorInterval)

	go func() {
		code, sig, err := s.proc.Wait()
		if err != nil {
			m.logger.Debug("Wait failed", zap.String("session_id", s.ID), zap.Error(err))
		}
		close(s.waitDone)
		m.finish(s, code, sig)
	}()
}

// readOutput copies one stream into the buffer and out as events
func (m *Manager) readOutput(s *Session, stream OutputStream) {
	defer s.readers.Done()

	buf := make([]byte, 4096)
	for {
		n, err := stream.Reader.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			s.output.Write(data)
			s.countOutput(n)
			m.metrics.AddOutputBytes(n)
			m.bus.Publish(types.OutputEvent(s.ID, stream.Name, data))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && s.alive() {
				// The PTY master reports EIO once the shell side closes
				m.logger.Debug("Output stream closed", zap.String("session_id", s.ID), zap.Error(err))
			}
			return
		}
	}
}

// onProcessGone handles an exit seen by the monitor. The waiter normally
// gets there first with the real exit status.
func (m *Manager) onProcessGone(s *Session) {
	select {
	case <-s.waitDone:
		return
	case <-time.After(drainTimeout):
	}
	m.logger.Warn("Shell exited without being reaped", zap.String("session_id", s.ID))
	m.finish(s, -1, "")
}

// finish runs once per session: stop monitoring, drain output, publish the
// exit and free the registry entry
func (m *Manager) finish(s *Session, code int, sig string) {
	s.exitOnce.Do(func() {
		m.procs.StopMonitor(s.monitor)

		drained := make(chan struct{})
		go func() {
			s.readers.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(drainTimeout):
		}
		_ = s.proc.Close()
		<-drained

		now := time.Now()
		s.mu.Lock()
		s.closed = true
		s.exitCode = &code
		s.mu.Unlock()
		s.history.Finish(code, now)

		how := "exited"
		if sig != "" {
			how = "signalled"
		}
		m.metrics.IncSessionExits(how)

		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.retired[s.ID] = struct{}{}
		active := len(m.sessions)
		m.mu.Unlock()
		m.metrics.SetSessionsActive(active)

		// The slot is free before anyone hears about the exit
		m.bus.Publish(types.ExitEvent(s.ID, code, sig))
		m.bus.drop(s.ID)

		m.logger.Info("Session exited",
			zap.String("session_id", s.ID),
			zap.Int("exit_code", code),
			zap.String("signal", sig),
		)
		close(s.done)
	})
}

func (m *Manager) lookup(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

func (m *Manager) live(sessionID string) (*Session, error) {
	s, ok := m.lookup(sessionID)
	if !ok || !s.alive() {
		return nil, errs.SessionNotFound(sessionID)
	}
	return s, nil
}

// Get returns a session snapshot
func (m *Manager) Get(sessionID string) (types.SessionInfo, error) {
	s, ok := m.lookup(sessionID)
	if !ok {
		return types.SessionInfo{}, errs.SessionNotFound(sessionID)
	}
	return s.Info(), nil
}

// List returns all registered sessions, oldest first
func (m *Manager) List() []types.SessionInfo {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]types.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Write sends input to a session
func (m *Manager) Write(sessionID string, data []byte) error {
	s, err := m.live(sessionID)
	if err != nil {
		return err
	}

	if _, err := s.proc.Write(data); err != nil {
		s.countError()
		return errs.Wrap(errs.CodeSessionNotFound, err, "write to session %s", sessionID)
	}
	s.history.Input(data, time.Now())
	return nil
}

// Resize changes terminal dimensions
func (m *Manager) Resize(sessionID string, cols, rows int) error {
	if cols <= 0 || rows <= 0 || cols > 0xffff || rows > 0xffff {
		return errs.New(errs.CodeInvalidArgument, "invalid terminal size %dx%d", cols, rows)
	}
	s, err := m.live(sessionID)
	if err != nil {
		return err
	}

	if err := s.proc.Resize(cols, rows); err != nil {
		s.countError()
		return errs.Wrap(errs.CodeSessionNotFound, err, "resize session %s", sessionID)
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	return nil
}

// Read drains buffered output
func (m *Manager) Read(sessionID string) ([]byte, error) {
	s, ok := m.lookup(sessionID)
	if !ok {
		return nil, errs.SessionNotFound(sessionID)
	}
	return s.output.ReadAll(), nil
}

// Clear discards buffered output
func (m *Manager) Clear(sessionID string) error {
	s, ok := m.lookup(sessionID)
	if !ok {
		return errs.SessionNotFound(sessionID)
	}
	s.output.Reset()
	return nil
}

// History returns a session's command history, oldest first
func (m *Manager) History(sessionID string) ([]types.HistoryEntry, error) {
	s, ok := m.lookup(sessionID)
	if !ok {
		return nil, errs.SessionNotFound(sessionID)
	}
	return s.history.Entries(), nil
}

// Terminate ends a session's process tree and waits until the exit is
// confirmed. Graceful signals come first; survivors are killed after the
// grace period. Unknown and already-dead sessions are a no-op.
func (m *Manager) Terminate(ctx context.Context, sessionID string) error {
	s, ok := m.lookup(sessionID)
	if !ok {
		return nil
	}

	pid := s.proc.PID()
	if s.alive() {
		res := m.procs.Terminate(pid, false)
		if res.Status == proctree.Failed {
			m.logger.Info("Escalating to force kill",
				zap.String("session_id", sessionID),
				zap.Ints("remaining", res.Remaining),
			)
			res = m.procs.Terminate(pid, true)
			if res.Status == proctree.Failed {
				m.logger.Warn("Process tree survived force kill",
					zap.String("session_id", sessionID),
					zap.Ints("remaining", res.Remaining),
				)
			}
		}
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.CodeTimeout, ctx.Err(), "terminate session %s", sessionID)
	}
}

// Shutdown terminates every session
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for sid := range m.sessions {
		ids = append(ids, sid)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, sid := range ids {
		sid := sid
		g.Go(func() error {
			return m.Terminate(gctx, sid)
		})
	}
	return g.Wait()
}

// Subscribe registers a handler for one session's events
func (m *Manager) Subscribe(sessionID string, handler Handler) id.SubscriptionID {
	return m.bus.Subscribe(sessionID, handler)
}

// SubscribeAll registers a handler for every session's events
func (m *Manager) SubscribeAll(handler Handler) id.SubscriptionID {
	return m.bus.SubscribeAll(handler)
}

// Unsubscribe removes an event subscription
func (m *Manager) Unsubscribe(subID id.SubscriptionID) bool {
	return m.bus.Unsubscribe(subID)
}

// Count returns the number of registered sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Capacity returns the configured session limit
func (m *Manager) Capacity() int {
	return m.opts.MaxSessions
}
