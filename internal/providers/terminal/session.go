package terminal

import (
	"sync"
	"time"

	"github.com/sholden3/aiorchestration-sub008/internal/proctree"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/shell"
)

// Session is one live PTY session
type Session struct {
	ID         string
	Shell      shell.Descriptor
	WorkingDir string
	StartedAt  time.Time

	proc    Process
	output  *Buffer
	history *History
	monitor proctree.MonitorHandle

	mu       sync.RWMutex
	cols     int
	rows     int
	closed   bool
	exitCode *int
	bytesOut uint64
	errors   uint64

	readers  sync.WaitGroup
	waitDone chan struct{}
	done     chan struct{}
	exitOnce sync.Once
}

// Info returns the public view of the session
func (s *Session) Info() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := types.SessionInfo{
		ID:         s.ID,
		ShellKind:  string(s.Shell.Kind),
		ShellPath:  s.Shell.Path,
		WorkingDir: s.WorkingDir,
		Cols:       s.cols,
		Rows:       s.rows,
		PID:        s.proc.PID(),
		StartedAt:  s.StartedAt,
		Active:     !s.closed,
		Counters: types.Counters{
			BytesOut: s.bytesOut,
			Commands: s.history.Total(),
			Errors:   s.errors,
		},
	}
	if s.exitCode != nil {
		code := *s.exitCode
		info.ExitCode = &code
	}
	return info
}

func (s *Session) alive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

func (s *Session) countError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *Session) countOutput(n int) {
	s.mu.Lock()
	s.bytesOut += uint64(n)
	s.mu.Unlock()
}

// Done is closed once the session has exited and been unregistered
func (s *Session) Done() <-chan struct{} {
	return s.done
}
