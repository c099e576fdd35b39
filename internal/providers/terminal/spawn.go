package terminal

import (
	"errors"
	"io"
	"os/exec"
	"syscall"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/shell"
)

// SpawnRequest describes a shell process to start
type SpawnRequest struct {
	Shell shell.Descriptor
	Dir   string
	Env   []string
	Cols  int
	Rows  int
}

// OutputStream is one readable output channel of a process
type OutputStream struct {
	Name   types.Stream
	Reader io.Reader
}

// Process is a running shell
type Process interface {
	PID() int
	Write(p []byte) (int, error)
	Resize(cols, rows int) error
	Streams() []OutputStream
	// Wait blocks until the process exits. Signal is set when a signal
	// ended it.
	Wait() (exitCode int, signal string, err error)
	// Close releases the terminal or pipes; buffered readers return EOF
	Close() error
}

// Spawner starts shell processes
type Spawner interface {
	Spawn(req SpawnRequest) (Process, error)
}

// SpawnerFunc adapts a function to Spawner
type SpawnerFunc func(req SpawnRequest) (Process, error)

// Spawn calls f(req)
func (f SpawnerFunc) Spawn(req SpawnRequest) (Process, error) {
	return f(req)
}

// AutoSpawner uses a PTY when the shell and platform support one and
// falls back to pipes otherwise
type AutoSpawner struct {
	PTY  Spawner
	Pipe Spawner
}

// DefaultSpawner returns the platform's AutoSpawner
func DefaultSpawner() *AutoSpawner {
	return &AutoSpawner{PTY: newPTYSpawner(), Pipe: PipeSpawner{}}
}

// Spawn picks the transport for req.Shell
func (a *AutoSpawner) Spawn(req SpawnRequest) (Process, error) {
	if req.Shell.Capabilities.NativePTY && a.PTY != nil {
		return a.PTY.Spawn(req)
	}
	return a.Pipe.Spawn(req)
}

func command(req SpawnRequest) *exec.Cmd {
	cmd := exec.Command(req.Shell.Path, req.Shell.Args...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	return cmd
}

// exitStatus maps a Wait error to an exit code and signal name. Signal
// deaths use the shell convention of 128+n.
func exitStatus(cmd *exec.Cmd, err error) (int, string, error) {
	state := cmd.ProcessState
	if state == nil {
		return -1, "", err
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), ws.Signal().String(), nil
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return state.ExitCode(), "", err
	}
	return state.ExitCode(), "", nil
}
