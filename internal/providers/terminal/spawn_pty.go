//go:build !windows

package terminal

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
)

// PTYSpawner starts shells on a pseudo-terminal
type PTYSpawner struct{}

func newPTYSpawner() Spawner {
	return PTYSpawner{}
}

// Spawn starts req.Shell attached to a new PTY of the requested size
func (PTYSpawner) Spawn(req SpawnRequest) (Process, error) {
	cmd := command(req)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(req.Rows),
		Cols: uint16(req.Cols),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}
	return &ptyProcess{cmd: cmd, ptmx: ptmx}, nil
}

type ptyProcess struct {
	cmd       *exec.Cmd
	ptmx      *os.File
	closeOnce sync.Once
	closeErr  error
}

func (p *ptyProcess) PID() int { return p.cmd.Process.Pid }

func (p *ptyProcess) Write(b []byte) (int, error) { return p.ptmx.Write(b) }

func (p *ptyProcess) Resize(cols, rows int) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Streams returns the single merged PTY stream
func (p *ptyProcess) Streams() []OutputStream {
	return []OutputStream{{Name: types.StreamStdout, Reader: p.ptmx}}
}

func (p *ptyProcess) Wait() (int, string, error) {
	err := p.cmd.Wait()
	return exitStatus(p.cmd, err)
}

func (p *ptyProcess) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.ptmx.Close()
	})
	return p.closeErr
}
