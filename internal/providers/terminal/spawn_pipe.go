package terminal

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
)

// PipeSpawner starts shells on plain pipes, keeping stdout and stderr apart.
// Used for shells without native PTY support.
type PipeSpawner struct{}

// Spawn starts req.Shell with piped stdio
func (PipeSpawner) Spawn(req SpawnRequest) (Process, error) {
	cmd := command(req)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			f.Close()
		}
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}
	// The child holds its own copies of the write ends
	stdoutW.Close()
	stderrW.Close()

	return &pipeProcess{cmd: cmd, stdin: stdin, stdout: stdoutR, stderr: stderrR}, nil
}

type pipeProcess struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *os.File
	stderr    *os.File
	closeOnce sync.Once
}

func (p *pipeProcess) PID() int { return p.cmd.Process.Pid }

func (p *pipeProcess) Write(b []byte) (int, error) { return p.stdin.Write(b) }

// Resize is recorded by the registry only; pipes have no window size
func (p *pipeProcess) Resize(cols, rows int) error { return nil }

func (p *pipeProcess) Streams() []OutputStream {
	return []OutputStream{
		{Name: types.StreamStdout, Reader: p.stdout},
		{Name: types.StreamStderr, Reader: p.stderr},
	}
}

func (p *pipeProcess) Wait() (int, string, error) {
	err := p.cmd.Wait()
	return exitStatus(p.cmd, err)
}

func (p *pipeProcess) Close() error {
	p.closeOnce.Do(func() {
		p.stdin.Close()
		p.stdout.Close()
		p.stderr.Close()
	})
	return nil
}
