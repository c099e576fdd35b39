package testutil

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/sholden3/aiorchestration-sub008/internal/providers/terminal"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
)

var nextPID atomic.Int32

func init() {
	nextPID.Store(1 << 20)
}

// FakeProcess is a scriptable terminal.Process. Output written with Emit
// appears on its stdout stream; Exit ends it.
type FakeProcess struct {
	pid int

	outR *io.PipeReader
	outW *io.PipeWriter

	mu     sync.Mutex
	input  []byte
	cols   int
	rows   int
	exited bool

	exit     chan struct{}
	exitCode int
	signal   string
	closed   atomic.Bool
	once     sync.Once
}

// NewFakeProcess creates a running fake with a unique pid
func NewFakeProcess() *FakeProcess {
	r, w := io.Pipe()
	return &FakeProcess{
		pid:  int(nextPID.Add(1)),
		outR: r,
		outW: w,
		exit: make(chan struct{}),
	}
}

func (p *FakeProcess) PID() int { return p.pid }

func (p *FakeProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return 0, io.ErrClosedPipe
	}
	p.input = append(p.input, b...)
	return len(b), nil
}

func (p *FakeProcess) Resize(cols, rows int) error {
	p.mu.Lock()
	p.cols, p.rows = cols, rows
	p.mu.Unlock()
	return nil
}

func (p *FakeProcess) Streams() []terminal.OutputStream {
	return []terminal.OutputStream{{Name: types.StreamStdout, Reader: p.outR}}
}

func (p *FakeProcess) Wait() (int, string, error) {
	<-p.exit
	return p.exitCode, p.signal, nil
}

func (p *FakeProcess) Close() error {
	p.closed.Store(true)
	p.outW.Close()
	return nil
}

// Emit writes output as if the shell printed it
func (p *FakeProcess) Emit(s string) {
	_, _ = p.outW.Write([]byte(s))
}

// Exit ends the process with code and optional signal
func (p *FakeProcess) Exit(code int, signal string) {
	p.once.Do(func() {
		p.mu.Lock()
		p.exited = true
		p.exitCode = code
		p.signal = signal
		p.mu.Unlock()
		p.outW.Close()
		close(p.exit)
	})
}

// Alive reports whether Exit has not been called
func (p *FakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exited
}

// Input returns everything written to the process
func (p *FakeProcess) Input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.input)
}

// Size returns the last requested geometry
func (p *FakeProcess) Size() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cols, p.rows
}

// Closed reports whether Close was called
func (p *FakeProcess) Closed() bool {
	return p.closed.Load()
}
