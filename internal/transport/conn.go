package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
)

// FrameType tags a wire frame
type FrameType string

const (
	FrameCall   FrameType = "call"
	FrameResult FrameType = "result"
	FrameEvent  FrameType = "event"
)

// WireError is an error carried in a result frame
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Frame is one message on a connection. Calls flow from consumer to host;
// results and events flow back.
type Frame struct {
	Type    FrameType              `json:"type"`
	ID      string                 `json:"id,omitempty"`
	Target  string                 `json:"target,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Data    json.RawMessage        `json:"data,omitempty"`
	Error   *WireError             `json:"error,omitempty"`
	Event   *types.Event           `json:"event,omitempty"`
}

// Encode serializes a frame
func Encode(f Frame) ([]byte, error) {
	return sonic.Marshal(f)
}

// Decode parses a frame
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// ResultFrame builds the reply to a call
func ResultFrame(callID string, result interface{}, err error) Frame {
	f := Frame{Type: FrameResult, ID: callID}
	if err != nil {
		f.Error = &WireError{Code: string(errs.CodeOf(err)), Message: err.Error()}
		return f
	}
	data, mErr := sonic.Marshal(result)
	if mErr != nil {
		f.Error = &WireError{Code: string(errs.CodeInternal), Message: "encode result: " + mErr.Error()}
		return f
	}
	f.Data = data
	return f
}

// ErrConnClosed is returned by a closed connection
var ErrConnClosed = errors.New("connection closed")

// Conn is a framed, bidirectional connection. Send is safe for concurrent
// use; Recv is called from a single goroutine.
type Conn interface {
	Send(ctx context.Context, f Frame) error
	// Recv blocks for the next frame and fails once the connection is gone
	Recv() (Frame, error)
	Close() error
}

// Dialer opens connections to the host
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx)
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// pipeBuffer is the number of encoded frames a pipe holds per direction
const pipeBuffer = 256

// pipeConn is one end of an in-memory connection. Frames still pass
// through the wire encoding so both ends share nothing but bytes.
type pipeConn struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// Pipe returns the two ends of an in-memory connection. Closing either end
// closes both.
func Pipe() (Conn, Conn) {
	a := make(chan []byte, pipeBuffer)
	b := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	return &pipeConn{in: a, out: b, done: done, once: once},
		&pipeConn{in: b, out: a, done: done, once: once}
}

func (p *pipeConn) Send(ctx context.Context, f Frame) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrConnClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Recv() (Frame, error) {
	select {
	case data := <-p.in:
		return Decode(data)
	case <-p.done:
		return Frame{}, ErrConnClosed
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
