package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
)

// Executor runs calls on the session-owning side of the transport.
// *terminal.Provider implements it.
type Executor interface {
	Execute(ctx context.Context, target string, params map[string]interface{}) (interface{}, error)
	SubscribeAll(handler func(types.Event)) id.SubscriptionID
	Unsubscribe(subID id.SubscriptionID) bool
}

// ServeOptions configures Serve
type ServeOptions struct {
	// CallTimeout bounds each call; zero means 30s
	CallTimeout time.Duration
	// EventQueue bounds the events waiting to be written to this
	// connection; zero means 1024. A consumer that falls further behind
	// is disconnected.
	EventQueue int
	// OnFrame observes every frame in ("in") and out ("out")
	OnFrame func(direction string, f Frame)
	Logger  *zap.Logger
}

// ErrSlowConsumer is returned by Serve when it dropped a connection whose
// event queue overflowed
var ErrSlowConsumer = errors.New("transport: consumer too slow, event queue full")

// Serve runs the host side of one connection until it closes or ctx ends.
// Calls execute one at a time in arrival order. Events are queued and
// written by a separate writer, so publishers never wait on this
// connection.
func Serve(ctx context.Context, conn Conn, exec Executor, opts ServeOptions) error {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.EventQueue <= 0 {
		opts.EventQueue = 1024
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan Frame, opts.EventQueue)
	var overflow atomic.Bool

	go func() {
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-out:
				if opts.OnFrame != nil {
					opts.OnFrame("out", f)
				}
				if err := conn.Send(ctx, f); err != nil {
					if ctx.Err() == nil {
						logger.Debug("Send failed", zap.String("type", string(f.Type)), zap.Error(err))
					}
					cancel()
					return
				}
			}
		}
	}()

	sub := exec.SubscribeAll(func(ev types.Event) {
		select {
		case out <- Frame{Type: FrameEvent, Event: &ev}:
		default:
			if overflow.CompareAndSwap(false, true) {
				logger.Warn("Dropping slow consumer",
					zap.String("session_id", ev.SessionID),
					zap.Int("queued", opts.EventQueue),
				)
				cancel()
			}
		}
	})
	defer exec.Unsubscribe(sub)

	for {
		f, err := conn.Recv()
		if err != nil {
			if overflow.Load() {
				return ErrSlowConsumer
			}
			if errors.Is(err, ErrConnClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if opts.OnFrame != nil {
			opts.OnFrame("in", f)
		}

		if f.Type != FrameCall {
			logger.Debug("Ignoring frame", zap.String("type", string(f.Type)))
			continue
		}
		if f.ID == "" {
			logger.Warn("Call without id", zap.String("target", f.Target))
			continue
		}

		callCtx, callCancel := context.WithTimeout(ctx, opts.CallTimeout)
		result, err := exec.Execute(callCtx, f.Target, f.Payload)
		callCancel()
		if err != nil {
			logger.Debug("Call failed",
				zap.String("call_id", f.ID),
				zap.String("target", f.Target),
				zap.String("code", string(errs.CodeOf(err))),
				zap.Error(err),
			)
		}
		select {
		case out <- ResultFrame(f.ID, result, err):
		case <-ctx.Done():
		}
	}
}

// Loopback dials an Executor in the same process. Every dial starts a fresh
// Serve loop over an in-memory pipe.
type Loopback struct {
	exec Executor
	opts ServeOptions
}

// NewLoopback creates a loopback dialer
func NewLoopback(exec Executor, opts ServeOptions) *Loopback {
	return &Loopback{exec: exec, opts: opts}
}

// Dial connects to the executor
func (l *Loopback) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, server := Pipe()
	go func() {
		_ = Serve(context.Background(), server, l.exec, l.opts)
	}()
	return client, nil
}
