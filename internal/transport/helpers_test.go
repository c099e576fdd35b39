package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
)

var errDial = errors.New("connection refused")

type executed struct {
	target  string
	payload map[string]interface{}
}

// recordingExecutor answers every call with its payload and records the
// order calls arrive in
type recordingExecutor struct {
	mu    sync.Mutex
	calls []executed
	subs  map[id.SubscriptionID]func(types.Event)
	block map[string]chan struct{}
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{
		subs:  make(map[id.SubscriptionID]func(types.Event)),
		block: make(map[string]chan struct{}),
	}
}

func (e *recordingExecutor) Execute(ctx context.Context, target string, params map[string]interface{}) (interface{}, error) {
	e.mu.Lock()
	e.calls = append(e.calls, executed{target: target, payload: params})
	gate := e.block[target]
	e.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if target == "fail" {
		return nil, errs.SessionNotFound("nope")
	}
	return params, nil
}

func (e *recordingExecutor) SubscribeAll(handler func(types.Event)) id.SubscriptionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	sid := id.NewSubscriptionID()
	e.subs[sid] = handler
	return sid
}

func (e *recordingExecutor) Unsubscribe(sid id.SubscriptionID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.subs[sid]
	delete(e.subs, sid)
	return ok
}

func (e *recordingExecutor) emit(ev types.Event) {
	e.mu.Lock()
	handlers := make([]func(types.Event), 0, len(e.subs))
	for _, h := range e.subs {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (e *recordingExecutor) hold(target string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	gate := make(chan struct{})
	e.block[target] = gate
	return gate
}

func (e *recordingExecutor) subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

func (e *recordingExecutor) targets() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	for i, c := range e.calls {
		out[i] = c.target
	}
	return out
}

// scriptDialer connects to an executor over pipes and fails on demand
type scriptDialer struct {
	exec *recordingExecutor

	mu       sync.Mutex
	failing  bool
	failNext int
	gate     chan struct{}
	dials    int
	conns    []Conn
}

func newScriptDialer(exec *recordingExecutor) *scriptDialer {
	return &scriptDialer{exec: exec}
}

func (d *scriptDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing || d.failNext > 0 {
		if d.failNext > 0 {
			d.failNext--
		}
		return nil, errDial
	}

	client, server := Pipe()
	go Serve(context.Background(), server, d.exec, ServeOptions{})
	d.conns = append(d.conns, client)
	return client, nil
}

func (d *scriptDialer) setFailing(v bool) {
	d.mu.Lock()
	d.failing = v
	d.mu.Unlock()
}

func (d *scriptDialer) failNextDials(n int) {
	d.mu.Lock()
	d.failNext = n
	d.mu.Unlock()
}

func (d *scriptDialer) holdDials() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
	return d.gate
}

func (d *scriptDialer) releaseDials() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

// drop kills every open connection, as a host restart would
func (d *scriptDialer) drop() {
	d.mu.Lock()
	conns := d.conns
	d.conns = nil
	d.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func (d *scriptDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// delayRecorder fires reconnect timers immediately and keeps the delays
// they asked for
type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

type noopStopper struct{}

func (noopStopper) Stop() bool { return true }

func (r *delayRecorder) after(d time.Duration, f func()) stopper {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	go f()
	return noopStopper{}
}

func (r *delayRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.Debounce = 5 * time.Millisecond
	opts.Backoff.Base = time.Millisecond
	opts.Backoff.Max = 4 * time.Millisecond
	opts.Backoff.Jitter = 0
	opts.CallTimeout = 2 * time.Second
	return opts
}

func newConnected(t *testing.T, d Dialer, opts Options) *Transport {
	t.Helper()
	tr := New(d, opts)
	t.Cleanup(func() { tr.Close() })
	tr.Connect()
	waitState(t, tr, StateConnected)
	return tr
}

func waitState(t *testing.T, tr *Transport, want ConnectionState) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if tr.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("transport state = %s, want %s", tr.State(), want)
}

// stateRecorder collects observed states
type stateRecorder struct {
	mu     sync.Mutex
	states []ConnectionState
}

func (r *stateRecorder) record(s ConnectionState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) seen() []ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConnectionState(nil), r.states...)
}
