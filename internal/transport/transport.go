package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/monitoring"
	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/resilience"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
)

// Options configures a Transport
type Options struct {
	// Debounce is the quiet period before observers see a state change.
	// Zero uses 250ms; negative settles on the next tick.
	Debounce time.Duration
	// Backoff schedules reconnection attempts
	Backoff resilience.Backoff
	// QueueSize bounds the pending-call queue
	QueueSize int
	// MaxMessageAge drops queued calls older than this
	MaxMessageAge time.Duration
	// CallTimeout is used when Invoke is given no timeout
	CallTimeout time.Duration
	// DialTimeout bounds a single connection attempt
	DialTimeout time.Duration
	// FailureThreshold is the run of failed calls that forces a reconnect
	FailureThreshold uint32
	Logger           *zap.Logger
	Metrics          *monitoring.Metrics
}

// DefaultOptions returns the transport defaults
func DefaultOptions() Options {
	return Options{
		Debounce:         250 * time.Millisecond,
		Backoff:          resilience.DefaultBackoff(),
		QueueSize:        256,
		MaxMessageAge:    30 * time.Second,
		CallTimeout:      10 * time.Second,
		DialTimeout:      10 * time.Second,
		FailureThreshold: 3,
	}
}

func (o *Options) setDefaults() {
	def := DefaultOptions()
	if o.Debounce == 0 {
		o.Debounce = def.Debounce
	}
	if o.Debounce < 0 {
		o.Debounce = 0
	}
	if o.QueueSize <= 0 {
		o.QueueSize = def.QueueSize
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = def.CallTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = def.DialTimeout
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = def.FailureThreshold
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type stopper interface {
	Stop() bool
}

// Transport carries session calls and events across the process boundary.
// It owns the connection state machine and the pending-call queue; nothing
// else mutates either.
type Transport struct {
	dialer    Dialer
	opts      Options
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	observer  *observer
	listeners *listenerSet
	detector  *resilience.Detector

	// after schedules reconnect attempts
	after func(d time.Duration, f func()) stopper

	mu        sync.Mutex
	state     ConnectionState
	history   transitionLog
	epoch     uint64
	conn      Conn
	connGen   uint64
	attempt   int
	timer     stopper
	queue     *queue
	inflight  map[id.CallID]*call
	replayGen uint64
}

// New creates a disconnected transport. Call Connect to start it.
func New(dialer Dialer, opts Options) *Transport {
	opts.setDefaults()
	logger := opts.Logger.Named("transport")

	t := &Transport{
		dialer:    dialer,
		opts:      opts,
		logger:    logger,
		metrics:   opts.Metrics,
		observer:  newObserver(StateDisconnected, opts.Debounce),
		listeners: newListenerSet(logger),
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		state:    StateDisconnected,
		queue:    newQueue(opts.QueueSize),
		inflight: make(map[id.CallID]*call),
	}
	t.detector = resilience.NewDetector("transport", resilience.Settings{
		ReadyToTrip: resilience.ConsecutiveFailures(opts.FailureThreshold),
		OnTrip: func(_ string, counts resilience.Counts) {
			t.dropConnection(fmt.Sprintf("%d consecutive call failures", counts.ConsecutiveFailures))
		},
	})
	t.metrics.SetTransportState(StateDisconnected.String(), stateNames())
	return t
}

// State returns the current state. Observers see changes only after the
// debounce window; use Subscribe for those.
func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Observed returns the last state delivered to subscribers
func (t *Transport) Observed() ConnectionState {
	return t.observer.current()
}

// Subscribe calls handler with the settled state now and after every
// settled change. All subscribers see the same sequence.
func (t *Transport) Subscribe(handler StateHandler) *Subscription {
	return t.observer.subscribe(handler)
}

// Subscribers returns the number of state subscriptions
func (t *Transport) Subscribers() int {
	return t.observer.count()
}

// Transitions returns recent raw transitions, oldest first
func (t *Transport) Transitions() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.list()
}

// Pending lists queued calls, oldest first
func (t *Transport) Pending() []PendingMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.snapshot()
}

// Listen registers handler for events of one session
func (t *Transport) Listen(sessionID string, handler EventHandler) *Registration {
	return t.listeners.add(sessionID, handler)
}

// Listeners returns the number of registrations for a session
func (t *Transport) Listeners(sessionID string) int {
	return t.listeners.count(sessionID)
}

// Connect starts connecting. It returns at once; calls made meanwhile are
// queued.
func (t *Transport) Connect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateDisconnected {
		return
	}
	t.setState(StateConnecting, "connect")
	t.beginDial()
}

// Retry forces an immediate connection attempt. From Error or Disconnected
// it moves to Connecting; while Reconnecting it skips the backoff timer.
func (t *Transport) Retry() {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateError, StateDisconnected:
		t.setState(StateConnecting, "manual retry")
		t.beginDial()
	case StateReconnecting:
		t.logger.Info("Reconnecting now", zap.Int("attempt", t.attempt))
		t.metrics.IncTransportReconnects()
		t.beginDial()
	}
}

// Close drops the connection and fails every pending call. The transport
// may be connected again later.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.state == StateDisconnected {
		t.mu.Unlock()
		return nil
	}

	t.stopTimer()
	t.epoch++
	conn := t.conn
	t.conn = nil
	t.replayGen = 0
	t.setState(StateDisconnected, "closed")
	pending := t.takeAll()
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	for _, c := range pending {
		c.finish(nil, errs.Transport("transport closed"))
	}
	t.observer.flush()
	return nil
}

// Invoke sends a call to target and waits for its result. While connected
// the call goes out at once; while (re)connecting it waits in the queue;
// in Error or Disconnected it fails immediately. Every call has its own
// timeout; zero uses the transport default.
func (t *Transport) Invoke(ctx context.Context, target string, payload map[string]interface{}, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = t.opts.CallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer := monitoring.NewTimer(t.metrics, target)
	c := newCall(target, payload)

	t.mu.Lock()
	state := t.state
	direct := state == StateConnected && t.replayGen == 0 && t.queue.len() == 0
	switch {
	case direct:
		t.inflight[c.ID] = c
		conn := t.conn
		t.mu.Unlock()
		t.send(ctx, conn, c)
	case state == StateConnected, state == StateConnecting, state == StateReconnecting:
		err := t.enqueue(c)
		t.mu.Unlock()
		if err != nil {
			timer.Stop("dropped")
			return nil, err
		}
	default:
		t.mu.Unlock()
		timer.Stop("unavailable")
		return nil, errs.Transport("transport %s: call %s not sent", state, target)
	}

	var r result
	select {
	case r = <-c.done:
	case <-ctx.Done():
		t.abandon(c, ctx.Err())
		r = <-c.done
	}
	timer.Stop(callStatus(r.err))
	return r.data, r.err
}

func callStatus(err error) string {
	switch errs.CodeOf(err) {
	case errs.CodeInternal:
		if err == nil {
			return "ok"
		}
		return "error"
	case errs.CodeTimeout:
		return "timeout"
	case errs.CodeTransport:
		return "transport"
	default:
		return "error"
	}
}

// send writes a call frame; the result arrives on the read loop
func (t *Transport) send(ctx context.Context, conn Conn, c *call) {
	err := conn.Send(ctx, Frame{Type: FrameCall, ID: string(c.ID), Target: c.Target, Payload: c.Payload})
	if err == nil {
		return
	}

	t.mu.Lock()
	_, ok := t.inflight[c.ID]
	delete(t.inflight, c.ID)
	t.mu.Unlock()
	if ok {
		c.finish(nil, errs.Wrap(errs.CodeTransport, err, "send %s", c.Target))
	}
	t.detector.Failure()
}

// abandon removes a call whose caller stopped waiting
func (t *Transport) abandon(c *call, cause error) {
	t.mu.Lock()
	t.queue.remove(c.ID)
	_, sent := t.inflight[c.ID]
	delete(t.inflight, c.ID)
	t.updateQueueDepth()
	t.mu.Unlock()

	timedOut := errors.Is(cause, context.DeadlineExceeded)
	if timedOut {
		c.finish(nil, errs.Wrap(errs.CodeTimeout, cause, "call %s timed out", c.Target))
	} else {
		c.finish(nil, errs.Wrap(errs.CodeTransport, cause, "call %s cancelled", c.Target))
	}
	if sent && timedOut {
		t.detector.Failure()
	}
}

// enqueue appends a call to the pending queue. Caller holds t.mu.
func (t *Transport) enqueue(c *call) error {
	t.dropExpired()
	if !t.queue.push(c) {
		t.metrics.IncTransportDropped("overflow")
		t.logger.Warn("Pending queue full", zap.String("target", c.Target), zap.Int("size", t.opts.QueueSize))
		return errs.Transport("pending queue full (%d calls)", t.opts.QueueSize)
	}
	t.updateQueueDepth()
	return nil
}

// dropExpired fails queued calls past the maximum age. Caller holds t.mu.
func (t *Transport) dropExpired() {
	if t.opts.MaxMessageAge <= 0 {
		return
	}
	expired := t.queue.expire(time.Now().Add(-t.opts.MaxMessageAge))
	for _, c := range expired {
		t.metrics.IncTransportDropped("expired")
		c.finish(nil, errs.Transport("queued call %s expired after %s", c.Target, t.opts.MaxMessageAge))
	}
	if len(expired) > 0 {
		t.logger.Warn("Dropped expired calls", zap.Int("count", len(expired)))
		t.updateQueueDepth()
	}
}

// takeAll empties the queue and the in-flight set. Caller holds t.mu.
func (t *Transport) takeAll() []*call {
	pending := t.queue.drain()
	for cid, c := range t.inflight {
		pending = append(pending, c)
		delete(t.inflight, cid)
	}
	t.updateQueueDepth()
	return pending
}

func (t *Transport) updateQueueDepth() {
	t.metrics.SetTransportQueueDepth(t.queue.len())
}

// setState applies a raw transition. Caller holds t.mu.
func (t *Transport) setState(to ConnectionState, reason string) {
	from := t.state
	if !CanTransition(from, to) {
		t.logger.DPanic("Illegal state transition",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.String("reason", reason),
		)
		return
	}

	t.state = to
	t.history.record(Transition{From: from, To: to, Timestamp: time.Now(), Reason: reason})
	t.metrics.SetTransportState(to.String(), stateNames())
	t.observer.set(to)

	t.logger.Info("Connection state changed",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("reason", reason),
	)
}

func (t *Transport) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// beginDial starts a connection attempt. Caller holds t.mu.
func (t *Transport) beginDial() {
	t.stopTimer()
	t.epoch++
	go t.dial(t.epoch)
}

func (t *Transport) dial(epoch uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.DialTimeout)
	conn, err := t.dialer.Dial(ctx)
	cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	if epoch != t.epoch {
		// Closed or superseded while dialing
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		t.dialFailed(err)
		return
	}
	t.connected(conn)
}

// dialFailed advances the reconnect schedule. Caller holds t.mu.
func (t *Transport) dialFailed(err error) {
	t.logger.Warn("Connection attempt failed",
		zap.Stringer("state", t.state),
		zap.Int("attempt", t.attempt),
		zap.Error(err),
	)

	switch t.state {
	case StateConnecting:
		if t.opts.Backoff.Exhausted(1) {
			t.fail("connect failed: " + err.Error())
			return
		}
		t.reconnect("connect failed: " + err.Error())
	case StateReconnecting:
		t.attempt++
		if t.opts.Backoff.Exhausted(t.attempt) {
			t.fail(fmt.Sprintf("gave up after %d attempts: %v", t.attempt-1, err))
			return
		}
		t.schedule()
	}
}

// reconnect enters Reconnecting and schedules the first attempt. Caller
// holds t.mu.
func (t *Transport) reconnect(reason string) {
	t.setState(StateReconnecting, reason)
	t.attempt = 1
	t.dropExpired()
	t.schedule()
}

// schedule arms the backoff timer for t.attempt. Caller holds t.mu.
func (t *Transport) schedule() {
	t.stopTimer()
	t.epoch++
	epoch := t.epoch
	delay := t.opts.Backoff.Delay(t.attempt)

	t.logger.Info("Reconnect scheduled",
		zap.Int("attempt", t.attempt),
		zap.Int("max_attempts", t.opts.Backoff.MaxAttempts),
		zap.Duration("delay", delay),
	)

	t.timer = t.after(delay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if epoch != t.epoch || t.state != StateReconnecting {
			return
		}
		t.timer = nil
		t.metrics.IncTransportReconnects()
		t.beginDial()
	})
}

// fail enters Error and fails everything queued. Caller holds t.mu.
func (t *Transport) fail(reason string) {
	t.stopTimer()
	t.epoch++
	t.setState(StateError, reason)

	for _, c := range t.queue.drain() {
		t.metrics.IncTransportDropped("error")
		c.finish(nil, errs.Transport("transport unavailable: %s", reason))
	}
	t.updateQueueDepth()
}

// connected adopts a new connection and replays the queue. Caller holds
// t.mu.
func (t *Transport) connected(conn Conn) {
	t.setState(StateConnected, "connected")
	t.conn = conn
	t.connGen++
	gen := t.connGen
	t.attempt = 0
	t.detector.Reset()

	go t.read(conn, gen)

	if t.queue.len() > 0 {
		t.replayGen = gen
		go t.replay(gen)
	}
}

// read dispatches results and events until the connection fails
func (t *Transport) read(conn Conn, gen uint64) {
	for {
		f, err := conn.Recv()
		if err != nil {
			t.lost(gen, err)
			return
		}

		switch f.Type {
		case FrameResult:
			t.complete(f)
		case FrameEvent:
			if f.Event != nil {
				t.listeners.dispatch(*f.Event)
			}
		default:
			t.logger.Debug("Ignoring frame", zap.String("type", string(f.Type)))
		}
	}
}

func (t *Transport) complete(f Frame) {
	t.mu.Lock()
	c, ok := t.inflight[id.CallID(f.ID)]
	delete(t.inflight, id.CallID(f.ID))
	t.mu.Unlock()

	if !ok {
		// Abandoned by its caller
		return
	}
	t.detector.Success()

	if f.Error != nil {
		c.finish(nil, errs.FromWire(f.Error.Code, f.Error.Message))
		return
	}
	c.finish(f.Data, nil)
}

// replay sends queued calls in order on connection gen
func (t *Transport) replay(gen uint64) {
	for {
		t.mu.Lock()
		if t.replayGen != gen || t.connGen != gen || t.state != StateConnected {
			if t.replayGen == gen {
				t.replayGen = 0
			}
			t.mu.Unlock()
			return
		}
		t.dropExpired()
		c, ok := t.queue.pop()
		if !ok {
			t.replayGen = 0
			t.mu.Unlock()
			return
		}
		t.inflight[c.ID] = c
		conn := t.conn
		t.updateQueueDepth()
		t.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), t.opts.CallTimeout)
		t.send(ctx, conn, c)
		cancel()
	}
}

// lost handles the end of connection gen
func (t *Transport) lost(gen uint64, cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.connGen || t.conn == nil {
		return
	}
	t.conn.Close()
	t.conn = nil
	t.replayGen = 0

	for cid, c := range t.inflight {
		delete(t.inflight, cid)
		c.finish(nil, errs.Transport("connection lost: %v", cause))
	}
	if t.state == StateConnected {
		t.reconnect("connection lost: " + cause.Error())
	}
}

// dropConnection abandons a connection that still looks open but keeps
// failing calls
func (t *Transport) dropConnection(reason string) {
	t.mu.Lock()
	gen := t.connGen
	t.mu.Unlock()

	t.logger.Warn("Dropping unhealthy connection", zap.String("reason", reason))
	t.lost(gen, errors.New(reason))
}
