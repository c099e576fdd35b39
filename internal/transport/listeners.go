package transport

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
)

// EventHandler receives events for one session
type EventHandler func(types.Event)

// Registration is a session event listener. Its owner releases it exactly
// once; later calls are no-ops. Each registration delivers on its own
// goroutine in arrival order, so a handler may make transport calls.
type Registration struct {
	sessionID string
	id        id.SubscriptionID
	set       *listenerSet
	box       *mailbox
	once      sync.Once
}

// SessionID returns the session the registration listens to
func (r *Registration) SessionID() string {
	return r.sessionID
}

// Release stops delivery; events not yet handed to the handler are
// discarded. It reports whether this call removed the registration. It
// does not wait for a running handler, so a handler may release its own
// registration.
func (r *Registration) Release() bool {
	removed := false
	r.once.Do(func() {
		removed = r.set.remove(r.sessionID, r.id)
		r.box.stop()
	})
	return removed
}

// mailbox is an unbounded FIFO drained by one goroutine
type mailbox struct {
	mu      sync.Mutex
	pending []types.Event
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

func (b *mailbox) put(ev types.Event) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, ev)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *mailbox) take() []types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	evs := b.pending
	b.pending = nil
	return evs
}

func (b *mailbox) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopped {
		b.stopped = true
		b.pending = nil
		close(b.done)
	}
}

func (b *mailbox) run(deliver func(types.Event)) {
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}
		for _, ev := range b.take() {
			select {
			case <-b.done:
				return
			default:
			}
			deliver(ev)
		}
	}
}

type listener struct {
	id  id.SubscriptionID
	box *mailbox
}

// listenerSet routes events to the listeners of their session only
type listenerSet struct {
	mu     sync.RWMutex
	bySess map[string][]listener
	logger *zap.Logger
}

func newListenerSet(logger *zap.Logger) *listenerSet {
	return &listenerSet{bySess: make(map[string][]listener), logger: logger}
}

func (s *listenerSet) add(sessionID string, handler EventHandler) *Registration {
	l := listener{id: id.NewSubscriptionID(), box: newMailbox()}
	go l.box.run(func(ev types.Event) { s.call(handler, ev) })

	s.mu.Lock()
	s.bySess[sessionID] = append(s.bySess[sessionID], l)
	s.mu.Unlock()
	return &Registration{sessionID: sessionID, id: l.id, set: s, box: l.box}
}

func (s *listenerSet) remove(sessionID string, lid id.SubscriptionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls := s.bySess[sessionID]
	for i, l := range ls {
		if l.id == lid {
			ls = append(ls[:i:i], ls[i+1:]...)
			if len(ls) == 0 {
				delete(s.bySess, sessionID)
			} else {
				s.bySess[sessionID] = ls
			}
			return true
		}
	}
	return false
}

// dispatch queues ev for each listener of its session and returns at once
func (s *listenerSet) dispatch(ev types.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.bySess[ev.SessionID] {
		l.box.put(ev)
	}
}

func (s *listenerSet) call(handler EventHandler, ev types.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Event listener panicked",
				zap.String("session_id", ev.SessionID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	handler(ev)
}

func (s *listenerSet) count(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySess[sessionID])
}

func (s *listenerSet) total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ls := range s.bySess {
		n += len(ls)
	}
	return n
}
