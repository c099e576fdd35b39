package transport

import (
	"sync"
	"time"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
)

// StateHandler receives settled state changes
type StateHandler func(ConnectionState)

// Subscription is a registered StateHandler. Release it exactly once when
// the subscriber goes away; later calls are no-ops.
type Subscription struct {
	id   id.SubscriptionID
	obs  *observer
	once sync.Once
}

// Unsubscribe stops delivery. It reports whether this call removed the
// subscription.
func (s *Subscription) Unsubscribe() bool {
	removed := false
	s.once.Do(func() {
		removed = s.obs.remove(s.id)
	})
	return removed
}

// observer debounces raw state changes. When the raw state has been quiet
// for the window, subscribers receive the legal walk from the last state
// they saw to the settled one, so collapsed flapping never shows an illegal
// jump.
type observer struct {
	window time.Duration

	mu       sync.Mutex
	raw      ConnectionState
	timer    *time.Timer
	subs     map[id.SubscriptionID]StateHandler
	order    []id.SubscriptionID
	observed ConnectionState

	// deliverMu serializes delivery so every subscriber sees the same
	// sequence
	deliverMu sync.Mutex
}

func newObserver(initial ConnectionState, window time.Duration) *observer {
	return &observer{
		window:   window,
		raw:      initial,
		observed: initial,
		subs:     make(map[id.SubscriptionID]StateHandler),
	}
}

// set records a raw state and re-arms the settle timer
func (o *observer) set(s ConnectionState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.raw = s
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.window, o.settle)
}

// flush delivers the current raw state now
func (o *observer) flush() {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.mu.Unlock()
	o.settle()
}

func (o *observer) settle() {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	from, to := o.observed, o.raw
	o.observed = to
	o.mu.Unlock()

	for _, s := range Path(from, to) {
		for _, handler := range o.handlers() {
			handler(s)
		}
	}
}

func (o *observer) handlers() []StateHandler {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]StateHandler, 0, len(o.order))
	for _, sid := range o.order {
		out = append(out, o.subs[sid])
	}
	return out
}

// current returns the last settled state
func (o *observer) current() ConnectionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.observed
}

// subscribe registers handler and calls it with the settled state before
// any later change is delivered. Handlers must not subscribe from inside a
// callback.
func (o *observer) subscribe(handler StateHandler) *Subscription {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	sub := &Subscription{id: id.NewSubscriptionID(), obs: o}
	o.subs[sub.id] = handler
	o.order = append(o.order, sub.id)
	current := o.observed
	o.mu.Unlock()

	handler(current)
	return sub
}

func (o *observer) remove(sid id.SubscriptionID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.subs[sid]; !ok {
		return false
	}
	delete(o.subs, sid)
	for i, x := range o.order {
		if x == sid {
			o.order = append(o.order[:i:i], o.order[i+1:]...)
			break
		}
	}
	return true
}

func (o *observer) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}
