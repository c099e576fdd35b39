package terminal

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
)

// Handler receives session events
type Handler func(types.Event)

const allSessions = "*"

type subscription struct {
	id      id.SubscriptionID
	handler Handler
}

// Bus fans session events out to subscribers. Handlers run synchronously
// on the publishing goroutine, so events for one stream arrive in order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription // session id or "*" -> subscriptions
	logger *zap.Logger
}

// NewBus creates an empty bus
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{subs: make(map[string][]subscription), logger: logger}
}

// Subscribe registers a handler for one session's events
func (b *Bus) Subscribe(sessionID string, handler Handler) id.SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscription{id: id.NewSubscriptionID(), handler: handler}
	b.subs[sessionID] = append(b.subs[sessionID], sub)
	return sub.id
}

// SubscribeAll registers a handler for every session's events
func (b *Bus) SubscribeAll(handler Handler) id.SubscriptionID {
	return b.Subscribe(allSessions, handler)
}

// Unsubscribe removes a subscription. Returns false if it was not found.
func (b *Bus) Unsubscribe(subID id.SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subs {
		for i, sub := range subs {
			if sub.id == subID {
				b.subs[key] = append(subs[:i:i], subs[i+1:]...)
				if len(b.subs[key]) == 0 {
					delete(b.subs, key)
				}
				return true
			}
		}
	}
	return false
}

// Publish delivers ev to its session's subscribers, then to wildcard ones
func (b *Bus) Publish(ev types.Event) {
	b.mu.RLock()
	specific := append([]subscription(nil), b.subs[ev.SessionID]...)
	wildcard := append([]subscription(nil), b.subs[allSessions]...)
	b.mu.RUnlock()

	for _, sub := range specific {
		b.safeCall(sub.handler, ev)
	}
	for _, sub := range wildcard {
		b.safeCall(sub.handler, ev)
	}
}

// drop removes every subscription for a finished session
func (b *Bus) drop(sessionID string) {
	b.mu.Lock()
	delete(b.subs, sessionID)
	b.mu.Unlock()
}

func (b *Bus) safeCall(handler Handler, ev types.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("session_id", ev.SessionID),
				zap.String("kind", string(ev.Kind)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	handler(ev)
}
