package transport

import (
	"sync"
	"time"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
)

// PendingMessage is a call held while the transport is not connected
type PendingMessage struct {
	ID         id.CallID              `json:"id"`
	Target     string                 `json:"target"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
}

type result struct {
	data []byte
	err  error
}

// call is an Invoke in flight: queued, sent, or finished
type call struct {
	PendingMessage
	done chan result
	once sync.Once
}

func newCall(target string, payload map[string]interface{}) *call {
	return &call{
		PendingMessage: PendingMessage{
			ID:         id.NewCallID(),
			Target:     target,
			Payload:    payload,
			EnqueuedAt: time.Now(),
		},
		done: make(chan result, 1),
	}
}

// finish delivers the outcome once; later outcomes are dropped
func (c *call) finish(data []byte, err error) {
	c.once.Do(func() {
		c.done <- result{data: data, err: err}
	})
}

// queue is the bounded FIFO of pending calls. Not safe for concurrent use;
// the transport guards it.
type queue struct {
	max   int
	items []*call
}

func newQueue(max int) *queue {
	return &queue{max: max}
}

func (q *queue) len() int {
	return len(q.items)
}

// push appends c, or reports false when the queue is full
func (q *queue) push(c *call) bool {
	if len(q.items) >= q.max {
		return false
	}
	q.items = append(q.items, c)
	return true
}

// pop removes the oldest call
func (q *queue) pop() (*call, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	c := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return c, true
}

// remove drops a call by id
func (q *queue) remove(callID id.CallID) bool {
	for i, c := range q.items {
		if c.ID == callID {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// expire removes calls enqueued before cutoff, oldest first
func (q *queue) expire(cutoff time.Time) []*call {
	n := 0
	for n < len(q.items) && q.items[n].EnqueuedAt.Before(cutoff) {
		n++
	}
	if n == 0 {
		return nil
	}
	expired := append([]*call(nil), q.items[:n]...)
	q.items = append([]*call(nil), q.items[n:]...)
	return expired
}

// drain empties the queue
func (q *queue) drain() []*call {
	items := q.items
	q.items = nil
	return items
}

// snapshot lists the pending messages, oldest first
func (q *queue) snapshot() []PendingMessage {
	out := make([]PendingMessage, len(q.items))
	for i, c := range q.items {
		out[i] = c.PendingMessage
	}
	return out
}
