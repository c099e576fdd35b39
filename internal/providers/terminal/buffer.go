package terminal

import "sync"

// Buffer is a thread-safe circular buffer for terminal output. When full,
// the oldest bytes are overwritten.
type Buffer struct {
	data []byte
	head int
	n    int
	mu   sync.Mutex
}

// NewBuffer creates a buffer holding at most size bytes
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 1
	}
	return &Buffer{data: make([]byte, size)}
}

// Write appends p, dropping the oldest bytes on overflow
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.data)
	written := len(p)
	if len(p) >= size {
		copy(b.data, p[len(p)-size:])
		b.head = 0
		b.n = size
		return written, nil
	}

	tail := (b.head + b.n) % size
	first := copy(b.data[tail:], p)
	copy(b.data, p[first:])

	b.n += len(p)
	if b.n > size {
		b.head = (b.head + b.n - size) % size
		b.n = size
	}
	return written, nil
}

// ReadAll returns and drains the buffered bytes
func (b *Buffer) ReadAll() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.copyLocked()
	b.head, b.n = 0, 0
	return out
}

// Snapshot returns the buffered bytes without draining them
func (b *Buffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyLocked()
}

// Reset discards the buffered bytes
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.head, b.n = 0, 0
	b.mu.Unlock()
}

// Len returns the number of buffered bytes
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func (b *Buffer) copyLocked() []byte {
	out := make([]byte, b.n)
	end := b.head + b.n
	if end <= len(b.data) {
		copy(out, b.data[b.head:end])
		return out
	}
	first := copy(out, b.data[b.head:])
	copy(out[first:], b.data[:end-len(b.data)])
	return out
}
