package terminal

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
)

// History reconstructs submitted command lines from raw input bytes and
// keeps the most recent entries
type History struct {
	mu       sync.Mutex
	limit    int
	entries  []types.HistoryEntry
	line     []byte
	escape   int // 0 none, 1 after ESC, 2 inside CSI
	total    uint64
	finished bool
}

// NewHistory creates a history bounded to limit entries
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 500
	}
	return &History{limit: limit}
}

// Input feeds typed bytes and returns how many commands were submitted
func (h *History) Input(data []byte, now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	submitted := 0
	for _, c := range data {
		switch h.escape {
		case 1:
			if c == '[' || c == 'O' {
				h.escape = 2
			} else {
				h.escape = 0
			}
			continue
		case 2:
			if c >= 0x40 && c <= 0x7e {
				h.escape = 0
			}
			continue
		}

		switch c {
		case '\r', '\n':
			if h.submit(now) {
				submitted++
			}
		case 0x1b:
			h.escape = 1
		case 0x7f, '\b':
			h.backspace()
		case 0x03, 0x15:
			h.line = h.line[:0]
		default:
			if c >= 0x20 || c == '\t' {
				h.line = append(h.line, c)
			}
		}
	}
	return submitted
}

func (h *History) submit(now time.Time) bool {
	cmd := strings.TrimSpace(string(h.line))
	h.line = h.line[:0]
	if cmd == "" {
		return false
	}

	if n := len(h.entries); n > 0 && h.entries[n-1].Duration == 0 {
		h.entries[n-1].Duration = now.Sub(h.entries[n-1].Timestamp)
	}
	h.entries = append(h.entries, types.HistoryEntry{Command: cmd, Timestamp: now})
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
	h.total++
	return true
}

func (h *History) backspace() {
	if len(h.line) == 0 {
		return
	}
	_, size := utf8.DecodeLastRune(h.line)
	h.line = h.line[:len(h.line)-size]
}

// Finish closes the last entry with the shell's exit code
func (h *History) Finish(exitCode int, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.finished {
		return
	}
	h.finished = true
	if n := len(h.entries); n > 0 {
		last := &h.entries[n-1]
		code := exitCode
		last.ExitCode = &code
		if last.Duration == 0 {
			last.Duration = now.Sub(last.Timestamp)
		}
	}
}

// Entries returns a copy of the retained entries, oldest first
func (h *History) Entries() []types.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]types.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Total returns the number of commands ever submitted
func (h *History) Total() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}
