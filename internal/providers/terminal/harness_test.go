package terminal_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sholden3/aiorchestration-sub008/internal/proctree"
	"github.com/sholden3/aiorchestration-sub008/internal/providers/terminal"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/shell"
	"github.com/sholden3/aiorchestration-sub008/internal/testutil"
)

// staticShells resolves every hint to one descriptor, except "missing"
type staticShells struct {
	desc shell.Descriptor
}

func newStaticShells(path string, nativePTY bool) staticShells {
	kind, _ := shell.KindFromPath(path)
	return staticShells{desc: shell.Descriptor{
		Kind:         kind,
		Role:         shell.RoleBaseline,
		Path:         path,
		Available:    true,
		Capabilities: shell.Capabilities{NativePTY: nativePTY, Resize: nativePTY},
	}}
}

func (s staticShells) Lookup(hint string) (shell.Descriptor, error) {
	if hint == "missing" {
		return shell.Descriptor{}, errs.New(errs.CodeShellNotAvailable, "shell not available: %s", hint)
	}
	return s.desc, nil
}

func (s staticShells) Available() []shell.Descriptor { return []shell.Descriptor{s.desc} }

func (s staticShells) Optimal() shell.Descriptor { return s.desc }

// fakeHost backs a registry with fake processes and a mocked OS
type fakeHost struct {
	t       *testing.T
	os      *testutil.MockOS
	procs   *proctree.Manager
	manager *terminal.Manager

	mu       sync.Mutex
	spawned  map[int]*testutil.FakeProcess
	order    []*testutil.FakeProcess
	vanished map[int]bool
	stubborn bool
}

func newFakeHost(t *testing.T, opts terminal.Options) *fakeHost {
	t.Helper()

	h := &fakeHost{
		t:        t,
		os:       &testutil.MockOS{},
		spawned:  make(map[int]*testutil.FakeProcess),
		vanished: make(map[int]bool),
	}
	h.os.On("Alive", mock.Anything).Return(func(pid int) bool { return h.alive(pid) })
	h.os.On("Lookup", mock.Anything).Return(proctree.ProcessInfo{}, false)
	h.os.On("List").Return(func() []proctree.ProcessInfo { return h.list() }, nil)
	h.os.On("Signal", mock.Anything, mock.Anything).Return(func(pid int, force bool) error {
		h.signal(pid, force)
		return nil
	})

	h.procs = proctree.New(h.os, proctree.Options{Grace: 100 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	t.Cleanup(h.procs.Close)

	if opts.DefaultDir == "" {
		opts.DefaultDir = t.TempDir()
	}
	if opts.MonitorInterval == 0 {
		opts.MonitorInterval = 10 * time.Millisecond
	}

	spawner := terminal.SpawnerFunc(func(req terminal.SpawnRequest) (terminal.Process, error) {
		p := testutil.NewFakeProcess()
		_ = p.Resize(req.Cols, req.Rows)
		h.mu.Lock()
		h.spawned[p.PID()] = p
		h.order = append(h.order, p)
		h.mu.Unlock()
		return p, nil
	})
	h.manager = terminal.NewManager(newStaticShells("/bin/sh", true), h.procs, spawner, opts)
	return h
}

func (h *fakeHost) alive(pid int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.spawned[pid]
	return ok && !h.vanished[pid] && p.Alive()
}

func (h *fakeHost) list() []proctree.ProcessInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []proctree.ProcessInfo
	for pid, p := range h.spawned {
		if p.Alive() && !h.vanished[pid] {
			out = append(out, proctree.ProcessInfo{PID: pid, Name: "sh"})
		}
	}
	return out
}

func (h *fakeHost) signal(pid int, force bool) {
	h.mu.Lock()
	p := h.spawned[pid]
	stubborn := h.stubborn
	h.mu.Unlock()
	if p == nil {
		return
	}
	switch {
	case force:
		p.Exit(137, "killed")
	case !stubborn:
		p.Exit(143, "terminated")
	}
}

// vanish makes the OS report pid gone without Wait ever returning
func (h *fakeHost) vanish(pid int) {
	h.mu.Lock()
	h.vanished[pid] = true
	h.mu.Unlock()
}

func (h *fakeHost) proc(i int) *testutil.FakeProcess {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Less(h.t, i, len(h.order))
	return h.order[i]
}

func (h *fakeHost) spawnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

// recorder collects events delivered to a subscription
type recorder struct {
	mu     sync.Mutex
	events []types.Event
	exited chan types.Event
}

func newRecorder() *recorder {
	return &recorder{exited: make(chan types.Event, 1)}
}

func (r *recorder) handle(ev types.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if ev.Kind == types.EventExit {
		r.exited <- ev
	}
}

func (r *recorder) output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []byte
	for _, ev := range r.events {
		if ev.Kind == types.EventOutput {
			out = append(out, ev.Data...)
		}
	}
	return string(out)
}

func (r *recorder) snapshot() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

func (r *recorder) waitExit(t *testing.T, timeout time.Duration) types.Event {
	t.Helper()
	select {
	case ev := <-r.exited:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for exit event")
		return types.Event{}
	}
}
