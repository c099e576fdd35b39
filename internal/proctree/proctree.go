package proctree

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
)

// ProcessInfo is a point-in-time snapshot of one process
type ProcessInfo struct {
	PID         int    `json:"pid"`
	PPID        int    `json:"ppid,omitempty"`
	Name        string `json:"name"`
	MemoryBytes uint64 `json:"memory_bytes,omitempty"`
	Cmdline     string `json:"cmdline,omitempty"`
}

// Node is a process and its children. Trees are built per request and
// owned by the caller.
type Node struct {
	ProcessInfo
	Children []*Node `json:"children,omitempty"`
}

// Walk visits the tree depth-first, children before their parent
func (n *Node) Walk(fn func(*Node)) {
	for _, c := range n.Children {
		c.Walk(fn)
	}
	fn(n)
}

// PIDs returns the tree's pids, deepest first and the root last
func (n *Node) PIDs() []int {
	var pids []int
	n.Walk(func(node *Node) {
		pids = append(pids, node.PID)
	})
	return pids
}

// OS is the platform process backend. Lookup and Alive never report
// zombies.
type OS interface {
	List() ([]ProcessInfo, error)
	Lookup(pid int) (ProcessInfo, bool)
	Alive(pid int) bool
	Signal(pid int, force bool) error
}

// TreeKiller is implemented by backends with a native recursive kill
type TreeKiller interface {
	KillTree(pid int, force bool) error
}

// TerminateStatus is the outcome of Terminate
type TerminateStatus string

const (
	Terminated        TerminateStatus = "terminated"
	AlreadyTerminated TerminateStatus = "already_terminated"
	Failed            TerminateStatus = "failed"
)

// TerminateResult reports what Terminate did
type TerminateResult struct {
	Status TerminateStatus
	// Signalled lists the pids signalled, in order
	Signalled []int
	// Remaining lists pids still running when the grace period ended
	Remaining []int
	Err       error
}

// Options configures a Manager
type Options struct {
	// Grace is how long Terminate waits for the tree to exit
	Grace time.Duration
	// PollInterval is the liveness poll used while waiting
	PollInterval time.Duration
	Logger       *zap.Logger
}

// MonitorHandle identifies a running monitor
type MonitorHandle struct {
	ID  id.MonitorID
	PID int
}

type monitor struct {
	stop chan struct{}
}

// Manager inspects and controls process trees
type Manager struct {
	os     OS
	grace  time.Duration
	poll   time.Duration
	logger *zap.Logger

	cacheMu sync.RWMutex
	cache   map[int]ProcessInfo

	monMu    sync.Mutex
	monitors map[id.MonitorID]*monitor
}

// New creates a manager over a backend
func New(backend OS, opts Options) *Manager {
	if opts.Grace <= 0 {
		opts.Grace = 2 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 25 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		os:       backend,
		grace:    opts.Grace,
		poll:     opts.PollInterval,
		logger:   opts.Logger.Named("proctree"),
		cache:    make(map[int]ProcessInfo),
		monitors: make(map[id.MonitorID]*monitor),
	}
}

// NewDefault creates a manager over the current platform's backend
func NewDefault(opts Options) (*Manager, error) {
	backend, err := NewSystemOS()
	if err != nil {
		return nil, err
	}
	return New(backend, opts), nil
}

// Info returns a process snapshot, served from cache while the process
// lives. Dead pids are not found.
func (m *Manager) Info(pid int) (ProcessInfo, bool) {
	if pid <= 0 {
		return ProcessInfo{}, false
	}

	m.cacheMu.RLock()
	info, ok := m.cache[pid]
	m.cacheMu.RUnlock()

	if ok {
		if m.os.Alive(pid) {
			return info, true
		}
		m.Invalidate(pid)
		return ProcessInfo{}, false
	}

	info, ok = m.os.Lookup(pid)
	if !ok {
		return ProcessInfo{}, false
	}
	m.cacheMu.Lock()
	m.cache[pid] = info
	m.cacheMu.Unlock()
	return info, true
}

// Invalidate drops a cached snapshot
func (m *Manager) Invalidate(pid int) {
	m.cacheMu.Lock()
	delete(m.cache, pid)
	m.cacheMu.Unlock()
}

// InvalidateAll drops every cached snapshot
func (m *Manager) InvalidateAll() {
	m.cacheMu.Lock()
	m.cache = make(map[int]ProcessInfo)
	m.cacheMu.Unlock()
}

// IsRunning reports whether pid is alive and not a zombie
func (m *Manager) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return m.os.Alive(pid)
}

// Children returns the direct children of pid
func (m *Manager) Children(pid int) []ProcessInfo {
	procs, err := m.os.List()
	if err != nil {
		m.logger.Debug("Process listing failed", zap.Error(err))
		return nil
	}
	var out []ProcessInfo
	for _, p := range procs {
		if p.PPID == pid && p.PID != pid {
			out = append(out, p)
		}
	}
	return out
}

// Tree returns pid and all of its descendants
func (m *Manager) Tree(pid int) (*Node, bool) {
	procs, err := m.os.List()
	if err != nil {
		m.logger.Debug("Process listing failed", zap.Error(err))
		return nil, false
	}

	byPID := make(map[int]ProcessInfo, len(procs))
	byParent := make(map[int][]ProcessInfo)
	for _, p := range procs {
		byPID[p.PID] = p
		if p.PID != p.PPID {
			byParent[p.PPID] = append(byParent[p.PPID], p)
		}
	}

	root, ok := byPID[pid]
	if !ok {
		return nil, false
	}

	visited := make(map[int]bool)
	var build func(info ProcessInfo) *Node
	build = func(info ProcessInfo) *Node {
		visited[info.PID] = true
		node := &Node{ProcessInfo: info}
		for _, child := range byParent[info.PID] {
			if visited[child.PID] {
				continue
			}
			node.Children = append(node.Children, build(child))
		}
		return node
	}
	return build(root), true
}

// Terminate signals pid's tree, deepest first, and waits up to the grace
// period for every process in it to stop. force selects the uncatchable
// signal.
func (m *Manager) Terminate(pid int, force bool) TerminateResult {
	if !m.IsRunning(pid) {
		return TerminateResult{Status: AlreadyTerminated}
	}

	pids := []int{pid}
	if tree, ok := m.Tree(pid); ok {
		pids = tree.PIDs()
	}

	var result TerminateResult
	if killer, ok := m.os.(TreeKiller); ok {
		if err := killer.KillTree(pid, force); err != nil {
			result.Err = err
		}
		result.Signalled = pids
	} else {
		for _, p := range pids {
			if err := m.os.Signal(p, force); err != nil {
				m.logger.Debug("Signal failed", zap.Int("pid", p), zap.Error(err))
				if p == pid {
					result.Err = err
				}
				continue
			}
			result.Signalled = append(result.Signalled, p)
		}
	}

	for _, p := range pids {
		m.Invalidate(p)
	}

	result.Remaining = m.waitGone(pids, m.grace)
	if len(result.Remaining) == 0 {
		result.Status = Terminated
		result.Err = nil
		return result
	}

	result.Status = Failed
	m.logger.Debug("Process tree survived termination",
		zap.Int("pid", pid),
		zap.Bool("force", force),
		zap.Ints("remaining", result.Remaining),
	)
	return result
}

// waitGone polls until none of pids run or the timeout passes, returning
// the survivors
func (m *Manager) waitGone(pids []int, timeout time.Duration) []int {
	deadline := time.Now().Add(timeout)
	for {
		var alive []int
		for _, p := range pids {
			if m.os.Alive(p) {
				alive = append(alive, p)
			}
		}
		if len(alive) == 0 || !time.Now().Before(deadline) {
			return alive
		}
		time.Sleep(m.poll)
	}
}

// Monitor polls pid and calls onExit once when it stops running. The
// monitor stops itself after firing.
func (m *Manager) Monitor(pid int, onExit func(pid int), interval time.Duration) MonitorHandle {
	if interval <= 0 {
		interval = time.Second
	}

	h := MonitorHandle{ID: id.NewMonitorID(), PID: pid}
	mon := &monitor{stop: make(chan struct{})}

	m.monMu.Lock()
	m.monitors[h.ID] = mon
	m.monMu.Unlock()

	go m.watch(h, mon, onExit, interval)
	return h
}

func (m *Manager) watch(h MonitorHandle, mon *monitor, onExit func(pid int), interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-mon.stop:
			return
		case <-ticker.C:
			if m.os.Alive(h.PID) {
				continue
			}

			m.monMu.Lock()
			_, active := m.monitors[h.ID]
			delete(m.monitors, h.ID)
			m.monMu.Unlock()

			if active && onExit != nil {
				m.Invalidate(h.PID)
				onExit(h.PID)
			}
			return
		}
	}
}

// StopMonitor cancels a monitor. Stopping an unknown or fired monitor is a
// no-op.
func (m *Manager) StopMonitor(h MonitorHandle) {
	m.monMu.Lock()
	mon, ok := m.monitors[h.ID]
	delete(m.monitors, h.ID)
	m.monMu.Unlock()

	if ok {
		close(mon.stop)
	}
}

// ActiveMonitors returns the number of live monitors
func (m *Manager) ActiveMonitors() int {
	m.monMu.Lock()
	defer m.monMu.Unlock()
	return len(m.monitors)
}

// Close stops every monitor
func (m *Manager) Close() {
	m.monMu.Lock()
	mons := m.monitors
	m.monitors = make(map[id.MonitorID]*monitor)
	m.monMu.Unlock()

	for _, mon := range mons {
		close(mon.stop)
	}
}
