//go:build linux

package proctree

import (
	"fmt"
	"strings"

	"github.com/prometheus/procfs"
)

// procOS reads process state from /proc
type procOS struct {
	fs procfs.FS
}

// NewSystemOS returns the /proc backend
func NewSystemOS() (OS, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &procOS{fs: fs}, nil
}

func (p *procOS) List() ([]ProcessInfo, error) {
	procs, err := p.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	out := make([]ProcessInfo, 0, len(procs))
	for _, proc := range procs {
		if info, ok := p.info(proc); ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func (p *procOS) Lookup(pid int) (ProcessInfo, bool) {
	proc, err := p.fs.Proc(pid)
	if err != nil {
		return ProcessInfo{}, false
	}
	return p.info(proc)
}

func (p *procOS) Alive(pid int) bool {
	proc, err := p.fs.Proc(pid)
	if err != nil {
		return false
	}
	stat, err := proc.Stat()
	if err != nil {
		return false
	}
	return !gone(stat.State)
}

func (p *procOS) Signal(pid int, force bool) error {
	return signalUnix(pid, force)
}

// info converts a /proc entry; processes that vanish mid-read or are
// zombies are skipped
func (p *procOS) info(proc procfs.Proc) (ProcessInfo, bool) {
	stat, err := proc.Stat()
	if err != nil || gone(stat.State) {
		return ProcessInfo{}, false
	}
	info := ProcessInfo{
		PID:         stat.PID,
		PPID:        stat.PPID,
		Name:        stat.Comm,
		MemoryBytes: uint64(stat.ResidentMemory()),
	}
	if args, err := proc.CmdLine(); err == nil {
		info.Cmdline = strings.Join(args, " ")
	}
	return info, true
}

// gone reports zombie and dead states
func gone(state string) bool {
	return state == "Z" || state == "X" || state == "x"
}
