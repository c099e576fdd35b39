//go:build windows

package proctree

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"unsafe"

	"golang.org/x/sys/windows"
)

const stillActive = 259

// toolhelpOS walks the toolhelp process snapshot
type toolhelpOS struct{}

// NewSystemOS returns the toolhelp backend
func NewSystemOS() (OS, error) {
	return toolhelpOS{}, nil
}

func (toolhelpOS) List() ([]ProcessInfo, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("process snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snap, &entry); err != nil {
		return nil, fmt.Errorf("process snapshot: %w", err)
	}

	var procs []ProcessInfo
	for {
		procs = append(procs, ProcessInfo{
			PID:  int(entry.ProcessID),
			PPID: int(entry.ParentProcessID),
			Name: windows.UTF16ToString(entry.ExeFile[:]),
		})
		if err := windows.Process32Next(snap, &entry); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				break
			}
			return nil, fmt.Errorf("process snapshot: %w", err)
		}
	}
	return procs, nil
}

func (o toolhelpOS) Lookup(pid int) (ProcessInfo, bool) {
	if !o.Alive(pid) {
		return ProcessInfo{}, false
	}
	procs, err := o.List()
	if err != nil {
		return ProcessInfo{}, false
	}
	for _, p := range procs {
		if p.PID == pid {
			return p, true
		}
	}
	return ProcessInfo{}, false
}

func (toolhelpOS) Alive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}

func (toolhelpOS) Signal(pid int, force bool) error {
	return taskkill(pid, force, false)
}

// KillTree uses taskkill /T, which walks the tree natively
func (toolhelpOS) KillTree(pid int, force bool) error {
	return taskkill(pid, force, true)
}

func taskkill(pid int, force, tree bool) error {
	args := []string{"/PID", strconv.Itoa(pid)}
	if tree {
		args = append(args, "/T")
	}
	if force {
		args = append(args, "/F")
	}
	if out, err := exec.Command("taskkill", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("taskkill %d: %w: %s", pid, err, out)
	}
	return nil
}
