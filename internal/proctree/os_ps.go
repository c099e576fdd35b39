//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package proctree

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// psOS shells out to ps(1)
type psOS struct{}

// NewSystemOS returns the ps backend
func NewSystemOS() (OS, error) {
	if _, err := exec.LookPath("ps"); err != nil {
		return nil, fmt.Errorf("ps not found: %w", err)
	}
	return psOS{}, nil
}

const psFormat = "pid=,ppid=,rss=,stat=,comm="

func (psOS) List() ([]ProcessInfo, error) {
	out, err := exec.Command("ps", "-axo", psFormat).Output()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	return parsePS(out), nil
}

func (psOS) Lookup(pid int) (ProcessInfo, bool) {
	out, err := exec.Command("ps", "-o", psFormat, "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return ProcessInfo{}, false
	}
	procs := parsePS(out)
	if len(procs) != 1 {
		return ProcessInfo{}, false
	}
	return procs[0], true
}

func (o psOS) Alive(pid int) bool {
	if !exists(pid) {
		return false
	}
	_, ok := o.Lookup(pid)
	return ok
}

func (psOS) Signal(pid int, force bool) error {
	return signalUnix(pid, force)
}

// parsePS parses "pid ppid rss stat comm" lines, dropping zombies
func parsePS(out []byte) []ProcessInfo {
	var procs []ProcessInfo
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, _ := strconv.Atoi(fields[1])
		rssKB, _ := strconv.ParseUint(fields[2], 10, 64)
		if strings.HasPrefix(fields[3], "Z") {
			continue
		}
		procs = append(procs, ProcessInfo{
			PID:         pid,
			PPID:        ppid,
			MemoryBytes: rssKB * 1024,
			Name:        strings.Join(fields[4:], " "),
		})
	}
	return procs
}
