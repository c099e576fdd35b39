// Package proctree inspects, monitors and terminates OS process trees.
//
// A Manager sits on top of a platform backend (OS): /proc on Linux, ps on
// the BSDs and macOS, the toolhelp snapshot API on Windows. Trees are built
// from a single process listing with a visited set, so a cyclic or
// inconsistent parent table cannot loop. Termination signals descendants
// deepest first and the root last, then waits for the whole snapshot to
// stop running. Zombies count as stopped.
//
// Example Usage:
//
//	mgr, _ := proctree.NewDefault(proctree.Options{})
//	h := mgr.Monitor(pid, func(pid int) { log.Println("exited", pid) }, time.Second)
//	res := mgr.Terminate(pid, false)
//	mgr.StopMonitor(h)
package proctree
