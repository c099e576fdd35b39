// Package main is an interactive consumer of the PTY session host.
//
// It connects through the resilient transport, opens (or attaches to) a
// session and bridges it to the local terminal in raw mode. Connection
// state changes are logged to stderr; the shell's output goes to stdout.
//
// Usage:
//
//	# Open a new session, terminated on exit
//	./attach -url ws://localhost:8000/pty
//
//	# Attach to an existing session, left running on exit
//	./attach -session 01J9Z...
//
//	# List the host's sessions
//	./attach -list
package main
