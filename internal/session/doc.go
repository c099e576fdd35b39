// Package session is the consumer side of the PTY host. Client exposes the
// host's call surface over a shared transport; Terminal binds one session
// id to it and decides who terminates the session.
//
// A Terminal made with Open owns its session: Close terminates it. A
// Terminal made with Attach shares a session someone else owns: Close only
// detaches its listeners.
package session
