// Package terminal is the PTY session registry.
//
// A Manager spawns shells resolved through the shell catalog, tracks each
// session (geometry, bounded output buffer, command history, counters) and
// watches its process with the process tree manager, so a shell that dies
// out of band still produces an exit event. Session ids are never reused
// within a process lifetime, and creation beyond the configured capacity
// fails before anything is spawned.
//
// Shells with native PTY support run on a pseudo-terminal (creack/pty);
// others run on pipes and report stdout and stderr separately.
//
// Provider exposes the registry to the transport as string targets:
//
//	terminal.create_session  shell, working_dir, cols, rows, env, session_id
//	terminal.write           session_id, input | input_base64
//	terminal.read            session_id
//	terminal.clear           session_id
//	terminal.resize          session_id, cols, rows
//	terminal.kill            session_id
//	terminal.get_session     session_id
//	terminal.list_sessions
//	terminal.history         session_id
//	terminal.shells
//	terminal.optimal_shell
package terminal
