// Package types provides the data structures shared by the session host and
// its consumers: session snapshots, command history, the output and exit
// events streamed for each session, and the request used to create one.
//
// Core Types:
//   - SessionInfo: point-in-time view of a PTY session
//   - HistoryEntry: one submitted command line
//   - Event: output or exit notification for a session
//   - CreateRequest: parameters for a new session
package types
