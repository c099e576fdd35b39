package types

import "time"

// CreateRequest holds the parameters for a new session. Zero values mean
// "use the host default".
type CreateRequest struct {
	SessionID  string            `json:"session_id,omitempty"`
	Shell      string            `json:"shell,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Cols       int               `json:"cols,omitempty"`
	Rows       int               `json:"rows,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

// Counters tracks per-session activity
type Counters struct {
	BytesOut uint64 `json:"bytes_out"`
	Commands uint64 `json:"commands"`
	Errors   uint64 `json:"errors"`
}

// SessionInfo is the public representation of a session
type SessionInfo struct {
	ID         string    `json:"id"`
	ShellKind  string    `json:"shell_kind"`
	ShellPath  string    `json:"shell_path"`
	WorkingDir string    `json:"working_dir"`
	Cols       int       `json:"cols"`
	Rows       int       `json:"rows"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Active     bool      `json:"active"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Counters   Counters  `json:"counters"`
}

// HistoryEntry records one command line submitted to a session
type HistoryEntry struct {
	Command   string        `json:"command"`
	Timestamp time.Time     `json:"timestamp"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// SessionList is the result of listing sessions
type SessionList struct {
	Sessions []SessionInfo `json:"sessions"`
	Count    int           `json:"count"`
}
