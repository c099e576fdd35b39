// Package http serves the session host's REST surface: health, the shell
// catalog and read/terminate access to live sessions. Sessions are created
// and driven over the WebSocket transport, not here.
package http
