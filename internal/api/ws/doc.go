// Package ws exposes the session host over WebSocket at GET /pty. Each
// connection speaks the transport frame protocol: calls in, results and
// session events out.
package ws
