// Package main is the entry point for the PTY session host.
//
// The host spawns shells behind pseudo-terminals and exposes them over a
// WebSocket call/event protocol at /pty, with a small REST surface for
// inspection and a Prometheus endpoint.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -max-sessions 20
//
//	# Development mode (console logs, debug level)
//	LOG_LEVEL=debug ./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: terminate every session and shut down
package main
