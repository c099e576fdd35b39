// Package config provides 12-factor configuration for the PTY host and its
// consumers.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags in cmd/ override environment variables.
//
// Configuration Sections:
//   - Server: HTTP listen address and shutdown timeout
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting for the HTTP surface
//   - Sessions: Capacity, buffers and terminal defaults for PTY sessions
//   - Shells: Preferred shell and candidate override file
//   - Transport: Reconnect, queue and heartbeat tuning for consumers
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Listening on %s\n", cfg.Server.Addr())
package config
