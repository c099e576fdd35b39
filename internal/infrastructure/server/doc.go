// Package server wires the session host together: shell catalog, process
// manager, session registry, the REST and WebSocket surfaces, metrics and
// graceful shutdown.
package server
