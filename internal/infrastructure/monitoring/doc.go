/*
Package monitoring provides Prometheus metrics for the session host.

# Overview

Metrics are registered against an injected prometheus.Registerer, so the
server uses its own registry and tests can build isolated instances. Every
recording method is safe on a nil *Metrics, letting components run without
metrics.

# Metrics

- HTTP request count and latency (gin middleware)
- Sessions: active, created, rejected by reason, spawn failures, output bytes, exits
- Transport: state, queue depth, calls by target and status, reconnects, drops
- WebSocket connections and messages
- Uptime

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "terminal.write")
	// ... perform call ...
	timer.Stop("success")
*/
package monitoring
