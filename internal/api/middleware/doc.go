// Package middleware provides the HTTP middleware for the session host.
//
// Middleware stack:
//   - CORS: Cross-origin access to the session API for configured origins
//   - RateLimit: Per-IP token bucket rate limiting with idle-client cleanup
//   - Trace: X-Request-ID assignment and per-request access logging
//
// Health and metrics endpoints are exempt from rate limiting by default.
//
// Example Usage:
//
//	limiter := middleware.NewClientLimiter(middleware.DefaultRateLimitConfig())
//	go limiter.Run(stop)
//	router.Use(middleware.Trace(logger), middleware.CORS(cfg.Server.CORSOrigins...), limiter.Handler())
package middleware
