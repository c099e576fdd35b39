package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTimeout forgets clients not seen for this long; zero means 10m
	IdleTimeout time.Duration
	// SkipPaths are never limited, matched by prefix
	SkipPaths []string
	Logger    *zap.Logger
}

// DefaultRateLimitConfig returns production-ready rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTimeout:       10 * time.Minute,
		SkipPaths:         []string{"/health", "/metrics"},
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter holds one token bucket per client IP
type ClientLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*client
}

// NewClientLimiter creates a per-IP limiter
func NewClientLimiter(cfg RateLimitConfig) *ClientLimiter {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ClientLimiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// Allow takes a token for ip
func (l *ClientLimiter) Allow(ip string) bool {
	l.mu.Lock()
	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[ip] = c
	}
	c.lastSeen = l.now()
	limiter := c.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// Cleanup forgets idle clients and returns how many were removed
func (l *ClientLimiter) Cleanup() int {
	cutoff := l.now().Add(-l.cfg.IdleTimeout)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

// Clients returns the number of tracked clients
func (l *ClientLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Run cleans up idle clients until stop is closed
func (l *ClientLimiter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(l.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := l.Cleanup(); n > 0 {
				l.cfg.Logger.Debug("Forgot idle clients", zap.Int("count", n))
			}
		}
	}
}

// Handler returns the gin middleware
func (l *ClientLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipped(c.Request.URL.Path, l.cfg.SkipPaths) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if !l.Allow(ip) {
			l.cfg.Logger.Debug("Rate limited", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return NewClientLimiter(cfg).Handler()
}

func skipped(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
