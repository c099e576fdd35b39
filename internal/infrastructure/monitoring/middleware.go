package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection. Paths are
// recorded by route template so session ids do not explode cardinality.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a transport call
type Timer struct {
	start   time.Time
	metrics *Metrics
	target  string
}

// NewTimer starts timing a call to target
func NewTimer(metrics *Metrics, target string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		target:  target,
	}
}

// Stop records the call with its final status
func (t *Timer) Stop(status string) {
	t.metrics.RecordTransportCall(t.target, status, time.Since(t.start))
}
