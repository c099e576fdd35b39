package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/id"
)

func TestTraceAssignsRequestID(t *testing.T) {
	var seen string
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Trace(nil))
	router.GET("/sessions", func(c *gin.Context) {
		seen = RequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := get(router, "/sessions", "", "")
	got := w.Header().Get(RequestIDHeader)
	require.True(t, id.IsValid(got))
	assert.Equal(t, got, seen)
}

func TestTraceRequestIDHeader(t *testing.T) {
	existing := id.Default().GenerateString()
	tests := []struct {
		name     string
		incoming string
		reused   bool
	}{
		{"valid id is reused", existing, true},
		{"garbage is replaced", "not-an-id", false},
		{"missing is generated", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(Trace(nil))
			req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			assert.True(t, id.IsValid(got))
			if tt.reused {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.NotEqual(t, tt.incoming, got)
			}
		})
	}
}

func TestTraceLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Trace(zap.New(core)))
	router.GET("/sessions/:id", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})

	get(router, "/sessions/x", "", "")

	entries := logs.FilterMessage("Request failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/sessions/:id", fields["path"])
	assert.EqualValues(t, http.StatusInternalServerError, fields["status"])
}
