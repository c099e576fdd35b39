package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/monitoring"
	"github.com/sholden3/aiorchestration-sub008/internal/providers/terminal"
	"github.com/sholden3/aiorchestration-sub008/internal/session"
	fakes "github.com/sholden3/aiorchestration-sub008/internal/testutil"
	"github.com/sholden3/aiorchestration-sub008/internal/transport"
)

func TestHandlerServesTransport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exec := fakes.NewFakeExecutor()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.GET("/pty", NewHandler(exec, Options{PingInterval: time.Second, Metrics: metrics}).HandleConnection)
	srv := httptest.NewServer(router)
	defer srv.Close()

	opts := transport.DefaultOptions()
	opts.Debounce = -1
	tr := transport.New(&transport.WSDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/pty"}, opts)
	defer tr.Close()
	tr.Connect()
	require.Eventually(t, func() bool { return tr.State() == transport.StateConnected }, 2*time.Second, 5*time.Millisecond)

	client := session.NewClient(tr, session.ClientOptions{})
	ctx := context.Background()
	term, err := session.Open(ctx, client, session.Options{})
	require.NoError(t, err)

	exec.Output(term.SessionID(), "hi\r\n")
	require.Eventually(t, func() bool { return string(term.Output()) == "hi\r\n" }, time.Second, 5*time.Millisecond)

	require.NoError(t, term.Close(ctx))
	assert.Equal(t, 1, exec.CountCalls(terminal.TargetKill, term.SessionID()))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.WSConnections))
	assert.Greater(t, testutil.CollectAndCount(metrics.WSMessages), 0)
}
