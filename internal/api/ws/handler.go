package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/monitoring"
	"github.com/sholden3/aiorchestration-sub008/internal/transport"
)

// Options configures the WebSocket endpoint
type Options struct {
	// PingInterval keeps idle connections alive; zero disables heartbeats
	PingInterval time.Duration
	// CallTimeout bounds each call
	CallTimeout time.Duration
	// EventQueue bounds the events buffered per connection
	EventQueue int
	// CheckOrigin overrides the upgrader's origin check; nil allows all
	CheckOrigin func(r *http.Request) bool
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
}

// Handler upgrades requests to the transport protocol and serves session
// calls on them
type Handler struct {
	exec     transport.Executor
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler over exec
func NewHandler(exec transport.Executor, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		exec:   exec,
		opts:   opts,
		logger: opts.Logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// HandleConnection serves one connection until it closes. Calls on a
// connection run one at a time.
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.New().String()
	logger := h.logger.With(zap.String("conn_id", connID), zap.String("remote", c.ClientIP()))
	conn := transport.NewWSConn(ws, transport.WSOptions{PingInterval: h.opts.PingInterval})
	defer conn.Close()

	h.opts.Metrics.IncWSConnections()
	defer h.opts.Metrics.DecWSConnections()
	logger.Info("Transport connection opened")

	err = transport.Serve(c.Request.Context(), conn, h.exec, transport.ServeOptions{
		CallTimeout: h.opts.CallTimeout,
		EventQueue:  h.opts.EventQueue,
		Logger:      logger,
		OnFrame: func(direction string, f transport.Frame) {
			h.opts.Metrics.RecordWSMessage(direction, string(f.Type))
		},
	})
	if err != nil {
		logger.Info("Transport connection failed", zap.Error(err))
		return
	}
	logger.Info("Transport connection closed")
}
