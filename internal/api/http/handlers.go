package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
	"github.com/sholden3/aiorchestration-sub008/internal/shared/utils"
	"github.com/sholden3/aiorchestration-sub008/internal/shell"
)

// Registry is the session registry as seen by the HTTP surface.
// *terminal.Manager implements it.
type Registry interface {
	List() []types.SessionInfo
	Get(sessionID string) (types.SessionInfo, error)
	History(sessionID string) ([]types.HistoryEntry, error)
	Terminate(ctx context.Context, sessionID string) error
	Count() int
	Capacity() int
}

// Catalog is the shell catalog. *shell.Catalog implements it.
type Catalog interface {
	Available() []shell.Descriptor
	Optimal() shell.Descriptor
	ClearCache()
	ResolveAll(ctx context.Context) []shell.Descriptor
}

// Handlers contains all HTTP handlers
type Handlers struct {
	registry       Registry
	catalog        Catalog
	logger         *zap.Logger
	started        time.Time
	terminateGrace time.Duration
}

// NewHandlers creates a new handler set. terminateGrace bounds DELETE
// /sessions/:id.
func NewHandlers(registry Registry, catalog Catalog, terminateGrace time.Duration, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if terminateGrace <= 0 {
		terminateGrace = 5 * time.Second
	}
	return &Handlers{
		registry:       registry,
		catalog:        catalog,
		logger:         logger.Named("http"),
		started:        time.Now(),
		terminateGrace: terminateGrace,
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/shells", h.ListShells)
	r.GET("/shells/optimal", h.OptimalShell)
	r.POST("/shells/refresh", h.RefreshShells)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id", h.GetSession)
	r.GET("/sessions/:id/history", h.SessionHistory)
	r.DELETE("/sessions/:id", h.DeleteSession)
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
		"sessions": gin.H{
			"active":   h.registry.Count(),
			"capacity": h.registry.Capacity(),
		},
	})
}

// ListShells lists installed shells. ?versions=true resolves versions
// first, which runs every shell once.
func (h *Handlers) ListShells(c *gin.Context) {
	var shells []shell.Descriptor
	if c.Query("versions") == "true" {
		for _, d := range h.catalog.ResolveAll(c.Request.Context()) {
			if d.Available {
				shells = append(shells, d)
			}
		}
	} else {
		shells = h.catalog.Available()
	}

	c.JSON(http.StatusOK, gin.H{
		"shells": shells,
		"count":  len(shells),
	})
}

// OptimalShell returns the shell new sessions get by default
func (h *Handlers) OptimalShell(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Optimal())
}

// RefreshShells drops the detection cache and rescans
func (h *Handlers) RefreshShells(c *gin.Context) {
	h.catalog.ClearCache()
	shells := h.catalog.Available()
	h.logger.Info("Shell catalog refreshed", zap.Int("available", len(shells)))

	c.JSON(http.StatusOK, gin.H{
		"shells": shells,
		"count":  len(shells),
	})
}

// ListSessions lists all live sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.registry.List()
	c.JSON(http.StatusOK, types.SessionList{Sessions: sessions, Count: len(sessions)})
}

// GetSession returns one session
func (h *Handlers) GetSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	info, err := h.registry.Get(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// SessionHistory returns the commands submitted to a session
func (h *Handlers) SessionHistory(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	entries, err := h.registry.History(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"history":    entries,
		"count":      len(entries),
	})
}

// DeleteSession terminates a session and its process tree
func (h *Handlers) DeleteSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.terminateGrace)
	defer cancel()

	if err := h.registry.Terminate(ctx, sessionID); err != nil {
		h.logger.Warn("Terminate failed", zap.String("session_id", sessionID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": sessionID,
	})
}

func sessionParam(c *gin.Context) (string, bool) {
	sessionID := c.Param("id")
	if err := utils.ValidateID(sessionID, "session_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  errs.CodeInvalidArgument,
		})
		return "", false
	}
	return sessionID, true
}

// respondError maps a coded error to a status
func respondError(c *gin.Context, err error) {
	code := errs.CodeOf(err)
	c.JSON(statusFor(code), gin.H{
		"error": err.Error(),
		"code":  code,
	})
}

func statusFor(code errs.Code) int {
	switch code {
	case errs.CodeSessionNotFound:
		return http.StatusNotFound
	case errs.CodeInvalidArgument, errs.CodeShellNotAvailable:
		return http.StatusBadRequest
	case errs.CodeDuplicateSession:
		return http.StatusConflict
	case errs.CodeCapacityExceeded:
		return http.StatusServiceUnavailable
	case errs.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
