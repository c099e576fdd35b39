package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	apihttp "github.com/sholden3/aiorchestration-sub008/internal/api/http"
	"github.com/sholden3/aiorchestration-sub008/internal/api/middleware"
	"github.com/sholden3/aiorchestration-sub008/internal/api/ws"
	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/config"
	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/logging"
	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/monitoring"
	"github.com/sholden3/aiorchestration-sub008/internal/proctree"
	"github.com/sholden3/aiorchestration-sub008/internal/providers/terminal"
	"github.com/sholden3/aiorchestration-sub008/internal/shell"
)

// Server wraps the HTTP server and the session host behind it
type Server struct {
	router   *gin.Engine
	http     *http.Server
	catalog  *shell.Catalog
	procs    *proctree.Manager
	manager  *terminal.Manager
	provider *terminal.Provider
	limiter  *middleware.ClientLimiter
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics

	stop chan struct{}
}

// Dependencies lets tests replace the OS-facing parts of the host
type Dependencies struct {
	Spawner terminal.Spawner
	Procs   *proctree.Manager
	Catalog *shell.Catalog
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger, deps Dependencies) (*Server, error) {
	logger.Info("Initializing PTY host",
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("max_sessions", cfg.Sessions.Max),
	)

	// Metrics first; every component reports into them
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	catalog := deps.Catalog
	if catalog == nil {
		var err error
		catalog, err = newCatalog(cfg.Shells, logger)
		if err != nil {
			return nil, err
		}
	}
	optimal := catalog.Optimal()
	logger.Info("Shell catalog ready",
		zap.Int("available", len(catalog.Available())),
		zap.String("optimal", optimal.Path),
	)

	procs := deps.Procs
	if procs == nil {
		var err error
		procs, err = proctree.NewDefault(proctree.Options{
			Grace:  cfg.Sessions.TerminateGrace,
			Logger: logger.Component("proctree"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start process manager: %w", err)
		}
	}

	spawner := deps.Spawner
	if spawner == nil {
		spawner = terminal.DefaultSpawner()
	}

	manager := terminal.NewManager(catalog, procs, spawner, terminal.Options{
		MaxSessions:     cfg.Sessions.Max,
		HistoryLimit:    cfg.Sessions.HistoryLimit,
		BufferSize:      cfg.Sessions.BufferBytes,
		MonitorInterval: cfg.Sessions.MonitorInterval,
		DefaultCols:     cfg.Sessions.Cols,
		DefaultRows:     cfg.Sessions.Rows,
		DefaultDir:      cfg.Sessions.WorkingDir,
		Logger:          logger.Logger,
		Metrics:         metrics,
	})
	provider := terminal.NewProvider(manager, catalog)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Trace(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	var limiter *middleware.ClientLimiter
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		rl.SkipPaths = append(rl.SkipPaths, "/pty")
		rl.Logger = logger.Component("ratelimit")
		limiter = middleware.NewClientLimiter(rl)
		router.Use(limiter.Handler())
	}

	apihttp.NewHandlers(manager, catalog, cfg.Sessions.TerminateGrace*2, logger.Logger).Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/pty", ws.NewHandler(provider, ws.Options{
		PingInterval: cfg.Transport.PingInterval,
		CallTimeout:  cfg.Transport.CallTimeout,
		EventQueue:   cfg.Server.EventQueue,
		Logger:       logger.Logger,
		Metrics:      metrics,
	}).HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		catalog:  catalog,
		procs:    procs,
		manager:  manager,
		provider: provider,
		limiter:  limiter,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		stop:     make(chan struct{}),
	}, nil
}

func newCatalog(cfg config.ShellConfig, logger *logging.Logger) (*shell.Catalog, error) {
	opts := shell.Options{
		VersionTimeout: cfg.VersionTimeout,
		Logger:         logger.Component("shell"),
	}
	if cfg.Preferred != "" {
		kind, ok := shell.ParseKind(cfg.Preferred)
		if !ok {
			return nil, fmt.Errorf("unknown preferred shell %q", cfg.Preferred)
		}
		opts.Preferred = kind
	}
	if cfg.CandidatesFile != "" {
		file, err := shell.LoadCandidateFile(cfg.CandidatesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load shell candidates: %w", err)
		}
		opts = file.Apply(opts)
	}
	return shell.New(opts), nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Provider returns the session host's call executor
func (s *Server) Provider() *terminal.Provider {
	return s.provider
}

// Run serves HTTP until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Server.Addr()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.limiter != nil {
		go s.limiter.Run(s.stop)
	}
	if s.config.Shells.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := s.catalog.Watch(watchCtx); err != nil {
				s.logger.Warn("Shell watcher stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	return s.Close(shutdownCtx)
}

// Close stops accepting requests, terminates every session and releases
// the process manager
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}

	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.manager.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to terminate sessions", zap.Error(err))
		errs = append(errs, fmt.Errorf("terminate sessions: %w", err))
	}
	s.procs.Close()
	s.logger.Info("Terminated all sessions")

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
