package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/config"
	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/logging"
	"github.com/sholden3/aiorchestration-sub008/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Listen address")
	flag.IntVar(&cfg.Sessions.Max, "max-sessions", cfg.Sessions.Max, "Maximum concurrent sessions")
	flag.StringVar(&cfg.Shells.Preferred, "shell", cfg.Shells.Preferred, "Preferred shell kind")
	flag.StringVar(&cfg.Shells.CandidatesFile, "shells-file", cfg.Shells.CandidatesFile, "Extra shell candidates (yaml or toml)")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	logger, err := logging.New(logging.FromConfig(cfg.Logging, false))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	srv, err := server.NewServer(cfg, logger, server.Dependencies{})
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
