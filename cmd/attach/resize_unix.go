//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/sholden3/aiorchestration-sub008/internal/session"
)

// watchResize forwards local window size changes to the session
func watchResize(ctx context.Context, fd int, t *session.Terminal, logger *zap.Logger) {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-winch:
			cols, rows, err := term.GetSize(fd)
			if err != nil {
				continue
			}
			if err := t.Resize(ctx, cols, rows); err != nil {
				logger.Debug("Resize failed", zap.Error(err))
			}
		}
	}
}
