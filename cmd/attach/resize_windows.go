//go:build windows

package main

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/sholden3/aiorchestration-sub008/internal/session"
)

// watchResize polls the console size; Windows has no SIGWINCH
func watchResize(ctx context.Context, fd int, t *session.Terminal, logger *zap.Logger) {
	cols, rows, _ := term.GetSize(fd)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c, r, err := term.GetSize(fd)
			if err != nil || (c == cols && r == rows) {
				continue
			}
			cols, rows = c, r
			if err := t.Resize(ctx, cols, rows); err != nil {
				logger.Debug("Resize failed", zap.Error(err))
			}
		}
	}
}
