package shell

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch clears the cache whenever a shell is installed, removed or
// replaced in a directory the catalog searches. It blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create shell watcher: %w", err)
	}
	defer watcher.Close()

	dirs := c.watchDirs()
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			c.logger.Debug("Skipping shell watch dir", zap.String("dir", dir), zap.Error(err))
		}
	}
	c.logger.Info("Watching shell directories", zap.Int("dirs", len(watcher.WatchList())))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Chmod) {
				c.logger.Debug("Shell directory changed", zap.String("path", ev.Name))
				c.ClearCache()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("Shell watcher error", zap.Error(err))
		}
	}
}

// watchDirs returns the existing parent directories of all path candidates
// and detected shells, plus the PATH entries
func (c *Catalog) watchDirs() []string {
	seen := make(map[string]struct{})
	var dirs []string
	add := func(dir string) {
		if dir == "" {
			return
		}
		if _, ok := seen[dir]; ok {
			return
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	for _, spec := range c.table {
		for _, p := range spec.Paths {
			add(filepath.Dir(os.ExpandEnv(p)))
		}
	}
	for _, d := range c.DetectAll() {
		if d.Available {
			add(filepath.Dir(d.Path))
		}
	}
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		add(dir)
	}
	return dirs
}
