package main

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/config"
)

const rebuildDebounce = 500 * time.Millisecond

// watch rebuilds posts.json after content changes settle and drops the
// cached snapshot so the next page render picks the new posts up.
func watch(ctx context.Context, cfg *config.Config, st *stack, logger *zap.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addTree(watcher, cfg.Content.Dir, logger); err != nil {
		watcher.Close()
		return nil, err
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	rebuild := func() {
		n, err := runBuild(cfg, logger)
		if err != nil {
			logger.Error("rebuild failed", zap.Error(err))
			return
		}
		st.site.Invalidate(ctx)
		logger.Info("content rebuilt", zap.Int("posts", n))
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				logger.Debug("content changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
				if event.Has(fsnotify.Create) && isDir(event.Name) {
					if err := addTree(watcher, event.Name, logger); err != nil {
						logger.Warn("watching new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(rebuildDebounce, rebuild)
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error", zap.Error(err))
			}
		}
	}()

	logger.Info("watching content", zap.String("dir", cfg.Content.Dir))
	return func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		watcher.Close()
	}, nil
}

// addTree watches root and every directory below it.
func addTree(watcher *fsnotify.Watcher, root string, logger *zap.Logger) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
