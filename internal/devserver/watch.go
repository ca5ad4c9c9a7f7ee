// File: internal/devserver/watch.go
package devserver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watcher reports source changes under a root, batched over a quiet window.
type watcher struct {
	fs       *fsnotify.Watcher
	root     string
	outDir   string
	debounce time.Duration
	logger   *zap.Logger
	onChange func(ctx context.Context, paths []string)
}

func newWatcher(root, outDir string, debounce time.Duration, logger *zap.Logger, onChange func(context.Context, []string)) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &watcher{
		fs:       fw,
		root:     filepath.Clean(root),
		outDir:   filepath.Clean(outDir),
		debounce: debounce,
		logger:   logger,
		onChange: onChange,
	}
	if err := w.addTree(w.root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// ignored reports whether path lies in a directory that is never watched.
func (w *watcher) ignored(path string) bool {
	path = filepath.Clean(path)
	if path == w.outDir || strings.HasPrefix(path, w.outDir+string(filepath.Separator)) {
		return true
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "node_modules" || (strings.HasPrefix(part, ".") && part != "..") {
			return true
		}
	}
	return strings.HasSuffix(path, "~")
}

func (w *watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Debug("Skipping unreadable path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// run delivers change batches until ctx is done. onChange runs on this
// goroutine, so batches never overlap.
func (w *watcher) run(ctx context.Context) error {
	defer w.fs.Close()

	changed := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if w.ignored(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("Could not watch new directory", zap.String("path", ev.Name), zap.Error(err))
					}
				}
			}
			changed[ev.Name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))

		case <-timerC:
			timerC = nil
			paths := make([]string, 0, len(changed))
			for p := range changed {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(changed)
			w.onChange(ctx, paths)
		}
	}
}
