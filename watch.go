package kida

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates cached templates as their source files change.
// It requires a DirLoader and blocks until ctx is done. onChange, when
// non-nil, is called with each changed template name after the cache
// entry is dropped, for callers that re-render on change.
func (e *Engine) Watch(ctx context.Context, onChange func(name string)) error {
	dl, ok := e.loader.(*DirLoader)
	if !ok {
		return fmt.Errorf("watch needs a DirLoader, have %T", e.loader)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Close()

	// Watch the root and every subdirectory; fsnotify does not recurse.
	addDirs := func(root string) error {
		return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return w.Add(path)
			}
			return nil
		})
	}
	if err := addDirs(dl.Root); err != nil {
		return fmt.Errorf("watching %s: %w", dl.Root, err)
	}

	e.log.Info("watching templates", "root", dl.Root)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addDirs(ev.Name); err != nil {
						e.log.Warn("watch add failed", "dir", ev.Name, "err", err)
					}
					continue
				}
			}
			rel, err := filepath.Rel(dl.Root, ev.Name)
			if err != nil {
				continue
			}
			name := filepath.ToSlash(rel)
			e.Invalidate(name)
			e.log.Debug("template changed", "template", name, "op", ev.Op.String())
			if onChange != nil {
				onChange(name)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.log.Warn("watch error", "err", err)
		}
	}
}
