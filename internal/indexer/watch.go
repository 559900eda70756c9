package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
)

// debounceWindow coalesces rapid successive writes (editor autosave,
// build-tool rewrites) into a single reindex.
const debounceWindow = 300 * time.Millisecond

// Watch follows root's tree with fsnotify, incrementally reindexing
// changed files and removing deleted ones until ctx is canceled.
// fsnotify is not recursive, so new subdirectories are added to the
// watch as Create events reveal them.
func (ix *Indexer) Watch(ctx context.Context, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := ix.addTreeToWatch(w, root); err != nil {
		return err
	}

	log := logging.Get(logging.CategoryIndexer)
	log.Info("watching %s for changes", root)

	debounce := make(map[string]time.Time)
	ticker := time.NewTicker(debounceWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !ix.opts.IgnoreDirs[filepath.Base(ev.Name)] {
						if err := w.Add(ev.Name); err != nil {
							log.Warn("watch new directory %s: %v", ev.Name, err)
						}
					}
					continue
				}
			}
			if !ix.parser.SupportsPath(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if err := ix.RemoveFile(ctx, ev.Name); err != nil {
					log.Warn("remove %s from index: %v", ev.Name, err)
				}
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				debounce[ev.Name] = time.Now()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error: %v", err)

		case now := <-ticker.C:
			for path, t := range debounce {
				if now.Sub(t) < debounceWindow {
					continue
				}
				if _, err := ix.IndexFile(ctx, path); err != nil {
					log.Warn("reindex %s: %v", path, err)
				}
				delete(debounce, path)
			}
		}
	}
}

func (ix *Indexer) addTreeToWatch(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() != filepath.Base(root) && ix.opts.IgnoreDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
