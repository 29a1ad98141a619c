package billing

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watch reloads the catalog whenever its packages file changes, until ctx is
// cancelled. The parent directory is watched so that editors which replace
// the file by rename are picked up. A file that fails to parse leaves the
// previous catalog in place.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(c.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	c.log.Info().Str("path", c.path).Msg("watching package catalog")

	go c.watchLoop(ctx, w)
	return nil
}

func (c *Catalog) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	target := filepath.Clean(c.path)

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			// Coalesce the burst of events a single save produces.
			mu.Lock()
			if timer != nil {
				timer.Reset(reloadDebounce)
			} else {
				timer = time.AfterFunc(reloadDebounce, func() {
					mu.Lock()
					timer = nil
					mu.Unlock()
					if err := c.Reload(); err != nil {
						c.log.Warn().Err(err).Str("path", c.path).Msg("package catalog reload failed, keeping previous catalog")
					}
				})
			}
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			c.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}
