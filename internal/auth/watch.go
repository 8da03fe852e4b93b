package auth

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch drops the cached credential whenever the token file is rewritten by
// another process (typically `pikiosk authorize` while the server runs).
// It returns once the watcher is installed; watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create token watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch token dir: %w", err)
	}

	name := filepath.Clean(s.path)
	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != name {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					s.Invalidate()
					log.Debug().Str("path", s.path).Str("op", event.Op.String()).Msg("token file changed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Str("path", s.path).Msg("token watcher error")
			}
		}
	}()
	return nil
}
