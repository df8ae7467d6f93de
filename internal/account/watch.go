package account

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSettle is how long a descriptor must stay quiet before Watch reports
// a change. Editors often write a file in several steps.
const watchSettle = 100 * time.Millisecond

// Watch calls onChange each time the descriptor behind userPath is written
// or replaced, until ctx is done. The containing directory is watched so
// editors that save through a rename are seen too.
func (s *Store) Watch(ctx context.Context, userPath string, onChange func()) error {
	path, err := s.Resolve(userPath)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	settle := time.NewTimer(watchSettle)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name == path && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				settle.Reset(watchSettle)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", dir, err)
		case <-settle.C:
			onChange()
		}
	}
}
