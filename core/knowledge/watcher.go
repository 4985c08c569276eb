package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kilianp07/salesintel/core/logger"
)

// ReloadFunc observes a reload attempt.
type ReloadFunc func(documents int, err error)

// Watch reloads b whenever a document in its directory changes. Events are
// coalesced over debounce. It blocks until ctx is done.
func Watch(ctx context.Context, b *Base, debounce time.Duration, log logger.Logger) error {
	return WatchFunc(ctx, b, debounce, log, nil)
}

// WatchFunc is Watch calling fn after every reload.
func WatchFunc(ctx context.Context, b *Base, debounce time.Duration, log logger.Logger, fn ReloadFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(b.Dir()); err != nil {
		return fmt.Errorf("watch %s: %w", b.Dir(), err)
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !relevant(ev) {
				continue
			}
			log.Debugw("knowledge file event", map[string]any{"path": ev.Name, "op": ev.Op.String()})
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			err := b.Reload()
			n := len(b.Entries())
			if fn != nil {
				fn(n, err)
			}
			if err != nil {
				log.Errorf("knowledge reload: %v", err)
				continue
			}
			log.Infof("knowledge base reloaded: %d documents", n)
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			log.Errorf("knowledge watcher: %v", err)
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(ev.Name)))
}
