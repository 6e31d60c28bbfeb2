package grading

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// WatchScheme reloads the scheme file whenever it changes and hands each good
// version to apply. A file that fails to load is logged and the previous
// scheme stays in effect. It blocks until ctx is done.
//
// The parent directory is watched rather than the file so editors that save
// by rename are picked up too.
func WatchScheme(ctx context.Context, path string, log *zap.Logger, apply func(Scheme)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "grading: watcher")
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "grading: %s", path)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "grading: watch %s", filepath.Dir(abs))
	}
	log = log.With(zap.String("file", abs))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			// editors write in bursts
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("grade scheme watcher", zap.Error(err))

		case <-fire:
			fire = nil
			s, err := LoadScheme(abs)
			if err != nil {
				log.Error("grade scheme reload failed; keeping the previous one", zap.Error(err))
				continue
			}
			log.Info("grade scheme reloaded", zap.Strings("order", s.Order))
			apply(s)
		}
	}
}
