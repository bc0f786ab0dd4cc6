// Package watch re-runs transcription when new audio lands in the input
// directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gpnscribe/internal/errs"
	"gpnscribe/internal/orchestrator"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunFunc performs one pass over the input directory.
type RunFunc func(ctx context.Context) (orchestrator.Summary, error)

type Watcher struct {
	dir        string
	extensions []string
	settle     time.Duration
	run        RunFunc
	logger     *logrus.Logger
	fsw        *fsnotify.Watcher
}

// New watches dir. Events for files with one of extensions trigger run once
// no further event has arrived for settle.
func New(dir string, extensions []string, settle time.Duration, run RunFunc, logger *logrus.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, errs.Wrap(errs.ErrNotFound, "watch "+dir, err)
	}
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return &Watcher{dir: dir, extensions: exts, settle: settle, run: run, logger: logger, fsw: fsw}, nil
}

// Start runs once immediately, then again after each settled burst of
// events. It returns nil when ctx is cancelled and the error of any fatal
// run otherwise.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.fsw.Close()
	w.logger.Infof("watching %s for %s", w.dir, strings.Join(w.extensions, " "))

	trigger := make(chan struct{}, 1)
	trigger <- struct{}{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.events(gctx, trigger) })
	g.Go(func() error { return w.runs(gctx, trigger) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		w.logger.Info("watcher stopped")
		return nil
	}
	return err
}

func (w *Watcher) events(ctx context.Context, trigger chan<- struct{}) error {
	timer := time.NewTimer(w.settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !w.matches(event.Name) {
				w.logger.Debugf("ignoring %s", event.Name)
				continue
			}
			w.logger.Debugf("audio changed: %s", event.Name)
			timer.Reset(w.settle)
		case <-timer.C:
			select {
			case trigger <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Warnf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) runs(ctx context.Context, trigger <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
		}
		summary, err := w.run(ctx)
		if err != nil {
			if errs.Fatal(err) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Errorf("run %s: %v", summary.RunID, err)
			continue
		}
		if summary.Failed > 0 {
			w.logger.Warnf("run %s: %d files failed", summary.RunID, summary.Failed)
		}
	}
}

func (w *Watcher) matches(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(name)))
}
