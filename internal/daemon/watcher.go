package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/docspipe/internal/config"
	"git.home.luguber.info/inful/docspipe/internal/logfields"
)

// PipelineWatcher reloads the pipeline definition when its file changes.
type PipelineWatcher struct {
	path         string
	daemon       *Daemon
	watcher      *fsnotify.Watcher
	stopChan     chan struct{}
	reloadChan   chan struct{}
	debounceTime time.Duration
}

// NewPipelineWatcher creates a watcher for the definition file at path.
func NewPipelineWatcher(path string, daemon *Daemon) (*PipelineWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("resolve pipeline definition path: %w", err)
	}
	return &PipelineWatcher{
		path:         absPath,
		daemon:       daemon,
		watcher:      watcher,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
		debounceTime: 2 * time.Second,
	}, nil
}

// Start begins monitoring the definition file. The parent directory is
// watched instead of the file itself so editors that replace the file via
// rename are still seen.
func (w *PipelineWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch pipeline directory: %w", err)
	}
	slog.Info("Watching pipeline definition", logfields.Path(w.path))
	go w.watchLoop(ctx)
	go w.reloadLoop(ctx)
	return nil
}

// Stop shuts the watcher down.
func (w *PipelineWatcher) Stop(ctx context.Context) error {
	close(w.stopChan)
	return w.watcher.Close()
}

func (w *PipelineWatcher) watchLoop(ctx context.Context) {
	fileName := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != fileName {
				continue
			}
			switch {
			case ev.Op.Has(fsnotify.Write), ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Rename):
				w.triggerReload()
			case ev.Op.Has(fsnotify.Remove):
				slog.Warn("Pipeline definition removed", logfields.Path(ev.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Pipeline watcher error", logfields.Error(err))
		}
	}
}

func (w *PipelineWatcher) reloadLoop(ctx context.Context) {
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.reloadChan:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounceTime, func() {
				if err := w.performReload(); err != nil {
					slog.Error("Failed to reload pipeline definition", logfields.Error(err))
				}
			})
		}
	}
}

func (w *PipelineWatcher) triggerReload() {
	select {
	case w.reloadChan <- struct{}{}:
	default:
	}
}

// performReload loads and applies the new definition. A definition that fails
// to load or validate is rejected and the running one stays in effect.
func (w *PipelineWatcher) performReload() error {
	newCfg, err := config.Load(w.path)
	if err != nil {
		return fmt.Errorf("load pipeline definition: %w", err)
	}
	w.daemon.ReloadConfig(newCfg)
	return nil
}
