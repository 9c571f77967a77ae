// Package daemon runs docspipe as a long-lived trigger server: webhooks and
// schedules enqueue pipeline runs which a single worker executes serially.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/docspipe/internal/artifact"
	"git.home.luguber.info/inful/docspipe/internal/config"
	"git.home.luguber.info/inful/docspipe/internal/event"
	"git.home.luguber.info/inful/docspipe/internal/history"
	"git.home.luguber.info/inful/docspipe/internal/logfields"
	"git.home.luguber.info/inful/docspipe/internal/metrics"
	"git.home.luguber.info/inful/docspipe/internal/notify"
	"git.home.luguber.info/inful/docspipe/internal/pipeline"
	"git.home.luguber.info/inful/docspipe/internal/preview"
)

const defaultListen = ":8980"

// queueCapacity bounds pending runs; webhooks arriving faster than builds
// complete are rejected with 503 rather than buffered without limit.
const queueCapacity = 32

// Daemon owns the trigger server and the serial run worker.
type Daemon struct {
	mu       sync.RWMutex
	cfg      *config.Pipeline
	cfgPath  string
	dataDir  string
	listen   string

	queue     chan event.Event
	hist      *history.Store
	artifacts artifact.Store
	bucket    preview.Bucket
	registry  *prom.Registry
	recorder  *metrics.PrometheusRecorder
	publisher *notify.Publisher
	scheduler *Scheduler
	watcher   *PipelineWatcher
	server    *http.Server

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a daemon for the given pipeline definition file.
func New(cfg *config.Pipeline, cfgPath, dataDir string) (*Daemon, error) {
	listen := defaultListen
	if cfg.Daemon != nil && cfg.Daemon.Listen != "" {
		listen = cfg.Daemon.Listen
	}
	d := &Daemon{
		cfg:     cfg,
		cfgPath: cfgPath,
		dataDir: dataDir,
		listen:  listen,
		queue:   make(chan event.Event, queueCapacity),
		stopped: make(chan struct{}),
	}
	return d, nil
}

// Start brings up storage, the schedule trigger, the definition watcher and
// the HTTP server, then blocks running queued pipelines until ctx is done.
func (d *Daemon) Start(ctx context.Context) error {
	var err error
	d.hist, err = history.NewStore(filepath.Join(d.dataDir, "history.db"))
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	d.artifacts, err = artifact.NewFSStore(filepath.Join(d.dataDir, "artifacts"))
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	d.bucket, err = preview.NewFSBucket(filepath.Join(d.dataDir, "previews"))
	if err != nil {
		return fmt.Errorf("open preview bucket: %w", err)
	}

	d.registry = prom.NewRegistry()
	d.recorder = metrics.NewPrometheusRecorder(d.registry)

	if nc := d.notifyConfig(); nc != nil && nc.Enabled {
		pub, err := notify.NewPublisher(nc)
		if err != nil {
			slog.Warn("Run event publishing unavailable", logfields.Error(err))
		} else {
			d.publisher = pub
		}
	}

	if d.cfg.Triggers.Schedule != nil {
		d.scheduler, err = NewScheduler(d)
		if err != nil {
			return err
		}
		if err := d.scheduler.ScheduleRuns(d.cfg.Triggers.Schedule); err != nil {
			return err
		}
		d.scheduler.Start(ctx)
	}

	d.watcher, err = NewPipelineWatcher(d.cfgPath, d)
	if err != nil {
		slog.Warn("Pipeline definition watching disabled", logfields.Error(err))
	} else if err := d.watcher.Start(ctx); err != nil {
		slog.Warn("Pipeline definition watching disabled", logfields.Error(err))
	}

	d.server = &http.Server{
		Addr:              d.listen,
		Handler:           d.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Daemon HTTP server listening", slog.String("addr", d.listen))
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", logfields.Error(err))
		}
	}()

	d.workerLoop(ctx)
	return nil
}

// workerLoop executes queued runs one at a time. Serial execution is the
// locking discipline for the hosting branch.
func (d *Daemon) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.executeRun(ctx, ev)
		}
	}
}

func (d *Daemon) executeRun(ctx context.Context, ev event.Event) {
	cfg := d.currentConfig()
	runner := pipeline.NewRunner(cfg, d.artifacts).
		WithBucket(d.bucket).
		WithRecorder(d.recorder).
		WithHistory(d.hist).
		WithWorkspaceBase(filepath.Join(d.dataDir, "runs"))

	report, err := runner.Run(ctx, ev)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotTriggered) {
			slog.Info("Event ignored by triggers", logfields.Event(ev.String()))
			return
		}
		slog.Error("Run could not be executed", logfields.Event(ev.String()), logfields.Error(err))
		return
	}
	d.publishRunFinished(report)
}

func (d *Daemon) publishRunFinished(report *pipeline.Report) {
	if d.publisher == nil {
		return
	}
	err := d.publisher.PublishRunFinished(&notify.RunEvent{
		RunID:     report.RunID,
		Pipeline:  report.Pipeline,
		EventType: report.EventType,
		Branch:    report.Event.Branch,
		PRNumber:  report.Event.PRNumber,
		Outcome:   string(report.Outcome),
	})
	if err != nil {
		slog.Warn("Failed to publish run event", logfields.Error(err))
	}
}

// Enqueue adds an event to the run queue, rejecting when full.
func (d *Daemon) Enqueue(ev event.Event) error {
	select {
	case d.queue <- ev:
		slog.Info("Run enqueued", logfields.Event(ev.String()))
		return nil
	default:
		return fmt.Errorf("run queue full (%d pending)", queueCapacity)
	}
}

// Stop shuts the daemon down gracefully.
func (d *Daemon) Stop(ctx context.Context) error {
	var firstErr error
	d.stopOnce.Do(func() {
		if d.server != nil {
			if err := d.server.Shutdown(ctx); err != nil {
				firstErr = err
			}
		}
		if d.scheduler != nil {
			if err := d.scheduler.Stop(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if d.watcher != nil {
			_ = d.watcher.Stop(ctx)
		}
		if d.publisher != nil {
			d.publisher.Close()
		}
		if d.artifacts != nil {
			_ = d.artifacts.Close()
		}
		if d.bucket != nil {
			_ = d.bucket.Close()
		}
		if d.hist != nil {
			_ = d.hist.Close()
		}
		close(d.stopped)
	})
	return firstErr
}

// ReloadConfig swaps in a new pipeline definition; in-flight runs keep the
// config they started with.
func (d *Daemon) ReloadConfig(newCfg *config.Pipeline) {
	d.mu.Lock()
	d.cfg = newCfg
	d.mu.Unlock()
	slog.Info("Pipeline definition reloaded", logfields.Name(newCfg.Name))
}

func (d *Daemon) currentConfig() *config.Pipeline {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *Daemon) notifyConfig() *config.NotifyConfig {
	if d.cfg.Daemon == nil {
		return nil
	}
	return d.cfg.Daemon.Notify
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", d.handleWebhook)
	mux.HandleFunc("POST /dispatch", d.handleDispatch)
	mux.HandleFunc("GET /healthz", d.handleHealthz)
	mux.HandleFunc("GET /status", d.handleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	return mux
}
