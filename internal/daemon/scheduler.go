package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/docspipe/internal/config"
	"git.home.luguber.info/inful/docspipe/internal/event"
	"git.home.luguber.info/inful/docspipe/internal/logfields"
)

// Scheduler wraps a gocron scheduler that turns schedule triggers into
// enqueued schedule events.
type Scheduler struct {
	scheduler gocron.Scheduler
	enqueuer  interface {
		Enqueue(ev event.Event) error
	}
}

// NewScheduler creates a scheduler feeding the given enqueuer.
func NewScheduler(enqueuer interface{ Enqueue(ev event.Event) error }) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, enqueuer: enqueuer}, nil
}

// ScheduleRuns registers the pipeline's schedule trigger.
func (s *Scheduler) ScheduleRuns(trigger *config.ScheduleTrigger) error {
	interval, err := time.ParseDuration(trigger.Every)
	if err != nil {
		return fmt.Errorf("invalid schedule interval %q: %w", trigger.Every, err)
	}
	_, err = s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.fireScheduledRun),
		gocron.WithName("scheduled-run"),
	)
	if err != nil {
		return fmt.Errorf("create scheduled run job: %w", err)
	}
	slog.Info("Scheduled runs registered", slog.Duration("every", interval))
	return nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	return s.scheduler.Shutdown()
}

// fireScheduledRun is invoked by gocron on each tick.
func (s *Scheduler) fireScheduledRun() {
	ev := event.Event{Type: event.Schedule}
	if err := s.enqueuer.Enqueue(ev); err != nil {
		slog.Error("Failed to enqueue scheduled run", logfields.Error(err))
	}
}
