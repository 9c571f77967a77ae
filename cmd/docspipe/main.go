package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docspipe/internal/artifact"
	"git.home.luguber.info/inful/docspipe/internal/config"
	"git.home.luguber.info/inful/docspipe/internal/daemon"
	"git.home.luguber.info/inful/docspipe/internal/event"
	"git.home.luguber.info/inful/docspipe/internal/history"
	"git.home.luguber.info/inful/docspipe/internal/pipeline"
	"git.home.luguber.info/inful/docspipe/internal/preview"
)

var version = "dev"

var CLI struct {
	Config  string           `short:"c" help:"Pipeline definition file path" default:"docspipe.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Run struct {
		Event   string `short:"e" help:"Event type: push, pull_request, dispatch, schedule" default:"push"`
		Branch  string `short:"b" help:"Branch the event refers to"`
		PR      int    `help:"Pull request number (pull_request events)"`
		Commit  string `help:"Commit SHA the event refers to"`
		RepoURL string `help:"Repository URL overriding checkout defaults"`
		DataDir string `short:"d" help:"Data directory for artifacts, previews and history" default:"./docspipe-data"`
	} `cmd:"" help:"Execute the pipeline for a single event"`

	Validate struct{} `cmd:"" help:"Validate the pipeline definition"`

	Plan struct {
		Event  string `short:"e" help:"Event type to plan for" default:"push"`
		Branch string `short:"b" help:"Branch the event refers to"`
		PR     int    `help:"Pull request number (pull_request events)"`
	} `cmd:"" help:"Show the job execution plan for an event without running it"`

	Init struct {
		Force bool `help:"Overwrite an existing pipeline definition"`
	} `cmd:"" help:"Write an example pipeline definition"`

	History struct {
		DataDir string `short:"d" help:"Data directory holding the history database" default:"./docspipe-data"`
		Limit   int    `short:"n" help:"Number of runs to show" default:"10"`
		RunID   string `help:"Show step details for one run"`
	} `cmd:"" help:"Show recent pipeline runs"`

	Daemon struct {
		DataDir string `short:"d" help:"Data directory for daemon state" default:"./docspipe-data"`
	} `cmd:"" help:"Run as a trigger server executing webhook and scheduled runs"`
}

func main() {
	ctx := kong.Parse(&CLI, kong.Vars{"version": version})

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	var err error
	switch ctx.Command() {
	case "run":
		err = runOnce()
	case "validate":
		err = runValidate()
	case "plan":
		err = runPlan()
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	case "history":
		err = runHistory()
	case "daemon":
		err = runDaemon()
	}
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func loadPipeline() (*config.Pipeline, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, fmt.Errorf("load pipeline definition: %w", err)
	}
	return cfg, nil
}

func buildEvent(evType, branch, commit, repoURL string, pr int, cfg *config.Pipeline) (event.Event, error) {
	t, err := event.Parse(evType)
	if err != nil {
		return event.Event{}, err
	}
	ev := event.Event{
		Type:     t,
		Branch:   branch,
		Commit:   commit,
		PRNumber: pr,
		RepoURL:  repoURL,
	}
	if ev.Branch == "" && ev.Type != event.PullRequest {
		ev.Branch = cfg.MainBranch
	}
	return ev, nil
}

func runOnce() error {
	cfg, err := loadPipeline()
	if err != nil {
		return err
	}
	ev, err := buildEvent(CLI.Run.Event, CLI.Run.Branch, CLI.Run.Commit, CLI.Run.RepoURL, CLI.Run.PR, cfg)
	if err != nil {
		return err
	}

	store, err := artifact.NewFSStore(filepath.Join(CLI.Run.DataDir, "artifacts"))
	if err != nil {
		return err
	}
	defer store.Close()

	bucket, err := preview.NewFSBucket(filepath.Join(CLI.Run.DataDir, "previews"))
	if err != nil {
		return err
	}
	defer bucket.Close()

	hist, err := history.NewStore(filepath.Join(CLI.Run.DataDir, "history.db"))
	if err != nil {
		return err
	}
	defer hist.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := pipeline.NewRunner(cfg, store).
		WithBucket(bucket).
		WithHistory(hist)

	report, err := runner.Run(ctx, ev)
	if err != nil {
		return err
	}
	printReport(report)
	if report.Outcome == pipeline.OutcomeFailed || report.Outcome == pipeline.OutcomeCanceled {
		os.Exit(1)
	}
	return nil
}

func runValidate() error {
	cfg, err := loadPipeline()
	if err != nil {
		return err
	}
	fmt.Printf("Pipeline %q is valid (%d jobs)\n", cfg.Name, len(cfg.Jobs))
	return nil
}

func runPlan() error {
	cfg, err := loadPipeline()
	if err != nil {
		return err
	}
	ev, err := buildEvent(CLI.Plan.Event, CLI.Plan.Branch, "", "", CLI.Plan.PR, cfg)
	if err != nil {
		return err
	}
	plan, err := pipeline.BuildPlan(cfg, ev)
	if err != nil {
		return err
	}
	fmt.Printf("Plan for %s:\n", ev.String())
	for _, inst := range plan.Instances {
		state := "run"
		if inst.Gated {
			state = "skip (gated)"
		}
		fmt.Printf("  %-30s %s\n", inst.Name(), state)
	}
	return nil
}

func runHistory() error {
	hist, err := history.NewStore(filepath.Join(CLI.History.DataDir, "history.db"))
	if err != nil {
		return err
	}
	defer hist.Close()

	ctx := context.Background()
	if CLI.History.RunID != "" {
		return printRunDetail(ctx, hist, CLI.History.RunID)
	}

	runs, err := hist.RecentRuns(ctx, CLI.History.Limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		ref := r.Branch
		if r.PRNumber > 0 {
			ref = fmt.Sprintf("PR #%d", r.PRNumber)
		}
		fmt.Printf("%s  %-9s %-13s %-20s %s\n",
			r.ID, r.Outcome, r.EventType, ref, r.StartedAt.Format(time.RFC3339))
	}
	return nil
}

func printRunDetail(ctx context.Context, hist *history.Store, runID string) error {
	run, err := hist.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s (%s, %s)\n", run.ID, run.Outcome, run.EventType)
	steps, err := hist.StepsForRun(ctx, runID)
	if err != nil {
		return err
	}
	for _, s := range steps {
		fmt.Printf("  %-20s %-30s %-9s %s\n", s.Job, s.Step, s.Outcome, s.Duration)
	}
	return nil
}

func printReport(report *pipeline.Report) {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		slog.Error("Failed to render report", "error", err)
		return
	}
	fmt.Println(string(out))
}

func runDaemon() error {
	cfg, err := loadPipeline()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg, CLI.Config, CLI.Daemon.DataDir)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping daemon")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}
	return nil
}
