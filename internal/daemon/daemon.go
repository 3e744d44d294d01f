// Package daemon runs pagepress as a long-lived service: it serves the
// webhook endpoint, schedules periodic runs and keeps the run history.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pagepress/internal/artifact"
	"git.home.luguber.info/inful/pagepress/internal/auth"
	"git.home.luguber.info/inful/pagepress/internal/config"
	"git.home.luguber.info/inful/pagepress/internal/deploy"
	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
	"git.home.luguber.info/inful/pagepress/internal/events"
	"git.home.luguber.info/inful/pagepress/internal/eventstore"
	"git.home.luguber.info/inful/pagepress/internal/gitsource"
	"git.home.luguber.info/inful/pagepress/internal/metrics"
	"git.home.luguber.info/inful/pagepress/internal/pipeline"
	"git.home.luguber.info/inful/pagepress/internal/queue"
	"git.home.luguber.info/inful/pagepress/internal/retry"
	"git.home.luguber.info/inful/pagepress/internal/server"
	"git.home.luguber.info/inful/pagepress/internal/slug"
	"git.home.luguber.info/inful/pagepress/internal/storage"
)

// Daemon wires every component together and owns their lifecycles.
type Daemon struct {
	configPath string

	mu  sync.RWMutex
	cfg *config.Config

	store      *storage.FSStore
	eventStore *eventstore.SQLiteStore
	projection *eventstore.RunHistoryProjection
	issuer     *auth.TokenIssuer
	bus        *pipeline.Bus
	queue      *queue.RunQueue
	httpServer *server.Server
	scheduler  gocron.Scheduler
	watcher    *ConfigWatcher
	publisher  *events.Publisher
	recorder   *metrics.PrometheusRecorder
}

// New constructs a daemon from the loaded configuration.
func New(cfg *config.Config, configPath string) (*Daemon, error) {
	d := &Daemon{cfg: cfg, configPath: configPath}

	dataDir := cfg.Store.DataDir
	store, err := storage.NewFSStore(filepath.Join(dataDir, "objects"))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryDaemon, apperrors.SeverityFatal, "failed to open object store")
	}
	d.store = store

	eventStore, err := eventstore.NewSQLiteStore(filepath.Join(dataDir, "events.db"))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryDaemon, apperrors.SeverityFatal, "failed to open event store")
	}
	d.eventStore = eventStore
	d.projection = eventstore.NewRunHistoryProjection(eventStore, 100)

	d.recorder = metrics.NewPrometheusRecorder(prom.NewRegistry())

	bus := pipeline.NewBusWithEventStore(eventStore)
	bus.Subscribe(pipeline.EventRunStarted, d.applyToProjection)
	bus.Subscribe(pipeline.EventRunCompleted, d.applyToProjection)
	bus.Subscribe(pipeline.EventRunFailed, d.applyToProjection)

	if cfg.Events.NATSURL != "" {
		publisher, err := events.NewPublisher(cfg.Events)
		if err != nil {
			slog.Warn("Run event publication disabled", "error", err)
		} else {
			d.publisher = publisher
			for _, name := range []string{
				pipeline.EventRunStarted, pipeline.EventStageFailed,
				pipeline.EventRunCompleted, pipeline.EventRunFailed,
			} {
				bus.Subscribe(name, publisher.Handler())
			}
		}
	}

	d.issuer = auth.NewTokenIssuer(15 * time.Minute)
	d.bus = bus

	p, err := d.buildPipeline(cfg)
	if err != nil {
		return nil, err
	}

	d.queue = queue.NewRunQueue(p, retry.FromConfig(cfg.Retry), d.recorder)
	d.httpServer = server.New(cfg.Server, cfg.Project.Branch, d, d.recorder)

	return d, nil
}

// buildPipeline assembles the pipeline and its deployer for a configuration.
// Called again on config reload so the new settings actually take effect.
func (d *Daemon) buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	deployer := deploy.NewDeployer(cfg.Deploy, d.store, d.issuer)
	workspace := filepath.Join(cfg.Store.DataDir, "work", slug.Make(cfg.Project.Name))

	return pipeline.New(pipeline.Options{
		Config:   cfg,
		Git:      gitsource.NewClient(workspace),
		Packager: artifact.NewPackager(d.store),
		Deploy: func(ctx context.Context, runID, archiveHash, tokenValue string) (int, error) {
			dep, err := deployer.Deploy(ctx, runID, archiveHash, tokenValue)
			if err != nil {
				return 0, err
			}
			return dep.Files, nil
		},
		Issuer:   d.issuer,
		Bus:      d.bus,
		Recorder: d.recorder,
	})
}

// Run starts all components and blocks until a signal or fatal error.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.projection.Rebuild(ctx); err != nil {
		slog.Warn("Failed to rebuild run history", "error", err)
	}

	d.queue.Start(ctx)
	defer d.queue.Stop()

	if d.publisher != nil {
		defer d.publisher.Close()
	}
	defer d.eventStore.Close()

	if err := d.startScheduler(); err != nil {
		return err
	}
	if d.scheduler != nil {
		defer func() { _ = d.scheduler.Shutdown() }()
	}

	watcher, err := NewConfigWatcher(d.configPath, d.reloadConfig)
	if err != nil {
		slog.Warn("Config watching disabled", "error", err)
	} else {
		d.watcher = watcher
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("Config watching disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	cfg := d.config()
	slog.Info("Daemon started",
		"project", cfg.Project.Name,
		"branch", cfg.Project.Branch,
		"listen", cfg.Server.Listen)

	return d.httpServer.Start(ctx)
}

// startScheduler registers the periodic run when an interval is configured.
func (d *Daemon) startScheduler() error {
	schedule := d.config().Schedule
	if schedule.Interval == "" {
		return nil
	}

	interval, err := time.ParseDuration(schedule.Interval)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CategoryConfig, apperrors.SeverityFatal, "invalid schedule interval")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CategoryDaemon, apperrors.SeverityFatal, "failed to create scheduler")
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := d.TriggerRun("schedule"); err != nil {
				slog.Warn("Scheduled run not enqueued", "error", err)
			}
		}),
		gocron.WithName("scheduled-run"),
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CategoryDaemon, apperrors.SeverityFatal, "failed to schedule periodic run")
	}

	scheduler.Start()
	d.scheduler = scheduler
	slog.Info("Periodic runs scheduled", "interval", interval)
	return nil
}

func (d *Daemon) applyToProjection(e pipeline.Event) error {
	base := &eventstore.BaseEvent{
		EventRunID:     e.GetRunID(),
		EventType:      e.Name(),
		EventTimestamp: time.Now(),
	}
	switch ev := e.(type) {
	case pipeline.RunStarted:
		base.EventPayload = []byte(fmt.Sprintf(`{"group":%q,"trigger":%q}`, ev.Group, ev.Trigger))
	case pipeline.RunCompleted:
		base.EventPayload = []byte(fmt.Sprintf(`{"commit":%q}`, ev.Commit))
	case pipeline.RunFailed:
		base.EventPayload = []byte(fmt.Sprintf(`{"stage":%q,"error":%q}`, ev.Stage, ev.Err))
	}
	d.projection.Apply(base)
	return nil
}

// reloadConfig swaps in a freshly validated configuration and rewires the
// components that depend on it. Invalid files are rejected and the previous
// configuration stays active.
func (d *Daemon) reloadConfig() {
	cfg, err := config.Load(d.configPath)
	if err != nil {
		slog.Error("Config reload rejected", "error", err)
		return
	}
	p, err := d.buildPipeline(cfg)
	if err != nil {
		slog.Error("Config reload rejected", "error", err)
		return
	}

	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()

	d.queue.SetRunner(p)
	d.queue.SetPolicy(retry.FromConfig(cfg.Retry))
	d.httpServer.SetBranch(cfg.Project.Branch)
	slog.Info("Configuration reloaded", "path", d.configPath)
}

func (d *Daemon) config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// TriggerRun enqueues a new run. Implements server.Runtime.
func (d *Daemon) TriggerRun(trigger string) (string, error) {
	runID := uuid.New().String()
	err := d.queue.Enqueue(&queue.RunJob{
		ID:      runID,
		Trigger: trigger,
		Group:   d.config().Deploy.ConcurrencyGroup,
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

// ActiveRun implements server.Runtime.
func (d *Daemon) ActiveRun() *eventstore.RunSummary { return d.projection.GetActiveRun() }

// History implements server.Runtime.
func (d *Daemon) History() []*eventstore.RunSummary { return d.projection.GetHistory() }

// QueueDepth implements server.Runtime.
func (d *Daemon) QueueDepth() int { return d.queue.Depth(d.config().Deploy.ConcurrencyGroup) }

// RunReport implements server.Runtime.
func (d *Daemon) RunReport(runID string) *pipeline.RunReport {
	for _, job := range d.queue.GetHistory() {
		if job.ID == runID && job.Report != nil {
			return job.Report
		}
	}
	return nil
}
