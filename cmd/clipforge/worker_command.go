package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/api"
	"clipforge/internal/artifacts"
	"clipforge/internal/config"
	"clipforge/internal/events"
	"clipforge/internal/logging"
	"clipforge/internal/metrics"
	"clipforge/internal/notifications"
	"clipforge/internal/pipeline"
	"clipforge/internal/preflight"
	"clipforge/internal/queue"
	"clipforge/internal/stage"
	"clipforge/internal/tracing"
	"clipforge/internal/workflow"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Worker process commands",
	}
	workerCmd.AddCommand(newWorkerRunCommand(ctx))
	return workerCmd
}

func newWorkerRunCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool
	var concurrency int
	var workerID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the worker in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if concurrency > 0 {
				cfg.Workflow.Concurrency = concurrency
			}
			if id := strings.TrimSpace(workerID); id != "" {
				cfg.Workflow.WorkerID = id
			}
			return runWorker(cmd.Context(), cfg, skipPreflight)
		},
	}
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start even when required checks fail")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Override workflow.concurrency")
	cmd.Flags().StringVar(&workerID, "worker-id", "", "Override workflow.worker_id")
	return cmd
}

// worker bundles everything runWorker starts so shutdown can run in order.
type worker struct {
	logger   *slog.Logger
	queue    *queue.Queue
	tracing  *tracing.Provider
	nats     *events.NATSPublisher
	daemon   *workflow.Daemon
	server   *api.Server
	notifier notifications.Service
}

func runWorker(parent context.Context, cfg *config.Config, skipPreflight bool) error {
	signalCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if failed := preflight.Failed(preflight.RunAll(signalCtx, cfg)); len(failed) > 0 {
		for _, r := range failed {
			logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", r.Name),
				logging.String(logging.FieldErrorHint, r.Detail))
		}
		if !skipPreflight {
			return fmt.Errorf("%d preflight check(s) failed; run `clipforge doctor` for details", len(failed))
		}
	}

	w, err := startWorker(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	<-signalCtx.Done()
	logger.Info("clipforge worker shutting down")
	w.stop()
	return nil
}

func startWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *worker, err error) {
	w := &worker{logger: logger}
	defer func() {
		if err != nil {
			w.stop()
		}
	}()

	w.queue, err = queue.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	store, err := artifacts.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	w.tracing, err = tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	reg := metrics.New(nil)

	deps, err := pipeline.DepsFromConfig(cfg, w.queue.Redis(), store, logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline deps: %w", err)
	}
	pipe, err := pipeline.New(deps, stage.Options{
		Timeout:  cfg.Workflow.StageTimeout(),
		Logger:   logger,
		Tracer:   w.tracing.Tracer("clipforge/pipeline"),
		Observer: reg,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	hub := events.NewHub(logger)
	fanout := events.NewFanout(logger, hub)
	if cfg.Events.NATSURL != "" {
		w.nats, err = events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.Stream, cfg.Events.SubjectPrefix)
		if err != nil {
			logging.WarnWithContext(logger, "nats unavailable; events only reach websocket clients", "events_nats_unavailable",
				logging.String(logging.FieldImpact, "no durable task events"),
				logging.String(logging.FieldErrorHint, "check events.nats_url"),
				logging.Error(err))
		} else {
			fanout.Add(w.nats)
		}
	}

	w.notifier = notifications.NewService(cfg.Notifications)
	opts := workflow.OptionsFromConfig(cfg.Workflow)
	opts.Events = fanout
	opts.Metrics = reg
	opts.Notifier = w.notifier
	opts.Logger = logger
	manager := workflow.NewManager(w.queue, pipe, opts)

	w.daemon, err = workflow.NewDaemon(cfg.Paths.StateDir, manager, logger)
	if err != nil {
		return nil, err
	}
	if err := w.daemon.Start(ctx); err != nil {
		return nil, err
	}

	if cfg.API.Bind != "" {
		w.server, err = api.New(api.Dependencies{
			Queue:   w.queue,
			Workers: []api.WorkerSource{manager},
			Health:  pipe,
			Metrics: reg,
			Hub:     hub,
			Events:  fanout,
			Token:   cfg.API.Token,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		if err := w.server.Start(ctx, cfg.API.Bind); err != nil {
			return nil, err
		}
	}

	logger.Info("clipforge worker started",
		logging.String("worker_id", manager.WorkerID()),
		logging.Int("concurrency", cfg.Workflow.Concurrency),
		logging.String("queue_backend", w.queue.BackendName()),
		logging.Bool("queue_degraded", w.queue.Degraded()),
		logging.String("artifact_store", store.Name()),
		logging.Bool("tracing", w.tracing.Enabled()),
		logging.Bool("nats", w.nats != nil))
	return w, nil
}

// stop tears down in reverse start order. Safe on a partially started worker.
func (w *worker) stop() {
	if w.server != nil {
		w.server.Stop()
	}
	if w.daemon != nil {
		w.daemon.Stop()
	}
	if w.nats != nil {
		w.nats.Close()
	}
	if w.tracing != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.tracing.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn("tracing shutdown", logging.Error(err))
		}
	}
	if w.queue != nil {
		if err := w.queue.Close(); err != nil {
			w.logger.Warn("queue close", logging.Error(err))
		}
	}
}
