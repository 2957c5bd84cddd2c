package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"clipforge/internal/logging"
	"clipforge/internal/services"
)

// Observer is notified after every stage, successful or not.
type Observer interface {
	StageFinished(kind, stage string, elapsed time.Duration, err error)
}

// Options tunes a Sequence.
type Options struct {
	// Timeout bounds each stage; zero leaves stages unbounded.
	Timeout  time.Duration
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Observer Observer
}

// Sequence runs handlers in order.
type Sequence struct {
	kind     string
	handlers []Handler
	timeout  time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
}

// NewSequence builds the stage sequence for a task kind.
func NewSequence(kind string, opts Options, handlers ...Handler) *Sequence {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("clipforge/stage")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sequence{
		kind:     kind,
		handlers: handlers,
		timeout:  opts.Timeout,
		logger:   logger,
		tracer:   tracer,
		observer: opts.Observer,
	}
}

// Kind returns the task kind this sequence serves.
func (s *Sequence) Kind() string { return s.kind }

// Names lists the stage names in execution order.
func (s *Sequence) Names() []string {
	names := make([]string, 0, len(s.handlers))
	for _, h := range s.handlers {
		names = append(names, h.Name())
	}
	return names
}

// Handlers returns the handlers in execution order.
func (s *Sequence) Handlers() []Handler {
	out := make([]Handler, len(s.handlers))
	copy(out, s.handlers)
	return out
}

// Run executes every stage against job. The first failing stage stops the
// run; later stages never start.
func (s *Sequence) Run(ctx context.Context, job *Job) error {
	ctx, span := s.tracer.Start(ctx, "task."+s.kind)
	defer span.End()

	total := len(s.handlers)
	for i, handler := range s.handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.runStage(ctx, handler, job); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, handler.Name())
			return err
		}
		// Stages report up to 95; the queue sets 100 on completion.
		job.ReportProgress((i + 1) * 95 / total)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Sequence) runStage(ctx context.Context, handler Handler, job *Job) (err error) {
	name := handler.Name()
	stageCtx := services.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, s.logger)

	stageCtx, span := s.tracer.Start(stageCtx, "stage."+name, trace.WithAttributes(
		attribute.String("clipforge.task_kind", s.kind),
		attribute.String("clipforge.stage", name),
	))
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(stageCtx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	logger.Info("stage started", logging.Event("stage_start"))

	defer func() {
		elapsed := time.Since(started)
		if s.observer != nil {
			s.observer.StageFinished(s.kind, name, elapsed, err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("stage failed",
				logging.Event("stage_failed"),
				logging.String("failure_kind", services.FailureKind(err)),
				logging.Duration("stage_duration", elapsed),
				logging.Error(err))
			return
		}
		logger.Info("stage completed",
			logging.Event("stage_complete"),
			logging.Duration("stage_duration", elapsed))
	}()

	execErr := handler.Execute(stageCtx, job)
	if execErr == nil {
		return nil
	}
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		execErr = fmt.Errorf("%w: exceeded %s: %w", services.ErrTimeout, s.timeout, execErr)
	}
	if errors.Is(execErr, context.Canceled) && ctx.Err() != nil {
		return execErr
	}
	return services.StageFailure(name, execErr)
}
