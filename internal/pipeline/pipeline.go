package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/bigredeye/cqa/internal/events"
	"github.com/bigredeye/cqa/internal/executors"
	lf "github.com/bigredeye/cqa/internal/logfield"
	"github.com/bigredeye/cqa/internal/metrics"
	"github.com/bigredeye/cqa/internal/models"
)

type ExecutorNotFoundError struct {
	Step string
}

func (e *ExecutorNotFoundError) Error() string {
	return fmt.Sprintf("no executor found for step %q", e.Step)
}

type Registry interface {
	Lookup(name string) (executors.Executor, bool)
}

// Executor plays the steps of a build one after another and stops at the
// first failure. It never touches a build once it is finished.
type Executor struct {
	registry Registry
	bus      *events.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger

	slots *semaphore.Weighted
}

func NewExecutor(registry Registry, bus *events.Bus, m *metrics.Metrics, logger *zap.Logger) *Executor {
	return &Executor{
		registry: registry,
		bus:      bus,
		metrics:  m,
		logger:   logger.Named("pipeline"),
	}
}

// Limit caps the number of builds running at once. Zero means no cap.
func (e *Executor) Limit(n int64) *Executor {
	if n > 0 {
		e.slots = semaphore.NewWeighted(n)
	}
	return e
}

// Subscribe starts a pipeline for every created build.
func (e *Executor) Subscribe(ctx context.Context) {
	e.bus.Subscribe(events.BuildCreated, func(event events.Event) {
		go e.schedule(ctx, event.Build)
	})
}

func (e *Executor) schedule(ctx context.Context, build *models.Build) {
	if e.slots != nil {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			e.logger.Warn("Build was not started", lf.BuildID(build.ID), zap.Error(err))
			return
		}
		defer e.slots.Release(1)
	}
	e.Run(ctx, build)
}

func (e *Executor) Run(ctx context.Context, build *models.Build) *models.Build {
	log := e.logger.With(lf.BuildID(build.ID), lf.ProjectName(build.Project.Name), lf.Version(build.Version))
	if err := build.SetStatus(models.BuildStatusRunning); err != nil {
		log.Error("Refusing to run build", zap.Error(err))
		return build
	}
	log.Info("Running build", zap.Strings("steps", build.Project.Steps))

	for _, name := range build.Project.Steps {
		if !e.runStep(ctx, build, name) {
			break
		}
	}

	if build.HasFailedStep() {
		_ = build.SetStatus(models.BuildStatusFailed)
	} else {
		_ = build.SetStatus(models.BuildStatusSucceeded)
	}
	log.Info("Build finished", lf.BuildStatus(build.Status))
	e.metrics.BuildFinished(build.Status)
	e.bus.Publish(events.Event{Kind: events.BuildFinished, Build: build})
	return build
}

func (e *Executor) runStep(ctx context.Context, build *models.Build, name string) bool {
	step := models.NewStep(name)
	build.AddStep(step)
	log := e.logger.With(lf.BuildID(build.ID), lf.StepName(name))
	log.Info("Starting step")
	e.bus.Publish(events.Event{Kind: events.BuildStepStarted, Build: build, Step: step})

	logf := func(line string) {
		step.Logs = append(step.Logs, line)
		log.Debug("Step output", zap.String("line", line))
		e.bus.Publish(events.Event{Kind: events.BuildStepLogs, Build: build, Step: step, Line: line})
	}

	started := time.Now()
	out, err := e.execute(ctx, build, name, logf)
	e.metrics.StepFinished(name, time.Since(started))

	if err != nil {
		log.Warn("Step failed", zap.Error(err))
		logf(err.Error())
		step.Status = models.StepStatusFailed
	} else {
		step.Out = out
		if step.Out == nil {
			step.Out = models.StepOutput{}
		}
		step.Status = models.StepStatusSucceeded
		log.Info("Step succeeded")
	}
	e.bus.Publish(events.Event{Kind: events.BuildStepFinished, Build: build, Step: step})
	return err == nil
}

func (e *Executor) execute(ctx context.Context, build *models.Build, name string, logf executors.LogFunc) (out models.StepOutput, err error) {
	executor, found := e.registry.Lookup(name)
	if !found {
		return nil, &ExecutorNotFoundError{Step: name}
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %q panicked: %v", name, r)
		}
	}()
	return executor.Execute(ctx, build.Clone(), logf)
}
