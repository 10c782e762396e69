// File: internal/orchestrator/orchestrator.go
// The state machine driving one task to completion: it alternates between
// the decision agent and the perception actuator, feeds every device
// interaction to the anomaly monitor, and emits a typed event for each
// externally observable transition.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/config"
	"github.com/droidpilot/droidpilot-cli/internal/observability"
)

type Orchestrator struct {
	decider  DecisionAgent
	actuator PerceptionActuator
	cfg      config.AgentConfig
	logger   *zap.Logger
}

func New(decider DecisionAgent, actuator PerceptionActuator, cfg config.AgentConfig) *Orchestrator {
	return &Orchestrator{
		decider:  decider,
		actuator: actuator,
		cfg:      cfg,
		logger:   observability.GetLogger().Named("orchestrator"),
	}
}

// RunOption customizes one run.
type RunOption func(*Run)

// WithCleanup registers a function invoked exactly once after the run's
// terminal event, typically to release the device lease.
func WithCleanup(fn func()) RunOption {
	return func(r *Run) { r.cleanup = fn }
}

// Start launches the task and returns its handle immediately. The caller
// must drain Events() until it closes. Exactly one terminal event is
// emitted per run, whatever happens.
func (o *Orchestrator) Start(ctx context.Context, task Task, opts ...RunOption) *Run {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.Mode == "" {
		task.Mode = schemas.ModeDeliberate
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		Task:   task,
		events: make(chan Event, o.cfg.EventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}

	go o.execute(runCtx, task, r)
	return r
}

func (o *Orchestrator) execute(ctx context.Context, task Task, r *Run) {
	defer close(r.done)
	defer func() {
		if r.cleanup != nil {
			r.cleanup()
		}
	}()
	defer close(r.events)
	defer r.cancel()

	logger := o.logger.With(
		zap.String("task_id", task.ID),
		zap.String("mode", string(task.Mode)))
	logger.Info("Task run starting", zap.String("text", task.Text))

	mon := NewAnomalyMonitor(o.cfg.Anomaly)
	strat := selectStrategy(task.Mode)
	err := strat.run(ctx, o, task, r, mon)

	switch {
	case r.Aborted() || errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled):
		logger.Info("Task run aborted")
		r.emit(AbortedEvent{Message: "task aborted"})
	case err != nil:
		logger.Warn("Task run failed", zap.String("error_kind", errorKind(err)), zap.Error(err))
		r.emit(ErrorEvent{ErrorKind: errorKind(err), Message: err.Error()})
	default:
		logger.Info("Task run completed")
		r.emit(TaskCompleteEvent{Message: "task completed"})
	}
}
