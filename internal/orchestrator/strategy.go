// File: internal/orchestrator/strategy.go
package orchestrator

import (
	"context"
	"fmt"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
)

// strategy is one mode's control flow over the decision/perception pair.
// Selected once at task start.
type strategy interface {
	run(ctx context.Context, o *Orchestrator, task Task, r *Run, mon *AnomalyMonitor) error
}

func selectStrategy(mode schemas.Mode) strategy {
	if mode == schemas.ModeBatched {
		return batchedStrategy{}
	}
	return stepwiseStrategy{}
}

// visionHooks forwards perception progress into the run's event stream.
func visionHooks(r *Run) *schemas.ExecHooks {
	return &schemas.ExecHooks{
		OnVisionStart: func() {
			r.emit(VisionStartEvent{Stage: "recognizing"})
		},
		OnVisionResult: func(res schemas.RecognitionResult) {
			r.emit(VisionRecognitionEvent{Description: res.Description})
		},
	}
}

// abortOr maps an error at a suspension point: cancellation always wins over
// a concurrently forming failure.
func abortOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrAborted
	}
	return err
}

// stepwiseStrategy drives Deliberate and Responsive runs: one decision, one
// action, one observation per round, until the decision agent signals
// completion or the step budget runs out. The two modes share this control
// flow; they differ only in the agent's model tier and prompt verbosity.
type stepwiseStrategy struct{}

// lastInteraction defers the anomaly observation of an executed action until
// the next round's screen capture, so the fingerprint reflects the action's
// effect.
type lastInteraction struct {
	req     schemas.ActionRequest
	success bool
}

func (stepwiseStrategy) run(ctx context.Context, o *Orchestrator, task Task, r *Run, mon *AnomalyMonitor) error {
	plan, err := o.decider.Plan(ctx, task.Text)
	if err != nil {
		return abortOr(ctx, err)
	}
	r.emit(PlanEvent{Steps: plan.Steps, EstimatedActions: plan.EstimatedActions})

	var (
		history []schemas.HistoryEntry
		pending *schemas.AnomalyContext
		last    *lastInteraction
	)

	for step := 0; step < o.cfg.MaxSteps; step++ {
		if ctx.Err() != nil {
			return ErrAborted
		}
		shot, err := o.actuator.CaptureScreen(ctx)
		if err != nil {
			return abortOr(ctx, err)
		}
		if last != nil {
			if a := mon.Observe(shot.Fingerprint, last.req, last.success); a != nil {
				pending = a
			}
			last = nil
		}

		if ctx.Err() != nil {
			return ErrAborted
		}
		r.emit(DecisionStartEvent{Stage: "deciding"})
		decision, err := o.decider.Decide(ctx, task.Text, shot, history, pending,
			func(chunk string) { r.emit(DecisionThinkingEvent{Chunk: chunk}) })
		if err != nil {
			return abortOr(ctx, err)
		}
		pending = nil
		r.emit(DecisionResultEvent{Action: decision.Action, Target: decision.Target})

		if decision.TaskComplete {
			return nil
		}

		req := decision.Request()
		if ctx.Err() != nil {
			return ErrAborted
		}
		r.emit(ActionStartEvent{Action: req.Kind, Target: req.Target})
		outcome, err := o.actuator.Execute(ctx, req, visionHooks(r))
		if err != nil {
			return abortOr(ctx, err)
		}
		if ctx.Err() != nil {
			// Abort arrived while the action was in flight: its outcome is
			// discarded, no further events for it.
			return ErrAborted
		}
		r.emit(ActionResultEvent{
			Action:  outcome.Kind,
			Target:  outcome.Target,
			Success: outcome.Success,
			Message: outcome.Message,
		})
		history = append(history, schemas.HistoryEntry{
			Index:   step,
			Action:  req.Kind,
			Target:  req.Target,
			Content: req.Content,
			Success: outcome.Success,
			Message: outcome.Message,
			Thought: decision.Thought,
		})
		r.emit(StepCompleteEvent{StepIndex: step})
		last = &lastInteraction{req: req, success: outcome.Success}
	}
	return ErrStepBudgetExceeded
}

// batchedStrategy plans the full action sequence up front and executes it,
// re-planning from the failure point when the anomaly monitor fires, until
// the replan budget is consumed.
type batchedStrategy struct{}

func (batchedStrategy) run(ctx context.Context, o *Orchestrator, task Task, r *Run, mon *AnomalyMonitor) error {
	seq, err := o.decider.PlanBatch(ctx, task.Text)
	if err != nil {
		return abortOr(ctx, err)
	}
	r.emit(sequencePlanEvent(seq))

	budget := o.cfg.MaxReplans
	completed := 0
	var history []schemas.HistoryEntry

	i := 0
	for i < len(seq.Steps) {
		if ctx.Err() != nil {
			return ErrAborted
		}
		step := seq.Steps[i]

		var generated string
		var genErr error
		if step.NeedsGeneration {
			r.emit(DecisionStartEvent{Stage: "humanizing"})
			generated, genErr = o.decider.Humanize(ctx, task.Text, step, history)
			if genErr != nil && ctx.Err() != nil {
				return ErrAborted
			}
		}

		req := step.Request(generated)
		if ctx.Err() != nil {
			return ErrAborted
		}
		r.emit(ActionStartEvent{Action: req.Kind, Target: req.Target})

		var outcome schemas.ActionOutcome
		if genErr != nil {
			// A model failure mid-sequence is a step failure, recoverable by
			// re-planning, not a fatal error.
			outcome = schemas.ActionOutcome{
				Kind: req.Kind, Target: req.Target,
				Success: false,
				Message: fmt.Sprintf("content generation failed: %v", genErr),
			}
		} else {
			outcome, err = o.actuator.Execute(ctx, req, visionHooks(r))
			if err != nil {
				if ctx.Err() != nil {
					return ErrAborted
				}
				outcome = schemas.ActionOutcome{
					Kind: req.Kind, Target: req.Target,
					Success: false,
					Message: err.Error(),
				}
			}
		}
		if ctx.Err() != nil {
			return ErrAborted
		}
		r.emit(ActionResultEvent{
			Action:  outcome.Kind,
			Target:  outcome.Target,
			Success: outcome.Success,
			Message: outcome.Message,
		})

		shot, err := o.actuator.CaptureScreen(ctx)
		if err != nil {
			return abortOr(ctx, err)
		}
		anomaly := mon.Observe(shot.Fingerprint, req, outcome.Success)

		history = append(history, schemas.HistoryEntry{
			Index:   len(history),
			Action:  req.Kind,
			Target:  req.Target,
			Content: req.Content,
			Success: outcome.Success,
			Message: outcome.Message,
		})

		if anomaly == nil {
			if outcome.Success {
				r.emit(StepCompleteEvent{StepIndex: completed})
				completed++
			}
			i++
			continue
		}

		if budget == 0 {
			return fmt.Errorf("%w: anomaly %s after %d replans", ErrReplanExhausted, anomaly.Rule, o.cfg.MaxReplans)
		}
		budget--
		if ctx.Err() != nil {
			return ErrAborted
		}
		r.emit(DecisionStartEvent{Stage: "replanning"})
		newSeq, err := o.decider.Replan(ctx, task.Text, history, *anomaly, seq.Steps[i:])
		if err != nil {
			return abortOr(ctx, err)
		}
		// The new sequence replaces everything from the failure point forward.
		seq = newSeq
		i = 0
		r.emit(sequencePlanEvent(seq))
	}
	return nil
}

// sequencePlanEvent renders a batch sequence as the display-oriented plan
// event.
func sequencePlanEvent(seq schemas.ActionSequence) PlanEvent {
	steps := make([]string, len(seq.Steps))
	for i, s := range seq.Steps {
		if s.Target != "" {
			steps[i] = fmt.Sprintf("%s %s", s.Kind, s.Target)
		} else {
			steps[i] = string(s.Kind)
		}
	}
	return PlanEvent{Steps: steps, EstimatedActions: len(seq.Steps)}
}
