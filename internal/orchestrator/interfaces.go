// File: internal/orchestrator/interfaces.go
package orchestrator

import (
	"context"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
)

// DecisionAgent is the planning/reasoning collaborator. Implementations wrap
// the planning model; all methods surface ModelCallError on backend failure.
type DecisionAgent interface {
	Plan(ctx context.Context, taskText string) (schemas.Plan, error)
	Decide(ctx context.Context, taskText string, shot schemas.Screenshot,
		history []schemas.HistoryEntry, anomaly *schemas.AnomalyContext,
		onThinking schemas.StreamHandler) (schemas.Decision, error)
	PlanBatch(ctx context.Context, taskText string) (schemas.ActionSequence, error)
	Replan(ctx context.Context, taskText string, executed []schemas.HistoryEntry,
		anomaly schemas.AnomalyContext, remaining []schemas.ActionStep) (schemas.ActionSequence, error)
	Humanize(ctx context.Context, taskText string, step schemas.ActionStep,
		history []schemas.HistoryEntry) (string, error)
}

// PerceptionActuator is the observation/execution collaborator. Execute
// reports expected failures as failed outcomes; only transport failures are
// returned as errors. Implementations serialize access per device.
type PerceptionActuator interface {
	CaptureScreen(ctx context.Context) (schemas.Screenshot, error)
	Recognize(ctx context.Context, shot schemas.Screenshot, target string) (schemas.RecognitionResult, error)
	Execute(ctx context.Context, req schemas.ActionRequest, hooks *schemas.ExecHooks) (schemas.ActionOutcome, error)
}
