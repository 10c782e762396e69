// File: internal/decision/agent.go
// The planning/decision side of the agent pair. It only ever talks to the
// model router; it never touches the device.
package decision

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/config"
	"github.com/droidpilot/droidpilot-cli/internal/llmutil"
	"github.com/droidpilot/droidpilot-cli/internal/observability"
)

// Agent produces plans, per-step decisions, batched sequences, recovery
// re-plans, and just-in-time generated content.
type Agent struct {
	llm      schemas.LLMClient
	lookback int
	tier     schemas.ModelTier
	verbose  bool
	logger   *zap.Logger
}

// NewAgent builds a decision agent tuned for the given mode. Deliberate runs
// on the powerful tier with the verbose prompt; Responsive trades reasoning
// depth for latency on the fast tier. Batched plans on the powerful tier.
func NewAgent(llm schemas.LLMClient, cfg config.AgentConfig, mode schemas.Mode) *Agent {
	a := &Agent{
		llm:      llm,
		lookback: cfg.HistoryLookback,
		tier:     schemas.TierPowerful,
		verbose:  true,
		logger:   observability.GetLogger().Named("decision").With(zap.String("mode", string(mode))),
	}
	if mode == schemas.ModeResponsive {
		a.tier = schemas.TierFast
		a.verbose = false
	}
	return a
}

// Plan produces the advisory step outline for the stepwise modes.
func (a *Agent) Plan(ctx context.Context, taskText string) (schemas.Plan, error) {
	raw, err := a.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: planSystemPrompt,
		UserPrompt:   "Task: " + taskText,
		Tier:         a.tier,
	})
	if err != nil {
		return schemas.Plan{}, err
	}
	plan, err := llmutil.ParseJSONResponse[schemas.Plan](raw)
	if err != nil {
		return schemas.Plan{}, fmt.Errorf("plan response unparseable: %w", err)
	}
	if plan.EstimatedActions <= 0 {
		plan.EstimatedActions = len(plan.Steps)
	}
	a.logger.Debug("Plan produced", zap.Int("steps", len(plan.Steps)))
	return *plan, nil
}

// Decide chooses the single next action given the current screenshot, the
// running history, and any pending anomaly context. When onThinking is
// non-nil the model's output is streamed through it chunk by chunk before
// the final decision is parsed.
func (a *Agent) Decide(ctx context.Context, taskText string, shot schemas.Screenshot,
	history []schemas.HistoryEntry, anomaly *schemas.AnomalyContext,
	onThinking schemas.StreamHandler) (schemas.Decision, error) {

	system := decideSystemPromptTerse
	if a.verbose {
		system = decideSystemPromptVerbose
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\nHistory:\n%s\n", taskText, renderHistory(a.trim(history)))
	if msg := renderAnomaly(anomaly); msg != "" {
		sb.WriteString("\n" + msg + "\n")
	}
	sb.WriteString("\nThe current screen is attached. Choose the next action.")

	req := schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   sb.String(),
		Images:       [][]byte{shot.PNG},
		Tier:         a.tier,
	}

	var raw string
	var err error
	if onThinking != nil {
		raw, err = a.llm.GenerateStream(ctx, req, onThinking)
	} else {
		raw, err = a.llm.Generate(ctx, req)
	}
	if err != nil {
		return schemas.Decision{}, err
	}

	decision, err := llmutil.ParseJSONResponse[schemas.Decision](raw)
	if err != nil {
		return schemas.Decision{}, fmt.Errorf("decision response unparseable: %w", err)
	}
	if decision.Action == schemas.ActionDone {
		decision.TaskComplete = true
	}
	a.logger.Debug("Decision made",
		zap.String("action", string(decision.Action)),
		zap.String("target", decision.Target),
		zap.Bool("task_complete", decision.TaskComplete))
	return *decision, nil
}

// PlanBatch produces the full action sequence for Batched mode in one shot.
func (a *Agent) PlanBatch(ctx context.Context, taskText string) (schemas.ActionSequence, error) {
	raw, err := a.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: planBatchSystemPrompt,
		UserPrompt:   "Task: " + taskText,
		Tier:         schemas.TierPowerful,
	})
	if err != nil {
		return schemas.ActionSequence{}, err
	}
	return a.parseSequence(raw)
}

// Replan produces a replacement sequence covering everything from the failure
// point onward. The executed history and the anomaly that triggered recovery
// are both part of the prompt so the model can route around the obstacle.
func (a *Agent) Replan(ctx context.Context, taskText string, executed []schemas.HistoryEntry,
	anomaly schemas.AnomalyContext, remaining []schemas.ActionStep) (schemas.ActionSequence, error) {

	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\nExecuted so far:\n%s\n", taskText, renderHistory(a.trim(executed)))
	fmt.Fprintf(&sb, "\n%s\n", renderAnomaly(&anomaly))
	fmt.Fprintf(&sb, "\nRemaining planned steps that will be discarded:\n%s\n", renderSteps(remaining))
	sb.WriteString("\nProduce the replacement sequence.")

	raw, err := a.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: replanSystemPrompt,
		UserPrompt:   sb.String(),
		Tier:         schemas.TierPowerful,
	})
	if err != nil {
		return schemas.ActionSequence{}, err
	}
	return a.parseSequence(raw)
}

// Humanize generates in-context content for a step flagged NeedsGeneration.
func (a *Agent) Humanize(ctx context.Context, taskText string, step schemas.ActionStep,
	history []schemas.HistoryEntry) (string, error) {

	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\nRecent actions:\n%s\n", taskText, renderHistory(a.trim(history)))
	fmt.Fprintf(&sb, "\nCompose the text to type into: %s", step.Target)

	raw, err := a.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: humanizeSystemPrompt,
		UserPrompt:   sb.String(),
		Tier:         a.tier,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(raw)
	text = strings.Trim(text, `"`)
	if text == "" {
		return "", fmt.Errorf("humanize produced empty content for target %q", step.Target)
	}
	return text, nil
}

// parseSequence validates a model-produced batch plan: unknown action kinds
// are rejected, and the Humanize index list is rebuilt from the per-step
// flags so the two can never disagree.
func (a *Agent) parseSequence(raw string) (schemas.ActionSequence, error) {
	seq, err := llmutil.ParseJSONResponse[schemas.ActionSequence](raw)
	if err != nil {
		return schemas.ActionSequence{}, fmt.Errorf("sequence response unparseable: %w", err)
	}
	if len(seq.Steps) == 0 {
		return schemas.ActionSequence{}, fmt.Errorf("sequence response contained no steps")
	}
	seq.Humanize = seq.Humanize[:0]
	for i, step := range seq.Steps {
		if !validStepKind(step.Kind) {
			return schemas.ActionSequence{}, fmt.Errorf("sequence step %d has unknown action kind %q", i+1, step.Kind)
		}
		if step.NeedsGeneration {
			seq.Humanize = append(seq.Humanize, i)
		}
	}
	a.logger.Debug("Sequence produced",
		zap.Int("steps", len(seq.Steps)),
		zap.Ints("humanize", seq.Humanize))
	return *seq, nil
}

func validStepKind(k schemas.ActionKind) bool {
	switch k {
	case schemas.ActionTap, schemas.ActionLongPress, schemas.ActionSwipe,
		schemas.ActionType, schemas.ActionLaunchApp, schemas.ActionBack,
		schemas.ActionHome, schemas.ActionWait:
		return true
	}
	return false
}

// trim bounds the history window sent to the model.
func (a *Agent) trim(history []schemas.HistoryEntry) []schemas.HistoryEntry {
	if a.lookback <= 0 || len(history) <= a.lookback {
		return history
	}
	return history[len(history)-a.lookback:]
}
