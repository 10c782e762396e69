// File: api/schemas/planning.go
package schemas

// Plan is the advisory step outline produced once at task start in
// Deliberate/Responsive mode. Display only, never authoritative.
type Plan struct {
	Steps            []string `json:"steps"`
	EstimatedActions int      `json:"estimated_actions"`
}

// Decision is one unit of decision-agent output for the stepwise modes.
// TaskComplete is the designated completion value; the orchestrator treats it
// as data, not as an error condition.
type Decision struct {
	Action       ActionKind `json:"action"`
	Target       string     `json:"target,omitempty"`
	Content      string     `json:"content,omitempty"`
	Thought      string     `json:"thought,omitempty"`
	TaskComplete bool       `json:"task_complete"`
}

// Request converts the decision into the action request the perception layer
// executes.
func (d Decision) Request() ActionRequest {
	return ActionRequest{Kind: d.Action, Target: d.Target, Content: d.Content}
}

// ActionStep is one pre-planned unit of a batched sequence. Immutable once
// produced; owned by its enclosing ActionSequence.
type ActionStep struct {
	Kind            ActionKind `json:"kind"`
	Target          string     `json:"target,omitempty"`
	Content         string     `json:"content,omitempty"`
	NeedsGeneration bool       `json:"needs_generation"` // content produced just-in-time by humanize
}

// Request converts the step into an executable action request. Generated
// content, when present, overrides the planned literal.
func (s ActionStep) Request(generated string) ActionRequest {
	content := s.Content
	if generated != "" {
		content = generated
	}
	return ActionRequest{Kind: s.Kind, Target: s.Target, Content: content}
}

// ActionSequence is the batch plan for Batched mode. Replaced wholesale on
// re-plan, never mutated in place.
type ActionSequence struct {
	Steps   []ActionStep `json:"steps"`
	Summary string       `json:"summary,omitempty"`
	// Humanize lists the indices of steps whose content must be generated
	// just-in-time. Kept consistent with the per-step NeedsGeneration flags.
	Humanize []int `json:"humanize,omitempty"`
}

// HistoryEntry is one executed step as fed back into decide()/replan()
// prompts.
type HistoryEntry struct {
	Index   int        `json:"index"`
	Action  ActionKind `json:"action"`
	Target  string     `json:"target,omitempty"`
	Content string     `json:"content,omitempty"`
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Thought string     `json:"thought,omitempty"`
}

// AnomalyRule identifies which detection rule fired, in fixed priority order.
type AnomalyRule string

const (
	AnomalyScreenStuck    AnomalyRule = "SCREEN_NOT_CHANGING"
	AnomalyFailureStreak  AnomalyRule = "CONSECUTIVE_FAILURES"
	AnomalyActionNoEffect AnomalyRule = "ACTION_NO_EFFECT"
)

// AnomalyContext carries enough structured detail about a detected execution
// pathology for the decision agent to reason about recovery.
type AnomalyContext struct {
	Rule       AnomalyRule `json:"rule"`
	Count      int         `json:"count"`
	LastAction ActionKind  `json:"last_action,omitempty"`
	LastTarget string      `json:"last_target,omitempty"`
	Detail     string      `json:"detail"`
}
