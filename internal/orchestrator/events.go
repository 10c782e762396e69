// File: internal/orchestrator/events.go
// The closed event vocabulary of a task run. Every externally observable
// state transition maps to exactly one of these types; consumers switch
// exhaustively and a run always ends with exactly one terminal event
// (TaskCompleteEvent, ErrorEvent, or AbortedEvent).
package orchestrator

import "github.com/droidpilot/droidpilot-cli/api/schemas"

// Event is the sum type flowing over a run's event channel. The unexported
// marker keeps the set closed to this package.
type Event interface {
	Kind() string
	isEvent()
}

// PlanEvent is emitted once at task start (and again after each re-plan in
// Batched mode). Display only; never authoritative over execution.
type PlanEvent struct {
	Steps            []string `json:"steps"`
	EstimatedActions int      `json:"estimated_actions"`
}

// DecisionStartEvent marks the start of a decision-agent consultation.
type DecisionStartEvent struct {
	Stage string `json:"stage"` // "deciding", "humanizing", "replanning"
}

// DecisionThinkingEvent carries one streamed chunk of model reasoning.
type DecisionThinkingEvent struct {
	Chunk string `json:"chunk"`
}

// DecisionResultEvent reports the chosen action.
type DecisionResultEvent struct {
	Action schemas.ActionKind `json:"action"`
	Target string             `json:"target,omitempty"`
}

// VisionStartEvent marks the start of a screen recognition pass.
type VisionStartEvent struct {
	Stage string `json:"stage"`
}

// VisionRecognitionEvent reports what the vision model located.
type VisionRecognitionEvent struct {
	Description string `json:"description"`
}

// ActionStartEvent marks the start of a device interaction.
type ActionStartEvent struct {
	Action schemas.ActionKind `json:"action"`
	Target string             `json:"target,omitempty"`
}

// ActionResultEvent reports the outcome of one device interaction.
type ActionResultEvent struct {
	Action  schemas.ActionKind `json:"action"`
	Target  string             `json:"target,omitempty"`
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
}

// StepCompleteEvent marks one fully executed step. StepIndex counts
// completed steps across the whole run, including replanned sequences.
type StepCompleteEvent struct {
	StepIndex int `json:"step_index"`
}

// TaskCompleteEvent is the successful terminal event.
type TaskCompleteEvent struct {
	Message string `json:"message,omitempty"`
}

// ErrorEvent is the failure terminal event.
type ErrorEvent struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// AbortedEvent is the cancellation terminal event. Exactly one is emitted
// no matter how many times Abort is called.
type AbortedEvent struct {
	Message string `json:"message,omitempty"`
}

func (PlanEvent) Kind() string              { return "plan" }
func (DecisionStartEvent) Kind() string     { return "decision_start" }
func (DecisionThinkingEvent) Kind() string  { return "decision_thinking" }
func (DecisionResultEvent) Kind() string    { return "decision_result" }
func (VisionStartEvent) Kind() string       { return "vision_start" }
func (VisionRecognitionEvent) Kind() string { return "vision_recognition" }
func (ActionStartEvent) Kind() string       { return "action_start" }
func (ActionResultEvent) Kind() string      { return "action_result" }
func (StepCompleteEvent) Kind() string      { return "step_complete" }
func (TaskCompleteEvent) Kind() string      { return "task_complete" }
func (ErrorEvent) Kind() string             { return "error" }
func (AbortedEvent) Kind() string           { return "aborted" }

func (PlanEvent) isEvent()              {}
func (DecisionStartEvent) isEvent()     {}
func (DecisionThinkingEvent) isEvent()  {}
func (DecisionResultEvent) isEvent()    {}
func (VisionStartEvent) isEvent()       {}
func (VisionRecognitionEvent) isEvent() {}
func (ActionStartEvent) isEvent()       {}
func (ActionResultEvent) isEvent()      {}
func (StepCompleteEvent) isEvent()      {}
func (TaskCompleteEvent) isEvent()      {}
func (ErrorEvent) isEvent()             {}
func (AbortedEvent) isEvent()           {}

// IsTerminal reports whether e ends a run.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case TaskCompleteEvent, ErrorEvent, AbortedEvent:
		return true
	}
	return false
}
