// File: internal/decision/prompts.go
package decision

import (
	"fmt"
	"strings"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
)

const planSystemPrompt = `You are a mobile task planner. Given a user's task for an Android phone,
outline the steps a human would take. Answer ONLY with JSON:
{"steps": ["<step 1>", "<step 2>", ...], "estimated_actions": <int>}
Keep steps short and concrete. The outline is advisory; do not include timings.`

const decideSystemPromptVerbose = `You are the decision brain of an Android phone agent. Each turn you
receive the user's task, the action history so far, and the current screenshot.
Choose exactly ONE next action and answer ONLY with JSON:
{"thought": "<your reasoning>", "action": "<KIND>", "target": "<element description>", "content": "<text if needed>", "task_complete": false}

Action kinds:
- TAP: tap a visible element. target describes it precisely (text, color, position).
- LONG_PRESS: press and hold a visible element.
- SWIPE: scroll. target is one of up/down/left/right (up scrolls content upward).
- TYPE: type content into the currently focused input field. TAP the field first.
- LAUNCH_APP: open an app. target is the app's name or package.
- BACK: press the hardware back key.
- HOME: go to the home screen.
- WAIT: pause briefly for the UI to finish loading.
- DONE: the task is fully complete. Set task_complete to true and explain in thought.

Rules:
- One action per turn. Base decisions only on what the screenshot shows.
- If the previous action failed or the screen did not change, try a different
  approach rather than repeating the same action.
- Reason step by step in the thought field before choosing.`

const decideSystemPromptTerse = `You are the decision brain of an Android phone agent. Given the task,
the history, and the current screenshot, choose ONE next action. Answer ONLY with JSON:
{"thought": "<one sentence>", "action": "<TAP|LONG_PRESS|SWIPE|TYPE|LAUNCH_APP|BACK|HOME|WAIT|DONE>", "target": "<element or direction>", "content": "<text if needed>", "task_complete": false}
SWIPE targets are up/down/left/right. Set task_complete=true with action DONE when finished.
Never repeat an action that just failed; keep thought to one short sentence.`

const planBatchSystemPrompt = `You are a mobile automation planner. Given a user's task for an Android
phone, produce the complete ordered action sequence to accomplish it, before
seeing any screen. Answer ONLY with JSON:
{"summary": "<one line>", "steps": [{"kind": "<KIND>", "target": "<element>", "content": "<literal text>", "needs_generation": false}, ...]}

Action kinds: TAP, LONG_PRESS, SWIPE (target up/down/left/right), TYPE,
LAUNCH_APP, BACK, HOME, WAIT.
Set needs_generation=true on a TYPE step when its text should be composed in
context at execution time (for example a message reply) instead of a literal;
leave content empty for such steps. Plan conservatively: prefer LAUNCH_APP to
navigating via the home screen, and insert WAIT after app launches.`

const replanSystemPrompt = `You are a mobile automation planner recovering a stuck run. The original
plan hit a problem partway through. You receive the task, the steps already
executed with their outcomes, the detected problem, and the remaining planned
steps. Produce a NEW action sequence that replaces everything from the failure
point onward. Answer ONLY with JSON in the same format as the original plan:
{"summary": "<one line>", "steps": [...]}
Do not repeat already-executed successful steps. Address the detected problem
first (for example dismiss a dialog, go BACK, or scroll) before continuing.`

const humanizeSystemPrompt = `You compose short, natural, human-sounding text for a phone agent that is
partway through a task. You receive the task, the recent action history, and a
description of the input field being filled. Answer with ONLY the text to type,
no quotes, no JSON, no commentary.`

// renderHistory flattens executed steps into prompt lines, most recent last.
func renderHistory(history []schemas.HistoryEntry) string {
	if len(history) == 0 {
		return "(no actions taken yet)"
	}
	var b strings.Builder
	for _, h := range history {
		status := "ok"
		if !h.Success {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "%d. %s %q", h.Index+1, h.Action, h.Target)
		if h.Content != "" {
			fmt.Fprintf(&b, " content=%q", h.Content)
		}
		fmt.Fprintf(&b, " -> %s", status)
		if h.Message != "" {
			fmt.Fprintf(&b, " (%s)", h.Message)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderAnomaly explains a detected execution pathology to the model.
func renderAnomaly(a *schemas.AnomalyContext) string {
	if a == nil {
		return ""
	}
	var what string
	switch a.Rule {
	case schemas.AnomalyScreenStuck:
		what = fmt.Sprintf("the screen has not changed across the last %d actions", a.Count)
	case schemas.AnomalyFailureStreak:
		what = fmt.Sprintf("the last %d actions failed in a row", a.Count)
	case schemas.AnomalyActionNoEffect:
		what = fmt.Sprintf("the action %s %q was repeated %d times with no visible effect", a.LastAction, a.LastTarget, a.Count)
	default:
		what = a.Detail
	}
	return fmt.Sprintf("PROBLEM DETECTED: %s. %s You must change approach.", what, a.Detail)
}

// renderSteps flattens planned steps for the replan prompt.
func renderSteps(steps []schemas.ActionStep) string {
	if len(steps) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. %s %q", i+1, s.Kind, s.Target)
		if s.Content != "" {
			fmt.Fprintf(&b, " content=%q", s.Content)
		}
		if s.NeedsGeneration {
			b.WriteString(" (content generated at execution time)")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
