// File: internal/decision/agent_test.go
package decision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockLLM struct {
	mock.Mock
}

// The mock must track the real client contract exactly.
var _ schemas.LLMClient = (*mockLLM)(nil)

func (m *mockLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLM) GenerateStream(ctx context.Context, req schemas.GenerationRequest, onChunk schemas.StreamHandler) (string, error) {
	args := m.Called(ctx, req, onChunk)
	full := args.String(0)
	if onChunk != nil && args.Error(1) == nil {
		// Replay the response as two chunks, like a real streaming backend.
		half := len(full) / 2
		onChunk(full[:half])
		onChunk(full[half:])
	}
	return full, args.Error(1)
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{HistoryLookback: 8}
}

func TestPlanParsesOutline(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return("```json\n{\"steps\": [\"Open Settings\", \"Tap Wi-Fi\"], \"estimated_actions\": 3}\n```", nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeDeliberate)
	plan, err := agent.Plan(context.Background(), "turn on wifi")
	require.NoError(t, err)
	assert.Equal(t, []string{"Open Settings", "Tap Wi-Fi"}, plan.Steps)
	assert.Equal(t, 3, plan.EstimatedActions)
}

func TestPlanDefaultsEstimateToStepCount(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"steps": ["a", "b"], "estimated_actions": 0}`, nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeDeliberate)
	plan, err := agent.Plan(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, 2, plan.EstimatedActions)
}

func TestModeSelectsTierAndVerbosity(t *testing.T) {
	for _, tc := range []struct {
		mode    schemas.Mode
		tier    schemas.ModelTier
		verbose bool
	}{
		{schemas.ModeDeliberate, schemas.TierPowerful, true},
		{schemas.ModeResponsive, schemas.TierFast, false},
		{schemas.ModeBatched, schemas.TierPowerful, true},
	} {
		agent := NewAgent(&mockLLM{}, testAgentConfig(), tc.mode)
		assert.Equal(t, tc.tier, agent.tier, "mode %s", tc.mode)
		assert.Equal(t, tc.verbose, agent.verbose, "mode %s", tc.mode)
	}
}

func TestDecideParsesAction(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return len(req.Images) == 1 && strings.Contains(req.UserPrompt, "turn on wifi")
	})).Return(`{"thought": "the toggle is visible", "action": "TAP", "target": "Wi-Fi toggle", "task_complete": false}`, nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeDeliberate)
	dec, err := agent.Decide(context.Background(), "turn on wifi",
		schemas.Screenshot{PNG: []byte{1, 2}}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionTap, dec.Action)
	assert.Equal(t, "Wi-Fi toggle", dec.Target)
	assert.False(t, dec.TaskComplete)
}

func TestDecideDoneImpliesTaskComplete(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"thought": "wifi is on", "action": "DONE", "task_complete": false}`, nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeDeliberate)
	dec, err := agent.Decide(context.Background(), "task", schemas.Screenshot{}, nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, dec.TaskComplete, "DONE must imply completion even if the flag is missing")
}

func TestDecideStreamsThinking(t *testing.T) {
	response := `{"thought": "tapping", "action": "TAP", "target": "button", "task_complete": false}`
	llm := &mockLLM{}
	llm.On("GenerateStream", mock.Anything, mock.Anything, mock.Anything).Return(response, nil)

	var chunks []string
	agent := NewAgent(llm, testAgentConfig(), schemas.ModeResponsive)
	dec, err := agent.Decide(context.Background(), "task", schemas.Screenshot{}, nil, nil,
		func(chunk string) { chunks = append(chunks, chunk) })
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionTap, dec.Action)
	assert.Equal(t, response, strings.Join(chunks, ""))
	llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestDecideIncludesAnomalyInPrompt(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return strings.Contains(req.UserPrompt, "PROBLEM DETECTED") &&
			strings.Contains(req.UserPrompt, "has not changed")
	})).Return(`{"thought": "x", "action": "BACK", "task_complete": false}`, nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeDeliberate)
	_, err := agent.Decide(context.Background(), "task", schemas.Screenshot{}, nil,
		&schemas.AnomalyContext{Rule: schemas.AnomalyScreenStuck, Count: 3, Detail: "screen fingerprint unchanged"}, nil)
	require.NoError(t, err)
	llm.AssertExpectations(t)
}

func TestDecideHistoryLookbackWindow(t *testing.T) {
	history := make([]schemas.HistoryEntry, 20)
	for i := range history {
		history[i] = schemas.HistoryEntry{Index: i, Action: schemas.ActionTap, Target: "item", Success: true}
	}

	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		// Entry 12 (rendered as "13.") is the first inside an 8-entry window.
		return !strings.Contains(req.UserPrompt, "12. TAP") &&
			strings.Contains(req.UserPrompt, "13. TAP") &&
			strings.Contains(req.UserPrompt, "20. TAP")
	})).Return(`{"thought": "x", "action": "WAIT", "task_complete": false}`, nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeDeliberate)
	_, err := agent.Decide(context.Background(), "task", schemas.Screenshot{}, history, nil, nil)
	require.NoError(t, err)
	llm.AssertExpectations(t)
}

func TestPlanBatchRebuildsHumanizeIndices(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).Return(`{
		"summary": "reply to the message",
		"steps": [
			{"kind": "LAUNCH_APP", "target": "Messages"},
			{"kind": "TAP", "target": "latest conversation"},
			{"kind": "TAP", "target": "message input field"},
			{"kind": "TYPE", "target": "message input field", "needs_generation": true},
			{"kind": "TAP", "target": "send button"}
		],
		"humanize": [0, 1]
	}`, nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeBatched)
	seq, err := agent.PlanBatch(context.Background(), "reply to the latest message")
	require.NoError(t, err)
	require.Len(t, seq.Steps, 5)
	assert.Equal(t, []int{3}, seq.Humanize, "humanize indices come from the per-step flags, not the model's list")
}

func TestPlanBatchRejectsUnknownKind(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"summary": "x", "steps": [{"kind": "TELEPORT", "target": "somewhere"}]}`, nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeBatched)
	_, err := agent.PlanBatch(context.Background(), "task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action kind")
}

func TestPlanBatchRejectsEmptySequence(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"summary": "nothing to do", "steps": []}`, nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeBatched)
	_, err := agent.PlanBatch(context.Background(), "task")
	require.Error(t, err)
}

func TestReplanPromptCarriesExecutedAndAnomaly(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return strings.Contains(req.UserPrompt, "Executed so far") &&
			strings.Contains(req.UserPrompt, "PROBLEM DETECTED") &&
			strings.Contains(req.UserPrompt, "will be discarded")
	})).Return(`{"summary": "recover", "steps": [{"kind": "BACK"}, {"kind": "TAP", "target": "retry"}]}`, nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeBatched)
	seq, err := agent.Replan(context.Background(), "task",
		[]schemas.HistoryEntry{{Index: 0, Action: schemas.ActionLaunchApp, Target: "Messages", Success: true}},
		schemas.AnomalyContext{Rule: schemas.AnomalyFailureStreak, Count: 2, Detail: "two taps failed"},
		[]schemas.ActionStep{{Kind: schemas.ActionTap, Target: "send button"}})
	require.NoError(t, err)
	assert.Len(t, seq.Steps, 2)
	llm.AssertExpectations(t)
}

func TestHumanizeStripsQuotes(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).Return("\"Sounds great, see you at 7!\"\n", nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeBatched)
	text, err := agent.Humanize(context.Background(), "reply to dinner invite",
		schemas.ActionStep{Kind: schemas.ActionType, Target: "message input field", NeedsGeneration: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Sounds great, see you at 7!", text)
}

func TestHumanizeEmptyContentIsError(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).Return("  \n", nil)

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeBatched)
	_, err := agent.Humanize(context.Background(), "task",
		schemas.ActionStep{Kind: schemas.ActionType, Target: "field"}, nil)
	require.Error(t, err)
}

func TestModelErrorsPropagate(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("upstream timeout"))

	agent := NewAgent(llm, testAgentConfig(), schemas.ModeDeliberate)
	_, err := agent.Plan(context.Background(), "task")
	require.Error(t, err)
	_, err = agent.PlanBatch(context.Background(), "task")
	require.Error(t, err)
}
