package playbook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/playbook-go/internal/testutil"
)

func passthroughBackend() *testutil.MockExtractionBackend {
	// Treats the reasoning text itself as the structured payload, which the
	// mock model arranges to be valid JSON.
	return &testutil.MockExtractionBackend{
		Fn: func(text string, schema []byte) (json.RawMessage, error) {
			return json.RawMessage(text), nil
		},
	}
}

func newTestReflector(model *testutil.MockReasoningModel) *Reflector {
	extractor := NewStructuredExtractor(passthroughBackend(), nil, time.Second)
	return NewReflector(model, extractor, DefaultConfig())
}

func TestReflectorAnalyze(t *testing.T) {
	model := &testutil.MockReasoningModel{
		Response: `{"insights":[
			{"content":"Narrow the search query before the first tool call","category":"helpful","confidence_score":0.8},
			{"content":"Retrying the same failing query wastes the budget","category":"harmful","confidence_score":0.6}
		]}`,
	}
	r := newTestReflector(model)

	trace := NewExecutionTrace(AgentResearcher, "find recent papers")
	trace.ToolCalls = []ToolCall{{Name: "web_search", Result: "3 hits"}}
	trace.Complete("found them", nil)

	insights, err := r.Analyze(context.Background(), trace, nil)

	require.NoError(t, err)
	require.Len(t, insights, 2)
	for _, ins := range insights {
		assert.NotEmpty(t, ins.ID)
		assert.Equal(t, trace.ExecutionID, ins.ExecutionID)
		assert.Equal(t, AgentResearcher, ins.AgentType)
		assert.False(t, ins.CreatedAt.IsZero())
	}
	assert.Equal(t, CategoryHelpful, insights[0].Category)
	assert.Equal(t, CategoryHarmful, insights[1].Category)
}

func TestReflectorPromptContents(t *testing.T) {
	model := &testutil.MockReasoningModel{Response: `{"insights":[]}`}
	r := newTestReflector(model)

	trace := NewExecutionTrace(AgentResearcher, "summarize the report")
	trace.Complete("", errors.New("tool budget exceeded"))

	entries := []Entry{
		{ID: "e1", Content: "Prefer primary sources", Category: CategoryHelpful, ConfidenceScore: 0.9},
	}

	_, err := r.Analyze(context.Background(), trace, entries)
	require.NoError(t, err)

	require.Equal(t, 1, model.CallCount())
	prompt := model.Calls[0].User
	assert.Contains(t, prompt, "summarize the report")
	assert.Contains(t, prompt, "tool budget exceeded")
	assert.Contains(t, prompt, "Prefer primary sources")
	// Free-reasoning pass must not ask for structure.
	assert.NotContains(t, model.Calls[0].System, "JSON schema")
}

func TestReflectorModelFailurePropagates(t *testing.T) {
	upstream := errors.New("model unreachable")
	model := &testutil.MockReasoningModel{Err: upstream}
	r := newTestReflector(model)

	trace := NewExecutionTrace(AgentResearcher, "q")
	trace.Complete("", nil)

	_, err := r.Analyze(context.Background(), trace, nil)

	// No retry, no wrapping at this layer.
	assert.ErrorIs(t, err, upstream)
}

func TestReflectorRefine(t *testing.T) {
	model := &testutil.MockReasoningModel{
		Response: `{"insights":[{"content":"Narrow queries and cap retries at one","category":"helpful","confidence_score":0.85}]}`,
	}
	r := newTestReflector(model)

	prior := []Insight{
		{ID: "i1", Content: "Narrow queries", Category: CategoryHelpful, ConfidenceScore: 0.7, ExecutionID: "exec-7", AgentType: AgentResearcher},
	}

	refined, err := r.Refine(context.Background(), prior, "merge the retry guidance into the query rule")

	require.NoError(t, err)
	require.Len(t, refined, 1)
	assert.Equal(t, "exec-7", refined[0].ExecutionID)
	assert.Contains(t, model.Calls[0].User, "merge the retry guidance")
	assert.Contains(t, model.Calls[0].User, "Narrow queries")
}

func TestReflectorRefineRoundsBounded(t *testing.T) {
	model := &testutil.MockReasoningModel{
		Response: `{"insights":[{"content":"rule","category":"neutral","confidence_score":0.5}]}`,
	}
	cfg := DefaultConfig()
	cfg.MaxRefineRounds = 2
	extractor := NewStructuredExtractor(passthroughBackend(), nil, time.Second)
	r := NewReflector(model, extractor, cfg)

	prior := []Insight{{ID: "i1", Content: "rule", Category: CategoryNeutral}}
	feedbacks := []string{"round 1", "round 2", "round 3", "round 4"}

	_, err := r.RefineRounds(context.Background(), prior, feedbacks)

	require.NoError(t, err)
	assert.Equal(t, 2, model.CallCount())
}

func TestReflectorRefineEmptyInsights(t *testing.T) {
	model := &testutil.MockReasoningModel{}
	r := newTestReflector(model)

	refined, err := r.Refine(context.Background(), nil, "feedback")

	require.NoError(t, err)
	assert.Empty(t, refined)
	assert.Zero(t, model.CallCount())
}
