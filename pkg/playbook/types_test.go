package playbook

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecomputeConfidence(t *testing.T) {
	tests := []struct {
		helpful  int
		harmful  int
		expected float64
	}{
		{0, 0, 0.5},
		{1, 0, 2.0 / 3.0},
		{0, 1, 1.0 / 3.0},
		{9, 0, 10.0 / 11.0},
		{0, 9, 1.0 / 11.0},
		{5, 5, 0.5},
		{100, 0, 101.0 / 102.0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("h=%d,n=%d", tt.helpful, tt.harmful), func(t *testing.T) {
			e := Entry{HelpfulCount: tt.helpful, HarmfulCount: tt.harmful}
			e.RecomputeConfidence()
			assert.InDelta(t, tt.expected, e.ConfidenceScore, 0.0001)
			assert.GreaterOrEqual(t, e.ConfidenceScore, 0.0)
			assert.LessOrEqual(t, e.ConfidenceScore, 1.0)
		})
	}
}

func TestNewEntry(t *testing.T) {
	e := NewEntry("Always check errors", CategoryHelpful)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, CategoryHelpful, e.Category)
	assert.InDelta(t, 0.5, e.ConfidenceScore, 0.0001)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestRecordSource(t *testing.T) {
	e := NewEntry("x", CategoryNeutral)

	e.RecordSource("exec-1")
	e.RecordSource("exec-2")
	e.RecordSource("exec-1") // duplicate
	e.RecordSource("")       // ignored

	assert.Equal(t, []string{"exec-1", "exec-2"}, e.SourceExecutions)
}

func TestHasAllTags(t *testing.T) {
	e := Entry{Tags: []string{"search", "citation"}}

	assert.True(t, e.HasAllTags(nil))
	assert.True(t, e.HasAllTags([]string{"search"}))
	assert.True(t, e.HasAllTags([]string{"citation", "search"}))
	assert.False(t, e.HasAllTags([]string{"search", "latency"}))
}

func TestTopEntries(t *testing.T) {
	pb := NewPlaybook(AgentResearcher)
	pb.Entries = []Entry{
		{ID: "b", ConfidenceScore: 0.5},
		{ID: "a", ConfidenceScore: 0.9},
		{ID: "c", ConfidenceScore: 0.5},
		{ID: "d", ConfidenceScore: 0.7},
	}

	top := pb.TopEntries(3)

	assert.Len(t, top, 3)
	assert.Equal(t, "a", top[0].ID)
	assert.Equal(t, "d", top[1].ID)
	// Tie at 0.5 breaks by id.
	assert.Equal(t, "b", top[2].ID)

	// The playbook's own order is untouched.
	assert.Equal(t, "b", pb.Entries[0].ID)
}

func TestIsRecognizedAgentType(t *testing.T) {
	for _, at := range RecognizedAgentTypes() {
		assert.True(t, IsRecognizedAgentType(at))
	}
	assert.False(t, IsRecognizedAgentType("unknown-agent"))
	assert.False(t, IsRecognizedAgentType(""))
	assert.Len(t, RecognizedAgentTypes(), 6)
}

func TestNewPlaybook(t *testing.T) {
	pb := NewPlaybook(AgentPlanner)

	assert.Equal(t, AgentPlanner, pb.AgentType)
	assert.Equal(t, 0, pb.Version)
	assert.Empty(t, pb.Entries)
	assert.NotNil(t, pb.Entries)
}

func TestDeltaEmpty(t *testing.T) {
	assert.True(t, (&Delta{}).Empty())
	assert.False(t, (&Delta{Remove: []string{"id"}}).Empty())
	assert.False(t, (&Delta{Add: []Entry{{}}}).Empty())
}
