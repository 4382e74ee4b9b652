package playbook

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/playbook-go/pkg/llm"
	"github.com/XiaoConstantine/playbook-go/pkg/logging"
)

// insightList is the extraction target for reflection output.
type insightList struct {
	Insights []Insight `json:"insights" validate:"dive"`
}

// Reflector turns one execution trace into candidate insights using the
// two-pass pattern: free-form reasoning first, then schema-constrained
// extraction from that reasoning's output.
type Reflector struct {
	model     llm.ReasoningModel
	extractor *StructuredExtractor
	config    Config
}

// NewReflector creates a reflector.
func NewReflector(model llm.ReasoningModel, extractor *StructuredExtractor, config Config) *Reflector {
	return &Reflector{
		model:     model,
		extractor: extractor,
		config:    config,
	}
}

// Analyze produces candidate insights for the trace. Up to
// MaxEntriesInReflection current entries are shown to the model so it can
// avoid redundant insights. Reasoning-model failures propagate unchanged;
// retry policy belongs to the caller.
func (r *Reflector) Analyze(ctx context.Context, trace *ExecutionTrace, entries []Entry) ([]Insight, error) {
	logger := logging.GetLogger()

	prompt := buildReflectionPrompt(trace, entries, r.config.MaxEntriesInReflection)

	reasoning, err := r.model.Complete(ctx, reflectionSystemPrompt, prompt,
		llm.WithTimeout(r.config.CallTimeout))
	if err != nil {
		return nil, err
	}

	var list insightList
	hint := "Each insight needs content, a category of helpful, harmful or neutral, and a confidence between 0 and 1."
	if err := r.extractor.Extract(ctx, reasoning, &list, hint); err != nil {
		return nil, err
	}

	insights := r.stamp(list.Insights, trace.ExecutionID, trace.AgentType)
	logger.Debug(ctx, "reflection produced %d insights", len(insights))
	return insights, nil
}

// Refine runs one more two-pass round, seeding the prompt with the prior
// insights and the feedback text.
func (r *Reflector) Refine(ctx context.Context, insights []Insight, feedback string) ([]Insight, error) {
	if len(insights) == 0 {
		return insights, nil
	}

	prompt := buildRefinePrompt(insights, feedback)

	reasoning, err := r.model.Complete(ctx, reflectionSystemPrompt, prompt,
		llm.WithTimeout(r.config.CallTimeout))
	if err != nil {
		return nil, err
	}

	var list insightList
	if err := r.extractor.Extract(ctx, reasoning, &list, "Return the revised insight list."); err != nil {
		return nil, err
	}

	executionID, agentType := "", ""
	if len(insights) > 0 {
		executionID = insights[0].ExecutionID
		agentType = insights[0].AgentType
	}
	return r.stamp(list.Insights, executionID, agentType), nil
}

// RefineRounds applies Refine once per feedback item, bounded by
// MaxRefineRounds.
func (r *Reflector) RefineRounds(ctx context.Context, insights []Insight, feedbacks []string) ([]Insight, error) {
	rounds := len(feedbacks)
	if r.config.MaxRefineRounds > 0 && rounds > r.config.MaxRefineRounds {
		rounds = r.config.MaxRefineRounds
	}

	current := insights
	for i := 0; i < rounds; i++ {
		refined, err := r.Refine(ctx, current, feedbacks[i])
		if err != nil {
			return nil, err
		}
		current = refined
	}
	return current, nil
}

// stamp fills in identity and provenance on freshly extracted insights.
func (r *Reflector) stamp(insights []Insight, executionID, agentType string) []Insight {
	now := time.Now()
	for i := range insights {
		if insights[i].ID == "" {
			insights[i].ID = uuid.New().String()
		}
		insights[i].ExecutionID = executionID
		insights[i].AgentType = agentType
		insights[i].CreatedAt = now
		if insights[i].ConfidenceScore < 0 {
			insights[i].ConfidenceScore = 0
		}
		if insights[i].ConfidenceScore > 1 {
			insights[i].ConfidenceScore = 1
		}
	}
	return insights
}
