package playbook

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Category classifies what an entry or insight teaches.
type Category string

const (
	CategoryHelpful Category = "helpful"
	CategoryHarmful Category = "harmful"
	CategoryNeutral Category = "neutral"
)

// Recognized agent types. A namespace outside this set is a configuration
// error, not a runtime one.
const (
	AgentPlanner     = "planner"
	AgentResearcher  = "researcher"
	AgentExecutor    = "executor"
	AgentCritic      = "critic"
	AgentSummarizer  = "summarizer"
	AgentCoordinator = "coordinator"
)

var recognizedAgentTypes = map[string]bool{
	AgentPlanner:     true,
	AgentResearcher:  true,
	AgentExecutor:    true,
	AgentCritic:      true,
	AgentSummarizer:  true,
	AgentCoordinator: true,
}

// IsRecognizedAgentType reports whether agentType names a valid namespace.
func IsRecognizedAgentType(agentType string) bool {
	return recognizedAgentTypes[agentType]
}

// RecognizedAgentTypes returns the sorted set of valid agent types.
func RecognizedAgentTypes() []string {
	types := make([]string, 0, len(recognizedAgentTypes))
	for t := range recognizedAgentTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Entry is a single durable lesson within a playbook.
type Entry struct {
	ID               string         `json:"id"`
	Content          string         `json:"content"`
	Category         Category       `json:"category"`
	HelpfulCount     int            `json:"helpful_count"`
	HarmfulCount     int            `json:"harmful_count"`
	ConfidenceScore  float64        `json:"confidence_score"`
	CreatedAt        time.Time      `json:"created_at"`
	LastUpdated      time.Time      `json:"last_updated"`
	SourceExecutions []string       `json:"source_executions,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// NewEntry creates an entry with a fresh id and derived confidence.
func NewEntry(content string, category Category) Entry {
	now := time.Now()
	e := Entry{
		ID:          uuid.New().String(),
		Content:     content,
		Category:    category,
		CreatedAt:   now,
		LastUpdated: now,
	}
	e.RecomputeConfidence()
	return e
}

// RecomputeConfidence derives the confidence score from the helpful and
// harmful counts using a Laplace-smoothed ratio:
//
//	confidence = (helpful + 1) / (helpful + harmful + 2)
//
// A brand-new entry starts near 0.5 and moves toward 0 or 1 only as
// evidence accumulates. This is the only place the score is set.
func (e *Entry) RecomputeConfidence() {
	h := float64(e.HelpfulCount)
	n := float64(e.HarmfulCount)
	score := (h + 1) / (h + n + 2)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	e.ConfidenceScore = score
}

// RecordSource appends an execution id to the entry's provenance, keeping
// the set ordered and duplicate-free.
func (e *Entry) RecordSource(executionID string) {
	if executionID == "" {
		return
	}
	for _, id := range e.SourceExecutions {
		if id == executionID {
			return
		}
	}
	e.SourceExecutions = append(e.SourceExecutions, executionID)
}

// HasAllTags reports whether the entry carries every tag in tags.
func (e *Entry) HasAllTags(tags []string) bool {
	for _, want := range tags {
		found := false
		for _, have := range e.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Playbook is the full versioned knowledge base for one agent type.
// Version 0 means the playbook has never been persisted.
type Playbook struct {
	AgentType       string    `json:"agent_type"`
	Entries         []Entry   `json:"entries"`
	Version         int       `json:"version"`
	TotalExecutions int       `json:"total_executions"`
	LastUpdated     time.Time `json:"last_updated"`
}

// NewPlaybook constructs an empty, never-persisted playbook.
func NewPlaybook(agentType string) *Playbook {
	return &Playbook{
		AgentType:   agentType,
		Entries:     []Entry{},
		LastUpdated: time.Now(),
	}
}

// FindEntry returns a pointer into Entries for the given id, or nil.
func (p *Playbook) FindEntry(id string) *Entry {
	for i := range p.Entries {
		if p.Entries[i].ID == id {
			return &p.Entries[i]
		}
	}
	return nil
}

// TopEntries returns up to limit entries sorted by confidence, descending.
// Ties break by id so the selection is deterministic.
func (p *Playbook) TopEntries(limit int) []Entry {
	sorted := make([]Entry, len(p.Entries))
	copy(sorted, p.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ConfidenceScore != sorted[j].ConfidenceScore {
			return sorted[i].ConfidenceScore > sorted[j].ConfidenceScore
		}
		return sorted[i].ID < sorted[j].ID
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// Insight is an ephemeral candidate lesson proposed by the reflector. It is
// never persisted standalone; it exists only between reflection output and
// curator consumption.
type Insight struct {
	ID              string    `json:"id"`
	Content         string    `json:"content" validate:"required"`
	Category        Category  `json:"category" validate:"required,oneof=helpful harmful neutral"`
	ConfidenceScore float64   `json:"confidence_score" validate:"gte=0,lte=1"`
	ExecutionID     string    `json:"execution_id,omitempty"`
	AgentType       string    `json:"agent_type,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	Evidence        string    `json:"evidence,omitempty"`
	Recommendation  string    `json:"recommendation,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// EntryUpdate is one field-level mutation of an existing entry.
type EntryUpdate struct {
	EntryID string         `json:"entry_id" validate:"required"`
	Updates map[string]any `json:"updates" validate:"required"`
}

// Delta is the curator's proposed add/update/remove mutation of a playbook.
// It is pure data with no side effects until applied.
type Delta struct {
	Add         []Entry       `json:"add,omitempty"`
	Update      []EntryUpdate `json:"update,omitempty" validate:"dive"`
	Remove      []string      `json:"remove,omitempty"`
	ExecutionID string        `json:"execution_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at,omitempty"`
}

// Empty reports whether the delta carries no mutations.
func (d *Delta) Empty() bool {
	return len(d.Add) == 0 && len(d.Update) == 0 && len(d.Remove) == 0
}

// TagCount pairs a tag with its frequency.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Stats summarizes one namespace's playbook.
type Stats struct {
	AgentType      string           `json:"agent_type"`
	Version        int              `json:"version"`
	TotalEntries   int              `json:"total_entries"`
	CategoryCounts map[Category]int `json:"category_counts"`
	MeanConfidence float64          `json:"mean_confidence"`
	TopTags        []TagCount       `json:"top_tags,omitempty"`
}
