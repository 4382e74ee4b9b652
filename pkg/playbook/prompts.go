package playbook

import (
	"fmt"
	"strings"
)

const reflectionSystemPrompt = `You are a reflection engine for a multi-agent system. You study one
agent execution and surface durable lessons: strategies that worked,
mistakes to avoid, and conditions under which either applies. Think
freely in prose. Do not structure your output, do not emit JSON, do
not use headings. Just reason about what this execution teaches.`

const curationSystemPrompt = `You are the curator of an agent's playbook: a bounded knowledge base
of durable operating rules. Given the current playbook and new candidate
insights, decide in prose what to add, what to update, and what to
remove, with justification for each decision. Think freely; do not
structure your output or emit JSON.`

const injectionHeader = "## Playbook (learned operating rules, highest confidence first)"

// buildReflectionPrompt renders an execution trace plus up to maxEntries
// existing entries into the free-form analysis prompt.
func buildReflectionPrompt(trace *ExecutionTrace, entries []Entry, maxEntries int) string {
	var sb strings.Builder

	sb.WriteString("Analyze the following execution and reason about what durable lessons it teaches.\n\n")
	sb.WriteString(trace.Summarize())

	if len(entries) > 0 {
		if maxEntries > 0 && len(entries) > maxEntries {
			entries = entries[:maxEntries]
		}
		sb.WriteString("\nThe playbook already contains these lessons; avoid restating them:\n")
		for _, e := range entries {
			fmt.Fprintf(&sb, "- (%s, confidence %.2f) %s\n", e.Category, e.ConfidenceScore, e.Content)
		}
	}

	sb.WriteString("\nConsider: which decisions drove the outcome, which tool usages helped or hurt, what should be done differently next time, and what conditions those lessons depend on.")
	return sb.String()
}

// buildRefinePrompt seeds the reflection prompt with prior insights and
// reviewer feedback for another refinement round.
func buildRefinePrompt(insights []Insight, feedback string) string {
	var sb strings.Builder

	sb.WriteString("You previously proposed these candidate lessons:\n")
	for _, ins := range insights {
		fmt.Fprintf(&sb, "- (%s, confidence %.2f) %s\n", ins.Category, ins.ConfidenceScore, ins.Content)
	}

	sb.WriteString("\nFeedback on them:\n")
	sb.WriteString(feedback)
	sb.WriteString("\n\nRevise the lessons in light of the feedback: sharpen vague ones, drop unsupported ones, and add anything the feedback reveals. Reason freely in prose.")
	return sb.String()
}

// buildCurationPrompt shows the current playbook (up to maxEntries entries,
// highest confidence first) and the surviving insights, and asks for prose
// add/update/remove decisions.
func buildCurationPrompt(pb *Playbook, insights []Insight, maxEntries int) string {
	var sb strings.Builder

	entries := pb.TopEntries(maxEntries)
	if len(entries) == 0 {
		sb.WriteString("The playbook is currently empty.\n")
	} else {
		sb.WriteString("Current playbook entries (highest confidence first):\n")
		for _, e := range entries {
			fmt.Fprintf(&sb, "- id=%s (%s, confidence %.2f, helpful=%d harmful=%d) %s\n",
				e.ID, e.Category, e.ConfidenceScore, e.HelpfulCount, e.HarmfulCount, e.Content)
		}
	}

	sb.WriteString("\nNew candidate insights from the latest execution:\n")
	for _, ins := range insights {
		fmt.Fprintf(&sb, "- (%s, confidence %.2f) %s", ins.Category, ins.ConfidenceScore, ins.Content)
		if ins.Evidence != "" {
			fmt.Fprintf(&sb, " [evidence: %s]", ins.Evidence)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`
Decide what to add, update, or remove, with justification:
- An insight that reinforces an existing entry is an update to that entry
  (increment its helpful or harmful count), not a duplicate addition.
- Entries below confidence 0.2, entries contradicted by the new evidence,
  and entries that have not proven helpful recently are removal candidates.
- Keep the playbook small and operational; prefer fewer, sharper rules.
Refer to entries by their id.`)
	return sb.String()
}

// RenderInjection formats entries for inclusion in agent instructions.
func RenderInjection(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(injectionHeader)
	sb.WriteString("\n")
	for _, e := range entries {
		marker := "+"
		if e.Category == CategoryHarmful {
			marker = "-"
		}
		fmt.Fprintf(&sb, "%s %s (confidence %.0f%%)\n", marker, e.Content, e.ConfidenceScore*100)
	}
	return sb.String()
}
