package playbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is the closed union of message shapes an execution trace can
// carry. Implementations expose an explicit role and flat text content so
// trace summarization never has to guess at provider-specific shapes.
type Message interface {
	Role() string
	Text() string
}

// ChatMessage is a plain conversational turn.
type ChatMessage struct {
	From    string `json:"role"`
	Content string `json:"content"`
}

func (m ChatMessage) Role() string { return m.From }
func (m ChatMessage) Text() string { return m.Content }

// ToolMessage is a tool invocation result surfaced into the conversation.
type ToolMessage struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
	Err    string `json:"error,omitempty"`
}

func (m ToolMessage) Role() string { return "tool" }

func (m ToolMessage) Text() string {
	if m.Err != "" {
		return fmt.Sprintf("%s failed: %s", m.Tool, m.Err)
	}
	return fmt.Sprintf("%s returned: %s", m.Tool, m.Output)
}

// ToolCall records one tool invocation extracted from an execution.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// maxFinalResultLen bounds the trace's final-result excerpt.
const maxFinalResultLen = 2000

// ExecutionTrace is the record of one wrapped-agent execution handed to the
// reflector. Traces are ephemeral; they are never persisted.
type ExecutionTrace struct {
	ExecutionID string        `json:"execution_id"`
	AgentType   string        `json:"agent_type"`
	Input       string        `json:"input"`
	Messages    []Message     `json:"-"`
	ToolCalls   []ToolCall    `json:"tool_calls,omitempty"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	FinalResult string        `json:"final_result,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
}

// NewExecutionTrace starts a trace with a fresh execution id.
func NewExecutionTrace(agentType, input string) *ExecutionTrace {
	return &ExecutionTrace{
		ExecutionID: uuid.New().String(),
		AgentType:   agentType,
		Input:       input,
		StartedAt:   time.Now(),
	}
}

// Complete finalizes the trace with the outcome of the execution.
func (t *ExecutionTrace) Complete(finalResult string, err error) {
	t.CompletedAt = time.Now()
	t.Duration = t.CompletedAt.Sub(t.StartedAt)
	t.Success = err == nil
	if err != nil {
		t.Error = err.Error()
	}
	if len(finalResult) > maxFinalResultLen {
		finalResult = finalResult[:maxFinalResultLen] + "..."
	}
	t.FinalResult = finalResult
}

// Summarize renders the trace as prompt-ready text.
func (t *ExecutionTrace) Summarize() string {
	var sb strings.Builder

	outcome := "succeeded"
	if !t.Success {
		outcome = "failed"
	}
	fmt.Fprintf(&sb, "Execution %s for agent %q %s in %s.\n", t.ExecutionID, t.AgentType, outcome, t.Duration.Round(time.Millisecond))

	if t.Input != "" {
		fmt.Fprintf(&sb, "Input: %s\n", t.Input)
	}
	if t.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", t.Error)
	}

	if len(t.Messages) > 0 {
		sb.WriteString("Messages:\n")
		for _, m := range t.Messages {
			fmt.Fprintf(&sb, "- [%s] %s\n", m.Role(), m.Text())
		}
	}

	if len(t.ToolCalls) > 0 {
		sb.WriteString("Tool calls:\n")
		for _, tc := range t.ToolCalls {
			line := tc.Name
			if tc.Error != "" {
				line += " (failed: " + tc.Error + ")"
			} else if tc.Result != "" {
				result := tc.Result
				if len(result) > 200 {
					result = result[:200] + "..."
				}
				line += " -> " + result
			}
			fmt.Fprintf(&sb, "- %s\n", line)
		}
	}

	if t.FinalResult != "" {
		fmt.Fprintf(&sb, "Final result: %s\n", t.FinalResult)
	}

	return sb.String()
}
