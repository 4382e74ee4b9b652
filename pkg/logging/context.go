package logging

import "context"

type contextKey int

const (
	executionIDKey contextKey = iota
	agentTypeKey
	stageKey
)

// WithExecutionID annotates the context with the id of the execution whose
// background update is running.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// GetExecutionID retrieves the execution id from the context.
func GetExecutionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(executionIDKey).(string)
	return id, ok
}

// WithAgentType annotates the context with the namespace being operated on.
func WithAgentType(ctx context.Context, agentType string) context.Context {
	return context.WithValue(ctx, agentTypeKey, agentType)
}

// GetAgentType retrieves the agent type from the context.
func GetAgentType(ctx context.Context) (string, bool) {
	at, ok := ctx.Value(agentTypeKey).(string)
	return at, ok
}

// WithStage annotates the context with the current pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// GetStage retrieves the pipeline stage from the context.
func GetStage(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(stageKey).(string)
	return s, ok
}
