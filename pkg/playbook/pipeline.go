package playbook

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"

	"github.com/XiaoConstantine/playbook-go/pkg/logging"
)

// NodeFunc is the wrapped agent invocation: state in, state out. The
// pipeline never mutates the incoming state in place; it passes an
// augmented copy.
type NodeFunc func(ctx context.Context, state map[string]any) (map[string]any, error)

// Well-known state keys the pipeline reads and writes.
const (
	StateInstructions = "instructions"
	StateInput        = "input"
	StateResult       = "result"
	StateMessages     = "messages"
	StateToolCalls    = "tool_calls"
)

// Pipeline wires reflection and curation into the request lifecycle
// without adding latency to the caller. Post-execution updates run on one
// background worker per namespace, so read-modify-write cycles for the
// same agent type never interleave.
type Pipeline struct {
	config    Config
	store     *Store
	reflector *Reflector
	curator   *Curator

	queueMu sync.Mutex
	queues  map[string]chan *ExecutionTrace
	closed  bool
	wg      conc.WaitGroup

	// Metrics
	executionsProcessed atomic.Int64
	insightsExtracted   atomic.Int64
	entriesAdded        atomic.Int64
	entriesRemoved      atomic.Int64
	updatesDropped      atomic.Int64
	updatesFailed       atomic.Int64
}

// NewPipeline creates an update pipeline.
func NewPipeline(config Config, store *Store, reflector *Reflector, curator *Curator) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		config:    config,
		store:     store,
		reflector: reflector,
		curator:   curator,
		queues:    make(map[string]chan *ExecutionTrace),
	}, nil
}

// WrapNode returns a node that injects the current playbook into the
// instructions before execution and schedules a background playbook update
// after it. The caller's result is never delayed or failed by the playbook
// subsystem.
func (p *Pipeline) WrapNode(agentType string, node NodeFunc) (NodeFunc, error) {
	// Unknown agent types are configuration errors; fail at wrap time.
	if _, err := p.store.namespace(agentType); err != nil {
		return nil, err
	}

	return func(ctx context.Context, state map[string]any) (map[string]any, error) {
		trace := NewExecutionTrace(agentType, stringFromState(state, StateInput))

		augmented := p.injectPlaybook(ctx, agentType, state)

		out, err := node(ctx, augmented)

		trace.Complete(stringFromState(out, StateResult), err)
		trace.Messages = messagesFromState(out)
		trace.ToolCalls = toolCallsFromState(out)
		p.schedule(trace)

		return out, err
	}, nil
}

// injectPlaybook returns a copy of state with the top playbook entries
// rendered into the instructions. Any failure here falls back to the
// unmodified instructions; the agent must never fail because the playbook
// subsystem is unhealthy.
func (p *Pipeline) injectPlaybook(ctx context.Context, agentType string, state map[string]any) map[string]any {
	logger := logging.GetLogger()

	augmented := make(map[string]any, len(state)+1)
	for k, v := range state {
		augmented[k] = v
	}

	if p.config.Mode == ModeDisabled {
		return augmented
	}

	pb, err := p.store.Get(ctx, agentType)
	if err != nil {
		logger.Warn(ctx, "playbook injection skipped for %s: %v", agentType, err)
		return augmented
	}

	rendered := RenderInjection(pb.TopEntries(p.config.MaxEntriesInPrompt))
	if rendered == "" {
		return augmented
	}

	instructions := stringFromState(augmented, StateInstructions)
	if instructions != "" {
		instructions += "\n\n"
	}
	augmented[StateInstructions] = instructions + rendered
	return augmented
}

// schedule hands the trace to the namespace's background worker. The send
// never blocks; a full queue drops the update and only operators see it.
func (p *Pipeline) schedule(trace *ExecutionTrace) {
	if p.config.Mode == ModeDisabled {
		return
	}

	p.queueMu.Lock()
	defer p.queueMu.Unlock()

	if p.closed {
		return
	}
	queue, ok := p.queues[trace.AgentType]
	if !ok {
		queue = make(chan *ExecutionTrace, p.config.QueueCapacity)
		p.queues[trace.AgentType] = queue
		p.wg.Go(func() { p.worker(queue) })
	}

	// The send stays under the mutex so Close cannot close the channel
	// between the closed check and the send. It never blocks, so holding
	// the lock across it is cheap.
	select {
	case queue <- trace:
	default:
		p.updatesDropped.Add(1)
		logging.GetLogger().Warn(context.Background(),
			"update queue full for %s, dropping update for execution %s",
			trace.AgentType, trace.ExecutionID)
	}
}

// worker is the single consumer for one namespace's pending updates.
func (p *Pipeline) worker(queue chan *ExecutionTrace) {
	for trace := range queue {
		p.processTrace(trace)
	}
}

// processTrace runs reflect -> curate -> apply -> prune -> save for one
// execution. Failures are swallowed here, logged with the stage reached,
// and never surfaced to the original caller.
func (p *Pipeline) processTrace(trace *ExecutionTrace) {
	logger := logging.GetLogger()

	ctx := logging.WithExecutionID(context.Background(), trace.ExecutionID)
	ctx = logging.WithAgentType(ctx, trace.AgentType)

	p.executionsProcessed.Add(1)

	pb, err := p.store.Get(logging.WithStage(ctx, "load"), trace.AgentType)
	if err != nil {
		p.fail(ctx, "load", err)
		return
	}

	insights, err := p.reflector.Analyze(logging.WithStage(ctx, "reflect"), trace, pb.TopEntries(p.config.MaxEntriesInReflection))
	if err != nil {
		p.fail(ctx, "reflect", err)
		return
	}
	p.insightsExtracted.Add(int64(len(insights)))

	if p.config.Mode == ModeObserve {
		logger.Info(ctx, "observe mode: %d insights extracted, no delta applied", len(insights))
		return
	}

	delta, err := p.curator.Curate(logging.WithStage(ctx, "curate"), insights, pb, trace.ExecutionID)
	if err != nil {
		p.fail(ctx, "curate", err)
		return
	}

	before := len(pb.Entries)
	pb.ApplyDelta(delta)
	p.entriesAdded.Add(int64(len(delta.Add)))

	if len(pb.Entries) > p.config.MaxEntries {
		pb.Entries = PruneEntries(pb.Entries, p.config.MinConfidence, p.config.MaxEntries)
	}
	if removed := before + len(delta.Add) - len(pb.Entries); removed > 0 {
		p.entriesRemoved.Add(int64(removed))
	}

	pb.TotalExecutions++

	if _, err := p.store.Save(logging.WithStage(ctx, "save"), pb); err != nil {
		p.fail(ctx, "save", err)
		return
	}

	logger.Debug(ctx, "playbook updated to version %d (%d entries)", pb.Version, len(pb.Entries))
}

func (p *Pipeline) fail(ctx context.Context, stage string, err error) {
	p.updatesFailed.Add(1)
	logging.GetLogger().Error(logging.WithStage(ctx, stage), "playbook update failed: %v", err)
}

// Metrics returns current counters.
func (p *Pipeline) Metrics() map[string]int64 {
	return map[string]int64{
		"executions_processed": p.executionsProcessed.Load(),
		"insights_extracted":   p.insightsExtracted.Load(),
		"entries_added":        p.entriesAdded.Load(),
		"entries_removed":      p.entriesRemoved.Load(),
		"updates_dropped":      p.updatesDropped.Load(),
		"updates_failed":       p.updatesFailed.Load(),
	}
}

// Close stops accepting updates, drains every queue and waits for the
// workers to finish.
func (p *Pipeline) Close() error {
	p.queueMu.Lock()
	if p.closed {
		p.queueMu.Unlock()
		return nil
	}
	p.closed = true
	for _, queue := range p.queues {
		close(queue)
	}
	p.queueMu.Unlock()

	p.wg.Wait()
	return nil
}

func stringFromState(state map[string]any, key string) string {
	if state == nil {
		return ""
	}
	if s, ok := state[key].(string); ok {
		return s
	}
	return ""
}

func messagesFromState(state map[string]any) []Message {
	if state == nil {
		return nil
	}
	switch v := state[StateMessages].(type) {
	case []Message:
		return v
	case []any:
		var messages []Message
		for _, item := range v {
			switch m := item.(type) {
			case Message:
				messages = append(messages, m)
			case map[string]any:
				// Loose map shapes degrade to chat messages.
				role, _ := m["role"].(string)
				content, _ := m["content"].(string)
				if role != "" || content != "" {
					messages = append(messages, ChatMessage{From: role, Content: content})
				}
			}
		}
		return messages
	}
	return nil
}

func toolCallsFromState(state map[string]any) []ToolCall {
	if state == nil {
		return nil
	}
	switch v := state[StateToolCalls].(type) {
	case []ToolCall:
		return v
	case []any:
		var calls []ToolCall
		for _, item := range v {
			if tc, ok := item.(ToolCall); ok {
				calls = append(calls, tc)
				continue
			}
			if m, ok := item.(map[string]any); ok {
				tc := ToolCall{}
				tc.Name, _ = m["name"].(string)
				tc.Result, _ = m["result"].(string)
				tc.Error, _ = m["error"].(string)
				if args, ok := m["arguments"].(map[string]any); ok {
					tc.Arguments = args
				}
				if tc.Name != "" {
					calls = append(calls, tc)
				}
			}
		}
		return calls
	}
	return nil
}
