// Package testutil provides mock provider implementations shared across
// package tests.
package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/XiaoConstantine/playbook-go/pkg/llm"
)

// MockReasoningModel returns scripted completions in order, or a fixed
// response when only Response is set.
type MockReasoningModel struct {
	mu        sync.Mutex
	Response  string
	Responses []string
	Err       error
	Calls     []MockCompletionCall
}

// MockCompletionCall records one Complete invocation.
type MockCompletionCall struct {
	System string
	User   string
}

func (m *MockReasoningModel) Complete(ctx context.Context, systemPrompt, userPrompt string, options ...llm.CompleteOption) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCompletionCall{System: systemPrompt, User: userPrompt})
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) > 0 {
		response := m.Responses[0]
		m.Responses = m.Responses[1:]
		return response, nil
	}
	return m.Response, nil
}

// CallCount returns how many completions were requested.
func (m *MockReasoningModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockEmbeddingProvider returns canned vectors per input text, falling back
// to a cheap deterministic vector derived from the text.
type MockEmbeddingProvider struct {
	mu      sync.Mutex
	Vectors map[string][]float64
	Err     error
	Calls   [][]string
}

func (m *MockEmbeddingProvider) Embed(ctx context.Context, inputs []string) ([][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, inputs)
	if m.Err != nil {
		return nil, m.Err
	}

	out := make([][]float64, len(inputs))
	for i, text := range inputs {
		if vec, ok := m.Vectors[text]; ok {
			out[i] = vec
			continue
		}
		out[i] = hashVector(text)
	}
	return out, nil
}

// hashVector produces a stable 8-dim vector from text, so equal strings
// always embed identically without any canned setup. Tests that care about
// the similarity between distinct strings should set Vectors explicitly.
func hashVector(text string) []float64 {
	vec := make([]float64, 8)
	for i, r := range text {
		vec[i%8] += float64(r%13) + 1
	}
	return vec
}

// MockExtractionBackend delegates to Fn, or fails with Err.
type MockExtractionBackend struct {
	mu    sync.Mutex
	Fn    func(text string, schema []byte) (json.RawMessage, error)
	Err   error
	Calls int
}

func (m *MockExtractionBackend) ExtractStructured(ctx context.Context, text string, jsonSchema []byte) (json.RawMessage, error) {
	m.mu.Lock()
	m.Calls++
	fn := m.Fn
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(text, jsonSchema)
	}
	return nil, context.Canceled
}
