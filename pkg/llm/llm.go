// Package llm defines the minimal provider contracts the playbook engine
// calls out to: a reasoning model, an embedding provider and a structured
// extraction backend. Wire formats are provider concerns; this package only
// fixes the call shapes.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// ReasoningModel produces free-form text completions.
type ReasoningModel interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, options ...CompleteOption) (string, error)
}

// EmbeddingProvider turns texts into vectors, one per input, order-preserving.
type EmbeddingProvider interface {
	Embed(ctx context.Context, inputs []string) ([][]float64, error)
}

// ExtractionBackend converts free text into an object conforming to the
// given JSON schema. A failing backend is expected and recoverable; callers
// hold a fallback chain.
type ExtractionBackend interface {
	ExtractStructured(ctx context.Context, text string, jsonSchema []byte) (json.RawMessage, error)
}

// CompleteOptions holds configuration for text generation.
type CompleteOptions struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// CompleteOption represents an option for text generation.
type CompleteOption func(*CompleteOptions)

// NewCompleteOptions creates options with defaults suitable for reflection
// and curation prompts.
func NewCompleteOptions() *CompleteOptions {
	return &CompleteOptions{
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     60 * time.Second,
	}
}

func WithMaxTokens(n int) CompleteOption {
	return func(o *CompleteOptions) {
		o.MaxTokens = n
	}
}

func WithTemperature(t float64) CompleteOption {
	return func(o *CompleteOptions) {
		o.Temperature = t
	}
}

func WithTimeout(d time.Duration) CompleteOption {
	return func(o *CompleteOptions) {
		o.Timeout = d
	}
}
