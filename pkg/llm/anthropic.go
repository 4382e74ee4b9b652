package llm

import (
	"context"
	"errors"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	errs "github.com/XiaoConstantine/playbook-go/pkg/errors"
	"github.com/XiaoConstantine/playbook-go/pkg/logging"
)

// AnthropicModel implements ReasoningModel backed by the Anthropic API.
type AnthropicModel struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicModel creates a reasoning model client.
// The API key falls back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicModel(apiKey string, model anthropic.Model) (*AnthropicModel, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errs.New(errs.InvalidInput, "API key is required")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicModel{
		client: &client,
		model:  model,
	}, nil
}

// Complete implements the ReasoningModel interface.
func (a *AnthropicModel) Complete(ctx context.Context, systemPrompt, userPrompt string, options ...CompleteOption) (string, error) {
	logger := logging.GetLogger()
	opts := NewCompleteOptions()
	for _, opt := range options {
		opt(opts)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model: a.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(userPrompt),
			),
		},
		MaxTokens:   int64(opts.MaxTokens),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
		}
		return "", errs.WithFields(
			errs.Wrap(err, errs.UpstreamCallFailed, "failed to generate completion"),
			errs.Fields{
				"model":      string(a.model),
				"max_tokens": opts.MaxTokens,
			})
	}

	if message == nil || len(message.Content) == 0 {
		return "", errs.New(errs.InvalidResponse, "received empty content from Anthropic API")
	}

	var responseText string
	if block := message.Content[0]; block.Type == "text" {
		responseText = block.Text
	}

	logger.Debug(ctx, "Anthropic response: %d prompt tokens, %d completion tokens",
		message.Usage.InputTokens, message.Usage.OutputTokens)

	return responseText, nil
}
