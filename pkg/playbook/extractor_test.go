package playbook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/playbook-go/internal/testutil"
	perrors "github.com/XiaoConstantine/playbook-go/pkg/errors"
)

type extractTarget struct {
	Name  string  `json:"name" validate:"required"`
	Score float64 `json:"score" validate:"gte=0,lte=1"`
}

func TestExtractorPrimaryPath(t *testing.T) {
	backend := &testutil.MockExtractionBackend{
		Fn: func(text string, schema []byte) (json.RawMessage, error) {
			assert.Contains(t, string(schema), "name")
			return json.RawMessage(`{"name":"from-backend","score":0.7}`), nil
		},
	}
	x := NewStructuredExtractor(backend, nil, time.Second)

	var out extractTarget
	err := x.Extract(context.Background(), "some prose", &out, "")

	require.NoError(t, err)
	assert.Equal(t, "from-backend", out.Name)
	assert.Equal(t, 1, backend.Calls)
}

func TestExtractorFallbackChain(t *testing.T) {
	failing := &testutil.MockExtractionBackend{Err: errors.New("backend down")}

	t.Run("fenced json block", func(t *testing.T) {
		x := NewStructuredExtractor(failing, nil, time.Second)
		text := "Here is my answer:\n```json\n{\"name\":\"fenced\",\"score\":0.5}\n```\nDone."

		var out extractTarget
		require.NoError(t, x.Extract(context.Background(), text, &out, ""))
		assert.Equal(t, "fenced", out.Name)
	})

	t.Run("bare fence with json body", func(t *testing.T) {
		x := NewStructuredExtractor(failing, nil, time.Second)
		text := "```\n{\"name\":\"bare\",\"score\":0.5}\n```"

		var out extractTarget
		require.NoError(t, x.Extract(context.Background(), text, &out, ""))
		assert.Equal(t, "bare", out.Name)
	})

	t.Run("outermost brace pair", func(t *testing.T) {
		x := NewStructuredExtractor(failing, nil, time.Second)
		text := `I think the answer is {"name":"braces","score":0.2} as discussed.`

		var out extractTarget
		require.NoError(t, x.Extract(context.Background(), text, &out, ""))
		assert.Equal(t, "braces", out.Name)
	})

	t.Run("brace scan skips braces inside strings", func(t *testing.T) {
		x := NewStructuredExtractor(failing, nil, time.Second)
		text := `{"name":"tricky {inner}","score":0.1}`

		var out extractTarget
		require.NoError(t, x.Extract(context.Background(), text, &out, ""))
		assert.Equal(t, "tricky {inner}", out.Name)
	})

	t.Run("chat model last resort", func(t *testing.T) {
		model := &testutil.MockReasoningModel{
			Response: `{"name":"from-chat","score":0.9}`,
		}
		x := NewStructuredExtractor(failing, model, time.Second)

		var out extractTarget
		require.NoError(t, x.Extract(context.Background(), "no json anywhere here", &out, "extract the name"))
		assert.Equal(t, "from-chat", out.Name)
		require.Equal(t, 1, model.CallCount())
		assert.Contains(t, model.Calls[0].User, "extract the name")
	})
}

func TestExtractorSchemaValidationRejects(t *testing.T) {
	backend := &testutil.MockExtractionBackend{
		Fn: func(text string, schema []byte) (json.RawMessage, error) {
			// Valid JSON, invalid against the target's constraints.
			return json.RawMessage(`{"name":"","score":2.5}`), nil
		},
	}
	x := NewStructuredExtractor(backend, nil, time.Second)

	var out extractTarget
	err := x.Extract(context.Background(), "plain prose with no json", &out, "")

	require.Error(t, err)
	assert.Equal(t, perrors.ExtractionFailed, perrors.Code(err))
}

func TestExtractorExhaustion(t *testing.T) {
	failing := &testutil.MockExtractionBackend{Err: errors.New("backend down")}
	model := &testutil.MockReasoningModel{Response: "still no json, sorry"}
	x := NewStructuredExtractor(failing, model, time.Second)

	rawText := "completely unstructured musings"
	var out extractTarget
	err := x.Extract(context.Background(), rawText, &out, "")

	require.Error(t, err)
	assert.Equal(t, perrors.ExtractionFailed, perrors.Code(err))

	var structured *perrors.Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, rawText, structured.Fields()["raw_text"])
}

func TestExtractorCanceledContext(t *testing.T) {
	backend := &testutil.MockExtractionBackend{
		Fn: func(text string, schema []byte) (json.RawMessage, error) {
			return json.RawMessage(`{"name":"x","score":0.5}`), nil
		},
	}
	x := NewStructuredExtractor(backend, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out extractTarget
	err := x.Extract(ctx, "no json in this prose", &out, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// The backend is never called with a dead context.
	assert.Zero(t, backend.Calls)
}

func TestOutermostJSON(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
		ok       bool
	}{
		{"simple object", `noise {"a":1} noise`, `{"a":1}`, true},
		{"nested object", `{"a":{"b":2}}`, `{"a":{"b":2}}`, true},
		{"array", `result: [1,2,3]`, `[1,2,3]`, true},
		{"unclosed", `{"a":1`, "", false},
		{"none", `no json here`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := outermostJSON(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}
