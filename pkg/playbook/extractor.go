package playbook

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"github.com/XiaoConstantine/playbook-go/pkg/errors"
	"github.com/XiaoConstantine/playbook-go/pkg/llm"
	"github.com/XiaoConstantine/playbook-go/pkg/logging"
)

// StructuredExtractor converts free-form reasoning text into schema-valid
// objects. The primary path asks a dedicated extraction backend; on any
// failure it walks a fallback chain: fenced JSON block, outermost brace
// pair, then a general-purpose chat model told to extract into the schema.
// Only when every step fails does Extract return ExtractionFailed.
//
// This is the failure-isolation boundary that lets the reflection and
// curation stages produce unconstrained prose and still hand typed results
// to their callers.
type StructuredExtractor struct {
	backend   llm.ExtractionBackend
	fallback  llm.ReasoningModel
	validate  *validator.Validate
	reflector *jsonschema.Reflector
	timeout   time.Duration
}

// NewStructuredExtractor creates an extractor. Both backend and fallback
// may be nil; the corresponding chain steps are then skipped.
func NewStructuredExtractor(backend llm.ExtractionBackend, fallback llm.ReasoningModel, timeout time.Duration) *StructuredExtractor {
	return &StructuredExtractor{
		backend:   backend,
		fallback:  fallback,
		validate:  validator.New(),
		reflector: &jsonschema.Reflector{DoNotReference: true},
		timeout:   timeout,
	}
}

// Extract fills out (a struct pointer) from text. hint, when non-empty, is
// passed to the fallback chat model to steer extraction.
func (x *StructuredExtractor) Extract(ctx context.Context, text string, out any, hint string) error {
	logger := logging.GetLogger()

	schema, err := x.schemaFor(out)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to derive extraction schema")
	}

	var primaryErr error
	if x.backend != nil {
		primaryErr = x.extractPrimary(ctx, text, schema, out)
		if primaryErr == nil {
			return nil
		}
		logger.Debug(ctx, "primary extraction failed, entering fallback chain: %v", primaryErr)
	} else {
		primaryErr = errors.New(errors.UpstreamCallFailed, "no extraction backend configured")
	}

	if candidate, ok := fencedJSONBlock(text); ok {
		if err := x.decode(candidate, out); err == nil {
			return nil
		}
	}

	if candidate, ok := outermostJSON(text); ok {
		if err := x.decode(candidate, out); err == nil {
			return nil
		}
	}

	if x.fallback != nil {
		if err := x.extractViaChat(ctx, text, schema, out, hint); err == nil {
			return nil
		} else {
			logger.Debug(ctx, "chat-model extraction fallback failed: %v", err)
		}
	}

	return errors.WithFields(
		errors.Wrap(primaryErr, errors.ExtractionFailed, "all extraction attempts exhausted"),
		errors.Fields{"raw_text": text},
	)
}

func (x *StructuredExtractor) extractPrimary(ctx context.Context, text string, schema []byte, out any) error {
	if err := errors.CheckContext(ctx, "extraction"); err != nil {
		return err
	}
	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	raw, err := x.backend.ExtractStructured(ctx, text, schema)
	if err != nil {
		return errors.Wrap(err, errors.UpstreamCallFailed, "extraction backend call failed")
	}
	return x.decode(string(raw), out)
}

func (x *StructuredExtractor) extractViaChat(ctx context.Context, text string, schema []byte, out any, hint string) error {
	system := "You are a precise data extraction engine. Respond with a single JSON object conforming exactly to the provided schema. No prose, no code fences."

	var user strings.Builder
	user.WriteString("Extract the information from the text below into this JSON schema:\n\n")
	user.Write(schema)
	if hint != "" {
		user.WriteString("\n\nGuidance: ")
		user.WriteString(hint)
	}
	user.WriteString("\n\nText:\n")
	user.WriteString(text)

	opts := []llm.CompleteOption{llm.WithTemperature(0.0)}
	if x.timeout > 0 {
		opts = append(opts, llm.WithTimeout(x.timeout))
	}

	response, err := x.fallback.Complete(ctx, system, user.String(), opts...)
	if err != nil {
		return errors.Wrap(err, errors.UpstreamCallFailed, "fallback model call failed")
	}

	if err := x.decode(response, out); err == nil {
		return nil
	}
	if candidate, ok := fencedJSONBlock(response); ok {
		if err := x.decode(candidate, out); err == nil {
			return nil
		}
	}
	if candidate, ok := outermostJSON(response); ok {
		return x.decode(candidate, out)
	}
	return errors.New(errors.InvalidResponse, "fallback model returned no parseable JSON")
}

// decode parses candidate JSON into out and validates it against the
// target's validation tags.
func (x *StructuredExtractor) decode(candidate string, out any) error {
	// Reset the target so a failed earlier attempt leaves no residue.
	value := reflect.ValueOf(out)
	if value.Kind() == reflect.Ptr && !value.IsNil() {
		value.Elem().Set(reflect.Zero(value.Elem().Type()))
	}

	if err := json.Unmarshal([]byte(candidate), out); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if value.Kind() == reflect.Ptr && value.Elem().Kind() == reflect.Struct {
		if err := x.validate.Struct(out); err != nil {
			return errors.Wrap(err, errors.ValidationFailed, "extracted object failed schema validation")
		}
	}
	return nil
}

func (x *StructuredExtractor) schemaFor(out any) ([]byte, error) {
	schema := x.reflector.Reflect(out)
	return json.Marshal(schema)
}

// fencedJSONBlock returns the contents of the first fenced code block
// claiming to be JSON.
func fencedJSONBlock(text string) (string, bool) {
	for _, marker := range []string{"```json", "```JSON", "```"} {
		start := strings.Index(text, marker)
		if start < 0 {
			continue
		}
		rest := text[start+len(marker):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		candidate := strings.TrimSpace(rest[:end])
		if candidate == "" {
			continue
		}
		// A bare fence only counts if its body looks like JSON.
		if marker == "```" && candidate[0] != '{' && candidate[0] != '[' {
			continue
		}
		return candidate, true
	}
	return "", false
}

// outermostJSON scans text for the outermost matching brace or bracket
// pair, skipping braces inside string literals.
func outermostJSON(text string) (string, bool) {
	start := -1
	var opener, closer byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start, opener, closer = i, '{', '}'
			break
		}
		if text[i] == '[' {
			start, opener, closer = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == opener:
			depth++
		case !inString && c == closer:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
