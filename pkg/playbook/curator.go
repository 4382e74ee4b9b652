package playbook

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/playbook-go/pkg/errors"
	"github.com/XiaoConstantine/playbook-go/pkg/llm"
	"github.com/XiaoConstantine/playbook-go/pkg/logging"
)

// Curator turns candidate insights plus the current playbook into an
// add/update/remove delta. Semantic de-duplication runs before any
// reasoning call; it is the main defense against unbounded growth.
type Curator struct {
	model     llm.ReasoningModel
	embedder  llm.EmbeddingProvider
	extractor *StructuredExtractor
	config    Config
}

// NewCurator creates a curator.
func NewCurator(model llm.ReasoningModel, embedder llm.EmbeddingProvider, extractor *StructuredExtractor, config Config) *Curator {
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = 0.85
	}
	return &Curator{
		model:     model,
		embedder:  embedder,
		extractor: extractor,
		config:    config,
	}
}

// Curate produces a delta for the playbook. De-duplication drops insights
// whose cosine similarity to any existing entry meets the threshold; the
// survivors go through the two-pass curation reasoning.
func (c *Curator) Curate(ctx context.Context, insights []Insight, pb *Playbook, executionID string) (*Delta, error) {
	logger := logging.GetLogger()

	delta := &Delta{
		ExecutionID: executionID,
		CreatedAt:   time.Now(),
	}
	if len(insights) == 0 {
		return delta, nil
	}

	survivors, err := c.Deduplicate(ctx, insights, pb.Entries)
	if err != nil {
		return nil, err
	}
	if dropped := len(insights) - len(survivors); dropped > 0 {
		logger.Debug(ctx, "deduplication dropped %d of %d insights", dropped, len(insights))
	}
	if len(survivors) == 0 {
		return delta, nil
	}

	prompt := buildCurationPrompt(pb, survivors, c.config.MaxEntriesInCuration)

	reasoning, err := c.model.Complete(ctx, curationSystemPrompt, prompt,
		llm.WithTimeout(c.config.CallTimeout))
	if err != nil {
		return nil, err
	}

	extracted := &Delta{}
	hint := "add holds fully formed new entries, update holds {entry_id, updates} pairs, remove holds entry ids."
	if err := c.extractor.Extract(ctx, reasoning, extracted, hint); err != nil {
		return nil, err
	}

	extracted.ExecutionID = executionID
	extracted.CreatedAt = time.Now()
	return extracted, nil
}

// Deduplicate embeds insight and entry contents (one batched call per
// side, issued concurrently) and drops every insight whose maximum cosine
// similarity against the entries meets the configured threshold.
func (c *Curator) Deduplicate(ctx context.Context, insights []Insight, entries []Entry) ([]Insight, error) {
	if len(insights) == 0 || len(entries) == 0 {
		return insights, nil
	}

	insightTexts := make([]string, len(insights))
	for i, ins := range insights {
		insightTexts[i] = ins.Content
	}
	entryTexts := make([]string, len(entries))
	for i, e := range entries {
		entryTexts[i] = e.Content
	}

	var insightVecs, entryVecs [][]float64

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		vecs, err := c.embed(ctx, insightTexts)
		if err != nil {
			return err
		}
		insightVecs = vecs
		return nil
	})
	p.Go(func(ctx context.Context) error {
		vecs, err := c.embed(ctx, entryTexts)
		if err != nil {
			return err
		}
		entryVecs = vecs
		return nil
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	for i := range entryVecs {
		entryVecs[i] = normalizeVector(entryVecs[i])
	}

	var survivors []Insight
	for i, ins := range insights {
		vec := normalizeVector(insightVecs[i])
		if maxSimilarity(vec, entryVecs) >= c.config.SimilarityThreshold {
			continue
		}
		survivors = append(survivors, ins)
	}
	return survivors, nil
}

func (c *Curator) embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := errors.CheckContext(ctx, "embedding"); err != nil {
		return nil, err
	}
	if c.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()
	}

	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(err, errors.UpstreamCallFailed, "embedding call failed")
	}
	if len(vecs) != len(texts) {
		return nil, errors.WithFields(
			errors.New(errors.InvalidResponse, "embedding provider returned wrong vector count"),
			errors.Fields{"want": len(texts), "got": len(vecs)},
		)
	}
	return vecs, nil
}
