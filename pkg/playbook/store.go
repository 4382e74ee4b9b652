package playbook

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/XiaoConstantine/playbook-go/pkg/errors"
	"github.com/XiaoConstantine/playbook-go/pkg/kv"
	"github.com/XiaoConstantine/playbook-go/pkg/logging"
)

// Store provides durable, versioned, namespaced access to playbooks. Each
// save writes a full snapshot under "v{version}"; the source of truth is
// always the highest version number in the namespace.
type Store struct {
	backend kv.Store
	domain  string
}

// NewStore creates a playbook store over the given key-value backend.
func NewStore(backend kv.Store, domain string) *Store {
	return &Store{backend: backend, domain: domain}
}

func (s *Store) namespace(agentType string) (kv.Namespace, error) {
	if !IsRecognizedAgentType(agentType) {
		return kv.Namespace{}, errors.WithFields(
			errors.New(errors.InvalidNamespace, "unrecognized agent type"),
			errors.Fields{"agent_type": agentType, "recognized": strings.Join(RecognizedAgentTypes(), ",")},
		)
	}
	return kv.PlaybookNamespace(s.domain, agentType), nil
}

func versionKey(version int) string {
	return fmt.Sprintf("v%d", version)
}

func parseVersionKey(key string) (int, bool) {
	if !strings.HasPrefix(key, "v") {
		return 0, false
	}
	n, err := strconv.Atoi(key[1:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Get returns the highest-version persisted playbook for the namespace, or
// a fresh empty playbook (version 0) if none exists. Missing data is never
// an error; an unrecognized agent type is.
func (s *Store) Get(ctx context.Context, agentType string) (*Playbook, error) {
	ns, err := s.namespace(agentType)
	if err != nil {
		return nil, err
	}

	pairs, err := s.backend.Search(ctx, ns)
	if err != nil {
		return nil, err
	}

	var latest *Playbook
	latestVersion := 0
	for _, pair := range pairs {
		version, ok := parseVersionKey(pair.Key)
		if !ok || version <= latestVersion {
			continue
		}
		var pb Playbook
		if err := json.Unmarshal(pair.Value, &pb); err != nil {
			logging.GetLogger().Warn(ctx, "skipping unreadable playbook record %s: %v", pair.Key, err)
			continue
		}
		latest = &pb
		latestVersion = version
	}

	if latest == nil {
		return NewPlaybook(agentType), nil
	}
	if latest.Entries == nil {
		latest.Entries = []Entry{}
	}
	return latest, nil
}

// Save increments the playbook version by 1, stamps last_updated and writes
// the snapshot. It does not merge with concurrently written versions:
// last writer wins. Callers needing stronger guarantees use SaveChecked or
// serialize writes per namespace.
func (s *Store) Save(ctx context.Context, pb *Playbook) (*Playbook, error) {
	ns, err := s.namespace(pb.AgentType)
	if err != nil {
		return nil, err
	}

	pb.Version++
	pb.LastUpdated = time.Now()

	data, err := json.Marshal(pb)
	if err != nil {
		pb.Version--
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to marshal playbook")
	}

	if err := s.backend.Put(ctx, ns, versionKey(pb.Version), data); err != nil {
		pb.Version--
		return nil, err
	}
	return pb, nil
}

// SaveChecked is Save with an optimistic concurrency check: it fails with
// StaleVersion when the namespace has advanced past the playbook's base
// version, leaving the playbook unmodified so the caller can re-fetch,
// re-apply and retry.
func (s *Store) SaveChecked(ctx context.Context, pb *Playbook) (*Playbook, error) {
	current, err := s.Get(ctx, pb.AgentType)
	if err != nil {
		return nil, err
	}
	if current.Version != pb.Version {
		return nil, errors.WithFields(
			errors.New(errors.StaleVersion, "playbook version is stale"),
			errors.Fields{"base_version": pb.Version, "latest_version": current.Version},
		)
	}
	return s.Save(ctx, pb)
}

// Prune removes entries below minConfidence, then evicts lowest-confidence
// entries until the playbook is within maxEntries, and saves the result.
// Ties break by id so eviction is deterministic. Returns how many entries
// were removed.
func (s *Store) Prune(ctx context.Context, agentType string, minConfidence float64, maxEntries int) (int, error) {
	pb, err := s.Get(ctx, agentType)
	if err != nil {
		return 0, err
	}

	before := len(pb.Entries)
	pb.Entries = PruneEntries(pb.Entries, minConfidence, maxEntries)
	removed := before - len(pb.Entries)

	if _, err := s.Save(ctx, pb); err != nil {
		return 0, err
	}
	return removed, nil
}

// PruneEntries applies the quality threshold then the size cap to a copy of
// entries and returns the survivors.
func PruneEntries(entries []Entry, minConfidence float64, maxEntries int) []Entry {
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ConfidenceScore >= minConfidence {
			kept = append(kept, e)
		}
	}

	if maxEntries > 0 && len(kept) > maxEntries {
		// Evict by ascending confidence, ties broken by id.
		sort.Slice(kept, func(i, j int) bool {
			if kept[i].ConfidenceScore != kept[j].ConfidenceScore {
				return kept[i].ConfidenceScore > kept[j].ConfidenceScore
			}
			return kept[i].ID < kept[j].ID
		})
		kept = kept[:maxEntries]
	}
	return kept
}

// History returns up to limit persisted versions, newest first.
func (s *Store) History(ctx context.Context, agentType string, limit int) ([]*Playbook, error) {
	ns, err := s.namespace(agentType)
	if err != nil {
		return nil, err
	}

	pairs, err := s.backend.Search(ctx, ns)
	if err != nil {
		return nil, err
	}

	type versioned struct {
		version int
		pb      *Playbook
	}
	var records []versioned
	for _, pair := range pairs {
		version, ok := parseVersionKey(pair.Key)
		if !ok {
			continue
		}
		var pb Playbook
		if err := json.Unmarshal(pair.Value, &pb); err != nil {
			continue
		}
		records = append(records, versioned{version, &pb})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].version > records[j].version
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	out := make([]*Playbook, len(records))
	for i, r := range records {
		out[i] = r.pb
	}
	return out, nil
}

// SearchOptions filters entries. All set filters are ANDed.
type SearchOptions struct {
	// Query matches as a case-insensitive substring of content.
	Query string
	// Category, when set, must match exactly.
	Category Category
	// Tags must all be present on the entry.
	Tags []string
	// MinConfidence is a confidence floor.
	MinConfidence float64
}

// SearchEntries filters the latest playbook's entries.
func (s *Store) SearchEntries(ctx context.Context, agentType string, opts SearchOptions) ([]Entry, error) {
	pb, err := s.Get(ctx, agentType)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(opts.Query)
	var matched []Entry
	for _, e := range pb.Entries {
		if query != "" && !strings.Contains(strings.ToLower(e.Content), query) {
			continue
		}
		if opts.Category != "" && e.Category != opts.Category {
			continue
		}
		if len(opts.Tags) > 0 && !e.HasAllTags(opts.Tags) {
			continue
		}
		if e.ConfidenceScore < opts.MinConfidence {
			continue
		}
		matched = append(matched, e)
	}
	return matched, nil
}

// Stats summarizes the latest playbook: counts per category, mean
// confidence and the ten most frequent tags.
func (s *Store) Stats(ctx context.Context, agentType string) (*Stats, error) {
	pb, err := s.Get(ctx, agentType)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		AgentType:      agentType,
		Version:        pb.Version,
		TotalEntries:   len(pb.Entries),
		CategoryCounts: make(map[Category]int),
	}

	tagCounts := make(map[string]int)
	var confidenceSum float64
	for _, e := range pb.Entries {
		stats.CategoryCounts[e.Category]++
		confidenceSum += e.ConfidenceScore
		for _, tag := range e.Tags {
			tagCounts[tag]++
		}
	}

	if len(pb.Entries) > 0 {
		stats.MeanConfidence = confidenceSum / float64(len(pb.Entries))
	}

	tags := make([]TagCount, 0, len(tagCounts))
	for tag, count := range tagCounts {
		tags = append(tags, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Tag < tags[j].Tag
	})
	if len(tags) > 10 {
		tags = tags[:10]
	}
	stats.TopTags = tags

	return stats, nil
}

// Purge deletes every persisted version in the namespace. This is the only
// way a playbook is destroyed.
func (s *Store) Purge(ctx context.Context, agentType string) error {
	ns, err := s.namespace(agentType)
	if err != nil {
		return err
	}

	pairs, err := s.backend.Search(ctx, ns)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		if err := s.backend.Delete(ctx, ns, pair.Key); err != nil {
			return err
		}
	}
	return nil
}
