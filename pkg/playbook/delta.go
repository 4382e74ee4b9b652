package playbook

import (
	"strconv"
	"strings"
	"time"
)

// ApplyDelta mutates the playbook in place. Order is strict: remove, then
// update, then add. Removing first means an update targeting a removed
// entry is a no-op rather than a resurrection.
func (p *Playbook) ApplyDelta(delta *Delta) {
	if delta == nil {
		return
	}

	now := time.Now()

	if len(delta.Remove) > 0 {
		removed := make(map[string]bool, len(delta.Remove))
		for _, id := range delta.Remove {
			removed[id] = true
		}
		kept := p.Entries[:0]
		for _, e := range p.Entries {
			if !removed[e.ID] {
				kept = append(kept, e)
			}
		}
		p.Entries = kept
	}

	for _, update := range delta.Update {
		entry := p.FindEntry(update.EntryID)
		if entry == nil {
			continue
		}
		applyEntryUpdates(entry, update.Updates)
		entry.RecordSource(delta.ExecutionID)
		entry.LastUpdated = now
	}

	for _, entry := range delta.Add {
		if entry.ID == "" || p.FindEntry(entry.ID) != nil {
			fresh := NewEntry(entry.Content, entry.Category)
			fresh.Tags = entry.Tags
			fresh.Metadata = entry.Metadata
			fresh.HelpfulCount = entry.HelpfulCount
			fresh.HarmfulCount = entry.HarmfulCount
			fresh.RecomputeConfidence()
			entry = fresh
		}
		if entry.Category == "" {
			entry.Category = CategoryNeutral
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		entry.LastUpdated = now
		entry.RecordSource(delta.ExecutionID)
		entry.RecomputeConfidence()
		p.Entries = append(p.Entries, entry)
	}

	p.LastUpdated = now
}

// applyEntryUpdates applies a field/value map to an entry. Count fields
// accept absolute numbers or relative "+n"/"-n" strings; confidence is
// always recomputed, never taken from the map.
func applyEntryUpdates(entry *Entry, updates map[string]any) {
	countsChanged := false

	for field, value := range updates {
		switch field {
		case "content":
			if s, ok := value.(string); ok && s != "" {
				entry.Content = s
			}
		case "category":
			if s, ok := value.(string); ok {
				switch Category(s) {
				case CategoryHelpful, CategoryHarmful, CategoryNeutral:
					entry.Category = Category(s)
				}
			}
		case "helpful_count":
			if n, ok := resolveCount(entry.HelpfulCount, value); ok {
				entry.HelpfulCount = n
				countsChanged = true
			}
		case "harmful_count":
			if n, ok := resolveCount(entry.HarmfulCount, value); ok {
				entry.HarmfulCount = n
				countsChanged = true
			}
		case "tags":
			entry.Tags = toStringSlice(value)
		case "metadata":
			if m, ok := value.(map[string]any); ok {
				if entry.Metadata == nil {
					entry.Metadata = make(map[string]any, len(m))
				}
				for k, v := range m {
					entry.Metadata[k] = v
				}
			}
		}
	}

	if countsChanged {
		entry.RecomputeConfidence()
	}
}

// resolveCount interprets value as either an absolute count or a relative
// adjustment ("+1", "-2"). Results clamp at zero.
func resolveCount(current int, value any) (int, bool) {
	var next int
	switch v := value.(type) {
	case int:
		next = v
	case float64:
		next = int(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		if trimmed[0] == '+' || trimmed[0] == '-' {
			delta, err := strconv.Atoi(trimmed)
			if err != nil {
				return 0, false
			}
			next = current + delta
		} else {
			abs, err := strconv.Atoi(trimmed)
			if err != nil {
				return 0, false
			}
			next = abs
		}
	default:
		return 0, false
	}

	if next < 0 {
		next = 0
	}
	return next, true
}

func toStringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
