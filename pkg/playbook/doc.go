// Package playbook implements a self-improving playbook engine for agents.
//
// A playbook is a versioned collection of entries (strategies that worked,
// mistakes to avoid) maintained per agent type. Agents consult their
// playbook before acting and feed their execution traces back into it, so
// the playbook sharpens as the agent succeeds and fails.
//
// # Architecture
//
// The engine has four main components:
//
//   - Store: versioned persistence of playbooks over a namespaced
//     key-value backend, one namespace per (domain, agent type)
//   - Reflector: turns one execution trace into candidate insights using
//     a two-pass prompt (free reasoning, then structured extraction)
//   - Curator: filters insights against the existing playbook with
//     embedding-based deduplication, then proposes a Delta
//   - Pipeline: wraps agent nodes, injecting the playbook before
//     execution and scheduling the reflect/curate/apply cycle after it
//
// # Basic Usage
//
//	cfg := playbook.DefaultConfig()
//	cfg.Domain = "support-bot"
//
//	backend, err := kv.NewSQLiteStore("playbooks.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := playbook.NewStore(backend, cfg.Domain)
//
//	extractor := playbook.NewStructuredExtractor(extractionBackend, model, cfg.CallTimeout)
//	pipeline, err := playbook.NewPipeline(cfg, store,
//	    playbook.NewReflector(model, extractor, cfg),
//	    playbook.NewCurator(model, embedder, extractor, cfg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pipeline.Close()
//
//	node, err := pipeline.WrapNode(playbook.AgentResearcher, runResearch)
//
// The wrapped node behaves exactly like the original: playbook injection
// falls back to the unmodified instructions if the store is unhealthy, and
// the post-execution update runs on a background worker so the caller never
// waits on it. Updates for the same agent type are processed one at a time,
// which keeps concurrent executions from overwriting each other's changes.
//
// # Confidence
//
// Each entry tracks helpful and harmful counts from curation decisions.
// Confidence is the smoothed ratio (helpful+1)/(helpful+harmful+2), so a
// fresh entry starts at 0.5 and moves with the evidence. Pruning removes
// entries below the configured floor and evicts the lowest-confidence
// entries once the playbook exceeds its cap.
//
// # Modes
//
// The pipeline runs in one of three modes:
//
//   - automatic: reflect, curate and apply the resulting delta
//   - observe: reflect and log insights, apply nothing
//   - disabled: skip injection and updates entirely
package playbook
