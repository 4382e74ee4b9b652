// Package kv defines the key-value collaborator contract the playbook store
// persists through, plus SQLite and in-memory implementations.
package kv

import (
	"context"
	"strings"
)

// Namespace partitions keys by owning domain, collection and agent type.
type Namespace struct {
	Domain     string
	Collection string
	AgentType  string
}

// PlaybookNamespace returns the canonical namespace for an agent type's
// playbooks within a domain.
func PlaybookNamespace(domain, agentType string) Namespace {
	return Namespace{Domain: domain, Collection: "playbooks", AgentType: agentType}
}

// String renders the namespace as a single composite key segment.
func (n Namespace) String() string {
	return strings.Join([]string{n.Domain, n.Collection, n.AgentType}, "/")
}

// Pair is one stored key/value record.
type Pair struct {
	Key   string
	Value []byte
}

// Store is the minimal key-value contract consumed by the playbook store.
type Store interface {
	// Get returns the value under key, or nil and false if absent.
	Get(ctx context.Context, ns Namespace, key string) ([]byte, bool, error)

	// Put writes value under key, overwriting any previous value.
	Put(ctx context.Context, ns Namespace, key string, value []byte) error

	// Search returns every pair in the namespace, in unspecified order.
	Search(ctx context.Context, ns Namespace) ([]Pair, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, ns Namespace, key string) error

	// Close releases any underlying resources.
	Close() error
}
