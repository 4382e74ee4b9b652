package kv

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaybookNamespace(t *testing.T) {
	ns := PlaybookNamespace("support", "planner")
	assert.Equal(t, "support", ns.Domain)
	assert.Equal(t, "playbooks", ns.Collection)
	assert.Equal(t, "planner", ns.AgentType)
	assert.Equal(t, "support/playbooks/planner", ns.String())
}

// storeContract exercises the Store interface against any implementation.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()
	ns := PlaybookNamespace("test", "executor")
	other := PlaybookNamespace("test", "critic")

	t.Run("get missing key", func(t *testing.T) {
		value, found, err := store.Get(ctx, ns, "absent")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, ns, "v1", []byte(`{"a":1}`)))

		value, found, err := store.Get(ctx, ns, "v1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte(`{"a":1}`), value)
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, ns, "v1", []byte(`{"a":2}`)))

		value, _, err := store.Get(ctx, ns, "v1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":2}`), value)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, other, "v1", []byte("other")))

		value, _, err := store.Get(ctx, ns, "v1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":2}`), value)
	})

	t.Run("search returns namespace contents only", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, ns, "v2", []byte(`{"a":3}`)))

		pairs, err := store.Search(ctx, ns)
		require.NoError(t, err)
		require.Len(t, pairs, 2)

		keys := []string{pairs[0].Key, pairs[1].Key}
		sort.Strings(keys)
		assert.Equal(t, []string{"v1", "v2"}, keys)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, ns, "v1"))

		_, found, err := store.Get(ctx, ns, "v1")
		require.NoError(t, err)
		assert.False(t, found)

		// Deleting an absent key is not an error.
		require.NoError(t, store.Delete(ctx, ns, "v1"))
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	storeContract(t, store)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	ns := PlaybookNamespace("test", "executor")

	original := []byte("immutable")
	require.NoError(t, store.Put(ctx, ns, "k", original))
	original[0] = 'X'

	value, _, err := store.Get(ctx, ns, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), value)

	// Mutating the returned slice must not affect the stored value either.
	value[0] = 'Y'
	again, _, err := store.Get(ctx, ns, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), again)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer store.Close()

	storeContract(t, store)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()
	ns := PlaybookNamespace("test", "executor")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, ns, "k", []byte("survives")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, found, err := reopened.Get(ctx, ns, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("survives"), value)
}
