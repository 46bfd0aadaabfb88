package mrview

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-labs/mrview/db/boltstore"
	"github.com/evalgo-labs/mrview/mapreduce"
	"github.com/evalgo-labs/mrview/tasks"
)

func newTestIndex(t *testing.T, source *fakeSource, def ViewDefinition) *Index {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue := tasks.New(context.Background(), nil)
	eval := mapreduce.New(nil)

	idx, err := newIndex(nameForDefinition(def), def, source, store, queue, eval, nil)
	require.NoError(t, err)
	require.NoError(t, store.EnsureIndex(context.Background(), idx.Name))
	return idx
}

func TestUpdateIndexesExistingDocs(t *testing.T) {
	source := newFakeSource()
	source.Put("doc-1", map[string]any{"name": "ada", "age": 30})
	source.Put("doc-2", map[string]any{"name": "bob", "age": 25})

	idx := newTestIndex(t, source, ViewDefinition{MapSrc: nameMap})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
}

func TestUpdateSkipsReservedIDs(t *testing.T) {
	source := newFakeSource()
	source.Put("_design/views", map[string]any{"name": "should-not-index"})
	source.Put("doc-1", map[string]any{"name": "ada", "age": 30})

	idx := newTestIndex(t, source, ViewDefinition{MapSrc: nameMap})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "doc-1", result.Rows[0].ID)
}

func TestUpdateReEmitsRowsOnDocChange(t *testing.T) {
	source := newFakeSource()
	source.Put("doc-1", map[string]any{"name": "ada", "age": 30})

	idx := newTestIndex(t, source, ViewDefinition{MapSrc: nameMap})
	require.NoError(t, idx.Update(context.Background()))

	source.Put("doc-1", map[string]any{"name": "ada", "age": 31})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, float64(31), result.Rows[0].Value)
}

func TestUpdateRemovesRowsForDeletedDoc(t *testing.T) {
	source := newFakeSource()
	source.Put("doc-1", map[string]any{"name": "ada", "age": 30})

	idx := newTestIndex(t, source, ViewDefinition{MapSrc: nameMap})
	require.NoError(t, idx.Update(context.Background()))

	source.Delete("doc-1")
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func TestUpdateToleratesDocEmittingNothing(t *testing.T) {
	source := newFakeSource()
	source.Put("doc-1", map[string]any{"age": 30}) // no "name" field, map emits nothing

	idx := newTestIndex(t, source, ViewDefinition{MapSrc: nameMap})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func TestUpdateResumesFromLastSeq(t *testing.T) {
	source := newFakeSource()
	source.Put("doc-1", map[string]any{"name": "ada", "age": 30})

	idx := newTestIndex(t, source, ViewDefinition{MapSrc: nameMap})
	require.NoError(t, idx.Update(context.Background()))

	source.Put("doc-2", map[string]any{"name": "bob", "age": 25})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
}


