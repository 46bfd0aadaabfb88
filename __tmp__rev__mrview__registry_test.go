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

func newTestRegistry(t *testing.T) (*Registry, *fakeSource) {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	source := newFakeSource()
	queue := tasks.New(context.Background(), nil)
	eval := mapreduce.New(nil)
	return NewRegistry(source, store, queue, eval, nil), source
}

const nameMap = `function(doc) { if (doc.name) { emit(doc.name, doc.age); } }`

func TestGetIndexOpensAndCaches(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	def := ViewDefinition{MapSrc: nameMap}

	idx1, err := reg.GetIndex(ctx, def)
	require.NoError(t, err)
	idx2, err := reg.GetIndex(ctx, def)
	require.NoError(t, err)
	assert.Same(t, idx1, idx2)
}

func TestGetIndexDistinguishesDefinitions(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	idxA, err := reg.GetIndex(ctx, ViewDefinition{MapSrc: nameMap})
	require.NoError(t, err)
	idxB, err := reg.GetIndex(ctx, ViewDefinition{MapSrc: `function(doc) { emit(doc.age, doc.name); }`})
	require.NoError(t, err)
	assert.NotEqual(t, idxA.Name, idxB.Name)
}

func TestGetIndexRejectsInvalidMap(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.GetIndex(context.Background(), ViewDefinition{MapSrc: `not valid javascript {{{`})
	require.Error(t, err)
	assert.True(t, IsQueryParseError(err))
}

func TestRemoveIndexDestroysAndForgets(t *testing.T) {
	reg, source := newTestRegistry(t)
	ctx := context.Background()
	def := ViewDefinition{MapSrc: nameMap}

	source.Put("doc-1", map[string]any{"name": "ada", "age": 30})
	idx1, err := reg.GetIndex(ctx, def)
	require.NoError(t, err)
	require.NoError(t, idx1.Update(ctx))

	require.NoError(t, reg.RemoveIndex(ctx, def))

	idx2, err := reg.GetIndex(ctx, def)
	require.NoError(t, err)
	assert.NotSame(t, idx1, idx2)

	result, err := idx2.Query(ctx, QueryOptions{Stale: StaleOK})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}


