package mrview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLetters(t *testing.T, source *fakeSource) {
	t.Helper()
	for _, l := range []string{"a", "b", "c", "d"} {
		source.Put("doc-"+l, map[string]any{"letter": l, "count": 1})
	}
}

const letterMap = `function(doc) { emit(doc.letter, doc.count); }`

func TestQueryStartEndKeyRange(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	idx := newTestIndex(t, source, ViewDefinition{MapSrc: letterMap})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{
		Stale: StaleOK, HasStartKey: true, StartKey: "b", HasEndKey: true, EndKey: "c",
	})
	require.NoError(t, err)
	var got []any
	for _, r := range result.Rows {
		got = append(got, r.Key)
	}
	assert.Equal(t, []any{"b", "c"}, got)
}

func TestQueryExclusiveEnd(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	idx := newTestIndex(t, source, ViewDefinition{MapSrc: letterMap})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{
		Stale: StaleOK, HasStartKey: true, StartKey: "b", HasEndKey: true, EndKey: "c", ExclusiveEnd: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "b", result.Rows[0].Key)
}

func TestQueryDescending(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	idx := newTestIndex(t, source, ViewDefinition{MapSrc: letterMap})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK, Descending: true})
	require.NoError(t, err)
	var got []any
	for _, r := range result.Rows {
		got = append(got, r.Key)
	}
	assert.Equal(t, []any{"d", "c", "b", "a"}, got)
}

func TestQueryKeysPreservesCallerOrder(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	idx := newTestIndex(t, source, ViewDefinition{MapSrc: letterMap})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK, Keys: []any{"c", "a"}})
	require.NoError(t, err)
	var got []any
	for _, r := range result.Rows {
		got = append(got, r.Key)
	}
	assert.Equal(t, []any{"c", "a"}, got)
}

func TestQueryDescendingWithKeysPreservesCallerOrder(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	idx := newTestIndex(t, source, ViewDefinition{MapSrc: letterMap})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{
		Stale: StaleOK, Descending: true, Keys: []any{"a", "c"},
	})
	require.NoError(t, err)
	var got []any
	for _, r := range result.Rows {
		got = append(got, r.Key)
	}
	assert.Equal(t, []any{"a", "c"}, got)
}

func TestQueryLimitAndSkip(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	idx := newTestIndex(t, source, ViewDefinition{MapSrc: letterMap})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK, Skip: 1, HasLimit: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "b", result.Rows[0].Key)
	assert.Equal(t, "c", result.Rows[1].Key)
	assert.Equal(t, 4, result.TotalRows)
}

func TestQueryIncludeDocs(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	idx := newTestIndex(t, source, ViewDefinition{MapSrc: letterMap})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{
		Stale: StaleOK, HasKey: true, Key: "a", IncludeDocs: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "a", result.Rows[0].Doc["letter"])
}

func TestQueryReduceSum(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	idx := newTestIndex(t, source, ViewDefinition{MapSrc: letterMap, ReduceSrc: "_sum"})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, float64(4), result.Rows[0].Value)
}

func TestQueryReduceGroupTrue(t *testing.T) {
	source := newFakeSource()
	source.Put("doc-1", map[string]any{"letter": "a", "count": 1})
	source.Put("doc-2", map[string]any{"letter": "a", "count": 2})
	source.Put("doc-3", map[string]any{"letter": "b", "count": 5})

	idx := newTestIndex(t, source, ViewDefinition{MapSrc: letterMap, ReduceSrc: "_sum"})
	require.NoError(t, idx.Update(context.Background()))

	result, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK, Group: true})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	byKey := map[any]any{}
	for _, r := range result.Rows {
		byKey[r.Key] = r.Value
	}
	assert.Equal(t, float64(3), byKey["a"])
	assert.Equal(t, float64(5), byKey["b"])
}

func TestQueryRejectsReduceWithIncludeDocs(t *testing.T) {
	source := newFakeSource()
	idx := newTestIndex(t, source, ViewDefinition{MapSrc: letterMap, ReduceSrc: "_sum"})

	_, err := idx.Query(context.Background(), QueryOptions{Stale: StaleOK, Reduce: true, HasReduce: true, IncludeDocs: true})
	require.Error(t, err)
	assert.True(t, IsQueryParseError(err))
}

func TestQueryRejectsInvertedRange(t *testing.T) {
	source := newFakeSource()
	idx := newTestIndex(t, source, ViewDefinition{MapSrc: letterMap})

	_, err := idx.Query(context.Background(), QueryOptions{
		Stale: StaleOK, HasStartKey: true, StartKey: "c", HasEndKey: true, EndKey: "a",
	})
	require.Error(t, err)
	assert.True(t, IsQueryParseError(err))
}
