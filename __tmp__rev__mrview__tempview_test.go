package mrview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-labs/mrview/mapreduce"
)

func TestQueryTemporaryMapOnly(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	eval := mapreduce.New(nil)

	result, err := QueryTemporary(context.Background(), source, eval, ViewDefinition{MapSrc: letterMap}, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 4)
	assert.Equal(t, "a", result.Rows[0].Key)
	assert.Equal(t, "d", result.Rows[3].Key)
}

func TestQueryTemporaryWithReduce(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	eval := mapreduce.New(nil)

	result, err := QueryTemporary(context.Background(), source, eval, ViewDefinition{MapSrc: letterMap, ReduceSrc: "_count"}, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(4), result.Rows[0].Value)
}

func TestQueryTemporarySkipsDeletedDocs(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	source.Delete("doc-a")
	eval := mapreduce.New(nil)

	result, err := QueryTemporary(context.Background(), source, eval, ViewDefinition{MapSrc: letterMap}, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
}

func TestQueryTemporaryDoesNotPersistAnything(t *testing.T) {
	source := newFakeSource()
	seedLetters(t, source)
	eval := mapreduce.New(nil)

	_, err := QueryTemporary(context.Background(), source, eval, ViewDefinition{MapSrc: letterMap}, QueryOptions{})
	require.NoError(t, err)

	// a second call with a fresh empty source sees no leaked state
	empty := newFakeSource()
	result, err := QueryTemporary(context.Background(), empty, eval, ViewDefinition{MapSrc: letterMap}, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}


