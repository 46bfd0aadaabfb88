package mapreduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileMapEmitsKeyValuePairs(t *testing.T) {
	ev := New(nil)
	mapFn, err := ev.CompileMap(`function(doc) {
		if (doc.type === "person") {
			emit(doc.name, doc.age);
		}
	}`)
	require.NoError(t, err)

	rows, err := mapFn(map[string]any{"type": "person", "name": "ada", "age": float64(30)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ada", rows[0].Key)
	assert.Equal(t, float64(30), rows[0].Value)
	assert.Equal(t, 0, rows[0].Index)
}

func TestCompileMapMultipleEmitsGetSequentialIndex(t *testing.T) {
	ev := New(nil)
	mapFn, err := ev.CompileMap(`function(doc) {
		emit(doc.a, 1);
		emit(doc.b, 2);
	}`)
	require.NoError(t, err)

	rows, err := mapFn(map[string]any{"a": "x", "b": "y"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Index)
	assert.Equal(t, 1, rows[1].Index)
}

func TestCompileMapSkipsNonMatchingDocuments(t *testing.T) {
	ev := New(nil)
	mapFn, err := ev.CompileMap(`function(doc) {
		if (doc.type === "person") { emit(doc.name, 1); }
	}`)
	require.NoError(t, err)

	rows, err := mapFn(map[string]any{"type": "vehicle", "name": "car"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCompileReduceSum(t *testing.T) {
	ev := New(nil)
	reduceFn, err := ev.CompileReduce(`function(keys, values, rereduce) {
		var total = 0;
		for (var i = 0; i < values.length; i++) { total += values[i]; }
		return total;
	}`)
	require.NoError(t, err)

	result, err := reduceFn(nil, []any{float64(1), float64(2), float64(3)}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(6), result)
}

func TestCompileMapInvalidSourceErrors(t *testing.T) {
	ev := New(nil)
	_, err := ev.CompileMap(`this is not valid javascript {{{`)
	assert.Error(t, err)
}

func TestMapRunsIsolatedAcrossCalls(t *testing.T) {
	ev := New(nil)
	mapFn, err := ev.CompileMap(`function(doc) {
		if (typeof counter === "undefined") { counter = 0; }
		counter++;
		emit(doc.id, counter);
	}`)
	require.NoError(t, err)

	r1, err := mapFn(map[string]any{"id": "a"})
	require.NoError(t, err)
	r2, err := mapFn(map[string]any{"id": "b"})
	require.NoError(t, err)

	assert.Equal(t, r1[0].Value, r2[0].Value, "counter should not persist across invocations")
}
