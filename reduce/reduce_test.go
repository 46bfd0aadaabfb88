package reduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupRowsUngrouped(t *testing.T) {
	rows := []Row{{Key: "a", Value: float64(1)}, {Key: "b", Value: float64(2)}}
	groups := GroupRows(rows, false, 0)
	require.Len(t, groups, 1)
	assert.Nil(t, groups[0].Key)
	assert.Len(t, groups[0].Rows, 2)
}

func TestGroupRowsByExactKey(t *testing.T) {
	rows := []Row{
		{Key: "a", Value: float64(1)},
		{Key: "a", Value: float64(2)},
		{Key: "b", Value: float64(3)},
	}
	groups := GroupRows(rows, true, 0)
	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].Key)
	assert.Len(t, groups[0].Rows, 2)
	assert.Equal(t, "b", groups[1].Key)
	assert.Len(t, groups[1].Rows, 1)
}

func TestGroupRowsByGroupLevel(t *testing.T) {
	rows := []Row{
		{Key: []any{"2024", "01", "01"}, Value: float64(1)},
		{Key: []any{"2024", "01", "02"}, Value: float64(2)},
		{Key: []any{"2024", "02", "01"}, Value: float64(3)},
	}
	groups := GroupRows(rows, true, 2)
	require.Len(t, groups, 2)
	assert.Equal(t, []any{"2024", "01"}, groups[0].Key)
	assert.Len(t, groups[0].Rows, 2)
	assert.Equal(t, []any{"2024", "02"}, groups[1].Key)
}

func TestGroupRowsNonArrayKeyIgnoresGroupLevel(t *testing.T) {
	rows := []Row{{Key: "solo", Value: float64(1)}}
	groups := GroupRows(rows, true, 3)
	require.Len(t, groups, 1)
	assert.Equal(t, "solo", groups[0].Key)
}

func TestSumReduceNumeric(t *testing.T) {
	fn, ok := Builtin("_sum")
	require.True(t, ok)
	g := Group{Rows: []Row{{Value: float64(1)}, {Value: float64(2)}, {Value: float64(3)}}}
	result, err := fn(g, false)
	require.NoError(t, err)
	assert.Equal(t, float64(6), result)
}

func TestSumReduceArraysComponentWise(t *testing.T) {
	fn, _ := Builtin("_sum")
	g := Group{Rows: []Row{
		{Value: []any{float64(1), float64(10)}},
		{Value: []any{float64(2), float64(20)}},
	}}
	result, err := fn(g, false)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(3), float64(30)}, result)
}

func TestSumReduceRejectsNonNumeric(t *testing.T) {
	fn, _ := Builtin("_sum")
	g := Group{Rows: []Row{{Value: "not a number"}}}
	_, err := fn(g, false)
	assert.Error(t, err)
}

func TestCountReduceAndRereduceCommute(t *testing.T) {
	fn, _ := Builtin("_count")
	g := Group{Rows: []Row{{Value: float64(1)}, {Value: float64(1)}, {Value: float64(1)}}}
	initial, err := fn(g, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), initial)

	partials := Group{Rows: []Row{{Value: int64(3)}, {Value: int64(5)}}}
	total, err := fn(partials, true)
	require.NoError(t, err)
	assert.Equal(t, int64(8), total)
}

func TestStatsReduceComputesSummary(t *testing.T) {
	fn, _ := Builtin("_stats")
	g := Group{Rows: []Row{{Value: float64(1)}, {Value: float64(2)}, {Value: float64(3)}}}
	result, err := fn(g, false)
	require.NoError(t, err)
	s := result.(stats)
	assert.Equal(t, float64(6), s.Sum)
	assert.Equal(t, int64(3), s.Count)
	assert.Equal(t, float64(1), s.Min)
	assert.Equal(t, float64(3), s.Max)
	assert.Equal(t, float64(14), s.SumSqr)
}

func TestStatsReduceRereduceCombinesPartials(t *testing.T) {
	fn, _ := Builtin("_stats")
	partials := Group{Rows: []Row{
		{Value: stats{Sum: 6, Count: 3, Min: 1, Max: 3, SumSqr: 14}},
		{Value: stats{Sum: 9, Count: 2, Min: 4, Max: 5, SumSqr: 41}},
	}}
	result, err := fn(partials, true)
	require.NoError(t, err)
	s := result.(stats)
	assert.Equal(t, float64(15), s.Sum)
	assert.Equal(t, int64(5), s.Count)
	assert.Equal(t, float64(1), s.Min)
	assert.Equal(t, float64(5), s.Max)
}

func TestBuiltinUnknownNameNotOK(t *testing.T) {
	_, ok := Builtin("_nope")
	assert.False(t, ok)
}

func TestReducerDispatchesToBuiltin(t *testing.T) {
	fn, _ := Builtin("_sum")
	r := NewBuiltinReducer(fn)
	result, err := r.Reduce(Group{Rows: []Row{{Value: float64(2)}, {Value: float64(2)}}}, false)
	require.NoError(t, err)
	assert.Equal(t, float64(4), result)
}
