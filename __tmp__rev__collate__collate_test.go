package collate

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []any{
		nil,
		true,
		false,
		float64(1),
		math.NaN(),
		math.Inf(1),
		"hello",
		[]any{1.0, "a", nil},
		map[string]any{"b": 1.0, "a": 2.0},
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "Normalize should be idempotent for %#v", in)
	}
}

func TestNormalizeNonFinite(t *testing.T) {
	assert.Nil(t, Normalize(math.NaN()))
	assert.Nil(t, Normalize(math.Inf(1)))
	assert.Nil(t, Normalize(math.Inf(-1)))
}

func TestCompareTypeOrder(t *testing.T) {
	values := []any{
		nil,
		false,
		true,
		float64(-1),
		float64(0),
		float64(1e10),
		"",
		"zzz",
		[]any{},
		[]any{float64(1)},
		Object{{Key: "a", Value: float64(1)}},
	}

	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			assert.LessOrEqual(t, Compare(values[i], values[j]), 0,
				"expected %#v <= %#v", values[i], values[j])
		}
	}
}

func TestCompareNumbers(t *testing.T) {
	assert.Equal(t, -1, Compare(float64(1), float64(2)))
	assert.Equal(t, 1, Compare(float64(2), float64(1)))
	assert.Equal(t, 0, Compare(float64(2), float64(2)))
}

func TestCompareArraysShorterPrefixSortsFirst(t *testing.T) {
	a := []any{float64(1)}
	b := []any{float64(1), float64(2)}
	assert.Equal(t, -1, Compare(a, b))
}

func TestCompareObjectsKeyOrderMatters(t *testing.T) {
	a := Object{{Key: "a", Value: float64(1)}}
	b := Object{{Key: "b", Value: float64(0)}}
	assert.Equal(t, -1, Compare(a, b))
}

// TestIndexableBytesMatchCollation is the codec/collation correspondence
// invariant: sorting a set of values by Compare must produce the same order
// as sorting their ToIndexableBytes encodings byte-lexicographically.
func TestIndexableBytesMatchCollation(t *testing.T) {
	values := []any{
		nil,
		false,
		true,
		float64(-100),
		float64(-1),
		float64(0),
		float64(0.5),
		float64(1),
		float64(100),
		"",
		"apple",
		"banana",
		[]any{float64(1), "a"},
		[]any{float64(1), "b"},
		[]any{float64(1), "b", float64(0)},
		Object{{Key: "x", Value: float64(1)}},
	}

	byCompare := append([]any(nil), values...)
	sort.Slice(byCompare, func(i, j int) bool {
		return Compare(byCompare[i], byCompare[j]) < 0
	})

	byBytes := append([]any(nil), values...)
	encoded := make(map[int][]byte, len(byBytes))
	for i, v := range byBytes {
		encoded[i] = ToIndexableBytes(v)
	}
	indices := make([]int, len(byBytes))
	for i := range indices {
		indices[i] = i
	}
	sort.Slice(indices, func(i, j int) bool {
		return string(encoded[indices[i]]) < string(encoded[indices[j]])
	})

	for i, idx := range indices {
		require.Equal(t, byCompare[i], values[idx],
			"byte order diverged from Compare order at position %d", i)
	}
}

func TestCompositeKeyOrdersByKeyThenDocIDThenValueThenEmitIndex(t *testing.T) {
	k1 := CompositeKey(float64(1), "doc-a", nil, 0)
	k2 := CompositeKey(float64(1), "doc-b", nil, 0)
	assert.Less(t, string(k1), string(k2))

	k3 := CompositeKey(float64(1), "doc-a", nil, 0)
	k4 := CompositeKey(float64(1), "doc-a", nil, 1)
	assert.Less(t, string(k3), string(k4))

	k5 := CompositeKey(float64(1), "d", nil, 0)
	k6 := CompositeKey(float64(2), "a", nil, 0)
	assert.Less(t, string(k5), string(k6))
}

func TestKeyPrefixUpperBoundScansAllRowsForKey(t *testing.T) {
	lower := KeyPrefix(float64(5))
	upper := UpperBound(lower)

	row := CompositeKey(float64(5), "any-doc", "any-value", 3)
	assert.True(t, string(row) >= string(lower))
	assert.True(t, string(row) < string(upper))

	nextKeyRow := CompositeKey(float64(6), "a", nil, 0)
	assert.False(t, string(nextKeyRow) < string(upper))
}

func TestStringEscapingPreservesOrderAcrossEmbeddedNUL(t *testing.T) {
	a := ToIndexableBytes("ab")
	b := ToIndexableBytes("ab\x00c")
	assert.Less(t, string(a), string(b))
}


