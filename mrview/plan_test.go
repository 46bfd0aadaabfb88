package mrview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-labs/mrview/collate"
)

func TestValidateInvertedRangeAscending(t *testing.T) {
	err := QueryOptions{HasStartKey: true, StartKey: "c", HasEndKey: true, EndKey: "a"}.validate()
	require.Error(t, err)
	assert.True(t, IsQueryParseError(err))
}

func TestValidateInvertedRangeDescending(t *testing.T) {
	err := QueryOptions{
		Descending: true, HasStartKey: true, StartKey: "a", HasEndKey: true, EndKey: "c",
	}.validate()
	require.Error(t, err)
	assert.True(t, IsQueryParseError(err))
}

func TestValidateReduceWithIncludeDocs(t *testing.T) {
	err := QueryOptions{Reduce: true, IncludeDocs: true}.validate()
	require.Error(t, err)
	assert.True(t, IsQueryParseError(err))
}

func TestValidateAcceptsOrderedRange(t *testing.T) {
	err := QueryOptions{HasStartKey: true, StartKey: "a", HasEndKey: true, EndKey: "c"}.validate()
	assert.NoError(t, err)
}

func TestBuildRangesKeysPreservesOrder(t *testing.T) {
	ranges, err := buildRanges(QueryOptions{Keys: []any{"z", "a"}})
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	assert.Equal(t, collate.KeyPrefix("z"), ranges[0].lower)
	assert.Equal(t, collate.KeyPrefix("a"), ranges[1].lower)
}

func TestBuildRangesSingleKey(t *testing.T) {
	ranges, err := buildRanges(QueryOptions{HasKey: true, Key: "a"})
	require.NoError(t, err)
	require.Len(t, ranges, 1)
}

func TestBuildRangesUnbounded(t *testing.T) {
	ranges, err := buildRanges(QueryOptions{})
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Nil(t, ranges[0].lower)
	assert.Nil(t, ranges[0].upper)
}
