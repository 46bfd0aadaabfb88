package db

import (
	"testing"

	"github.com/stretchr/testify/assert"

	kivik "github.com/go-kivik/kivik/v4"
)

func TestDbName(t *testing.T) {
	s := NewCouchDBStore(&kivik.Client{}, "widgets")
	assert.Equal(t, "widgets-mrview-by-sku", s.dbName("by-sku"))
}

func TestRowDocIDRoundTrip(t *testing.T) {
	key := []byte{0x01, 0xff, 0x00, 0x2a}
	id := rowDocID(key)
	assert.Equal(t, "row:01ff002a", id)

	got, ok := rowKeyFromDocID(id)
	assert.True(t, ok)
	assert.Equal(t, key, got)
}

func TestRowKeyFromDocIDRejectsOtherIDs(t *testing.T) {
	_, ok := rowKeyFromDocID("meta:lastSeq")
	assert.False(t, ok)

	_, ok = rowKeyFromDocID("_design/foo")
	assert.False(t, ok)
}

func TestMetaDocID(t *testing.T) {
	assert.Equal(t, "meta:lastSeq", metaDocID("lastSeq"))
	assert.Equal(t, "meta:doc:abc123", metaDocID("doc:abc123"))
}

func TestBytesCompare(t *testing.T) {
	assert.Equal(t, 0, bytesCompare([]byte("a"), []byte("a")))
	assert.Equal(t, -1, bytesCompare([]byte("a"), []byte("b")))
	assert.Equal(t, 1, bytesCompare([]byte("b"), []byte("a")))
	assert.Equal(t, -1, bytesCompare([]byte("a"), []byte("ab")))
	assert.Equal(t, 1, bytesCompare([]byte("ab"), []byte("a")))
}

func TestInBounds(t *testing.T) {
	lower := []byte("b")
	upper := []byte("d")

	assert.False(t, inBounds([]byte("a"), lower, upper))
	assert.True(t, inBounds([]byte("b"), lower, upper))
	assert.True(t, inBounds([]byte("c"), lower, upper))
	assert.False(t, inBounds([]byte("d"), lower, upper))
	assert.False(t, inBounds([]byte("e"), lower, upper))
}

func TestInBoundsUnbounded(t *testing.T) {
	assert.True(t, inBounds([]byte("anything"), nil, nil))
	assert.True(t, inBounds([]byte("z"), nil, []byte("zz")))
	assert.True(t, inBounds([]byte("z"), []byte("a"), nil))
}


