package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-labs/mrview/collate"
	"github.com/evalgo-labs/mrview/mrview"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureIndexAndBatchRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureIndex(ctx, "by-name"))

	key := collate.CompositeKey("ada", "doc-1", nil, 0)
	err := s.Batch(ctx, "by-name", func(w mrview.Writer) error {
		return w.PutRow(mrview.StoredRow{Key: key, DocID: "doc-1", EmittedKey: "ada", EmittedValue: float64(30)})
	})
	require.NoError(t, err)

	it, err := s.Scan(ctx, "by-name", nil, nil, false)
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Next())
	row := it.Row()
	assert.Equal(t, "doc-1", row.DocID)
	assert.Equal(t, "ada", row.EmittedKey)
	assert.Equal(t, float64(30), row.EmittedValue)
	assert.False(t, it.Next())
}

func TestScanRespectsRangeAndDescending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureIndex(ctx, "idx"))

	err := s.Batch(ctx, "idx", func(w mrview.Writer) error {
		for i, k := range []string{"a", "b", "c", "d"} {
			if err := w.PutRow(mrview.StoredRow{
				Key:        collate.CompositeKey(k, "doc", nil, 0),
				DocID:      "doc",
				EmittedKey: k,
			}); err != nil {
				return err
			}
			_ = i
		}
		return nil
	})
	require.NoError(t, err)

	lower := collate.KeyPrefix("b")
	upper := collate.UpperBound(collate.KeyPrefix("c"))
	it, err := s.Scan(ctx, "idx", lower, upper, false)
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, it.Row().EmittedKey.(string))
	}
	assert.Equal(t, []string{"b", "c"}, got)

	itDesc, err := s.Scan(ctx, "idx", nil, nil, true)
	require.NoError(t, err)
	defer itDesc.Close()
	var gotDesc []string
	for itDesc.Next() {
		gotDesc = append(gotDesc, itDesc.Row().EmittedKey.(string))
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, gotDesc)
}

func TestPutMetaAndGetMeta(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureIndex(ctx, "idx"))

	err := s.Batch(ctx, "idx", func(w mrview.Writer) error {
		return w.PutMeta(mrview.MetaLastSeq, "42")
	})
	require.NoError(t, err)

	var lastSeq string
	ok, err := s.GetMeta(ctx, "idx", mrview.MetaLastSeq, &lastSeq)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", lastSeq)
}

func TestGetMetaMissingKeyNotOK(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureIndex(ctx, "idx"))

	var out string
	ok, err := s.GetMeta(ctx, "idx", "nope", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDestroyIndexRemovesData(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureIndex(ctx, "idx"))
	require.NoError(t, s.DestroyIndex(ctx, "idx"))

	_, err := s.Scan(ctx, "idx", nil, nil, false)
	assert.True(t, mrview.IsNotFound(err))
}

func TestDeleteRowRemovesIt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureIndex(ctx, "idx"))

	key := collate.CompositeKey("a", "doc", nil, 0)
	require.NoError(t, s.Batch(ctx, "idx", func(w mrview.Writer) error {
		return w.PutRow(mrview.StoredRow{Key: key, DocID: "doc", EmittedKey: "a"})
	}))
	require.NoError(t, s.Batch(ctx, "idx", func(w mrview.Writer) error {
		return w.DeleteRow(key)
	}))

	it, err := s.Scan(ctx, "idx", nil, nil, false)
	require.NoError(t, err)
	defer it.Close()
	assert.False(t, it.Next())
}
