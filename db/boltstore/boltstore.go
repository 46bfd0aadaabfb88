// Package boltstore implements mrview.SecondaryStore on top of
// go.etcd.io/bbolt: an embedded ordered-key-value store whose B+-tree
// cursors give byte-lexicographic range scans and whose single-writer
// transactions give full atomicity across a batch's row, tombstone, and
// metadata writes. It generalizes a flat bbolt JSON-blob cache
// into a keyed, range-scannable, atomically-batched store
// because a flat JSON-blob cache has no notion of ordered scan ranges.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/evalgo-labs/mrview/mrview"
)

// Store is an mrview.SecondaryStore backed by a single bbolt file shared
// across every index it holds; each index gets its own pair of buckets.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the bbolt file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt secondary store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

func rowsBucket(index string) []byte { return []byte(index + "/rows") }
func metaBucket(index string) []byte { return []byte(index + "/meta") }

// EnsureIndex creates the rows and metadata buckets for index if they
// don't already exist.
func (s *Store) EnsureIndex(ctx context.Context, index string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(rowsBucket(index)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket(index))
		return err
	})
}

// DestroyIndex drops both buckets backing index.
func (s *Store) DestroyIndex(ctx context.Context, index string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := deleteBucketIfExists(tx, rowsBucket(index)); err != nil {
			return err
		}
		return deleteBucketIfExists(tx, metaBucket(index))
	})
}

func deleteBucketIfExists(tx *bolt.Tx, name []byte) error {
	if tx.Bucket(name) == nil {
		return nil
	}
	return tx.DeleteBucket(name)
}

type rowRecord struct {
	DocID           string `json:"docId"`
	EmittedKey      any    `json:"key"`
	EmittedValue    any    `json:"value"`
	ReduceOutput    any    `json:"reduceOutput,omitempty"`
	HasReduceOutput bool   `json:"hasReduceOutput,omitempty"`
}

// boltIterator walks a bbolt cursor over a bounded key range.
type boltIterator struct {
	tx         *bolt.Tx
	cur        *bolt.Cursor
	lower      []byte
	upper      []byte
	descending bool
	started    bool
	k, v       []byte
	err        error
}

func (it *boltIterator) Next() bool {
	if it.err != nil {
		return false
	}

	var k, v []byte
	if !it.started {
		it.started = true
		if it.descending {
			if it.upper != nil {
				k, v = it.cur.Seek(it.upper)
				if k == nil {
					k, v = it.cur.Last()
				} else {
					k, v = it.cur.Prev()
				}
			} else {
				k, v = it.cur.Last()
			}
		} else {
			if it.lower != nil {
				k, v = it.cur.Seek(it.lower)
			} else {
				k, v = it.cur.First()
			}
		}
	} else {
		if it.descending {
			k, v = it.cur.Prev()
		} else {
			k, v = it.cur.Next()
		}
	}

	if k == nil {
		it.k, it.v = nil, nil
		return false
	}
	if it.descending {
		if it.lower != nil && bytes.Compare(k, it.lower) < 0 {
			it.k, it.v = nil, nil
			return false
		}
	} else {
		if it.upper != nil && bytes.Compare(k, it.upper) >= 0 {
			it.k, it.v = nil, nil
			return false
		}
	}

	it.k, it.v = k, v
	return true
}

func (it *boltIterator) Row() mrview.StoredRow {
	var rec rowRecord
	if err := json.Unmarshal(it.v, &rec); err != nil {
		it.err = fmt.Errorf("decoding stored row: %w", err)
		return mrview.StoredRow{}
	}
	key := make([]byte, len(it.k))
	copy(key, it.k)
	return mrview.StoredRow{
		Key:             key,
		DocID:           rec.DocID,
		EmittedKey:      rec.EmittedKey,
		EmittedValue:    rec.EmittedValue,
		ReduceOutput:    rec.ReduceOutput,
		HasReduceOutput: rec.HasReduceOutput,
	}
}

func (it *boltIterator) Err() error { return it.err }

func (it *boltIterator) Close() error {
	return it.tx.Rollback()
}

// Scan returns a RowIterator over rows in index whose key falls in
// [lower, upper), or the reverse traversal of the same range when
// descending is true.
func (s *Store) Scan(ctx context.Context, index string, lower, upper []byte, descending bool) (mrview.RowIterator, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("beginning scan transaction: %w", err)
	}
	b := tx.Bucket(rowsBucket(index))
	if b == nil {
		tx.Rollback()
		return nil, mrview.NotFoundError("index %q has no rows bucket", index)
	}
	return &boltIterator{tx: tx, cur: b.Cursor(), lower: lower, upper: upper, descending: descending}, nil
}

// writer implements mrview.Writer against an open bbolt read-write
// transaction, used only within Batch's callback.
type writer struct {
	tx   *bolt.Tx
	rows *bolt.Bucket
	meta *bolt.Bucket
}

func (w *writer) PutRow(row mrview.StoredRow) error {
	data, err := json.Marshal(rowRecord{
		DocID:           row.DocID,
		EmittedKey:      row.EmittedKey,
		EmittedValue:    row.EmittedValue,
		ReduceOutput:    row.ReduceOutput,
		HasReduceOutput: row.HasReduceOutput,
	})
	if err != nil {
		return fmt.Errorf("encoding row: %w", err)
	}
	return w.rows.Put(row.Key, data)
}

func (w *writer) DeleteRow(key []byte) error {
	return w.rows.Delete(key)
}

func (w *writer) PutMeta(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding meta %q: %w", key, err)
	}
	return w.meta.Put([]byte(key), data)
}

func (w *writer) DeleteMeta(key string) error {
	return w.meta.Delete([]byte(key))
}

// Batch applies fn's mutations inside a single bbolt read-write
// transaction: if fn or the commit fails, none of its writes are visible.
func (s *Store) Batch(ctx context.Context, index string, fn func(mrview.Writer) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket(index))
		meta := tx.Bucket(metaBucket(index))
		if rows == nil || meta == nil {
			return mrview.NotFoundError("index %q is not initialized", index)
		}
		return fn(&writer{tx: tx, rows: rows, meta: meta})
	})
}

// GetMeta loads and JSON-decodes the metadata value stored under key.
func (s *Store) GetMeta(ctx context.Context, index, key string, out any) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket(index))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	if err != nil {
		return false, fmt.Errorf("reading meta %q: %w", key, err)
	}
	return found, nil
}
