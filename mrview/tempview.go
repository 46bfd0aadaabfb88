package mrview

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/evalgo-labs/mrview/collate"
	"github.com/evalgo-labs/mrview/mapreduce"
	"github.com/evalgo-labs/mrview/reduce"
)

// QueryTemporary evaluates a view's map/reduce definition directly against
// the current state of source, using a throwaway in-memory SecondaryStore
// (memStore) rather than a persisted one: the CouchDB/PouchDB "temporary view" path used for
// one-off _design/<doc>/_view/<name> style queries that aren't worth
// persisting an index for. Every source document is mapped fresh on every
// call, so there is no stored reduceOutput to rereduce from - grouping and
// reducing always run in the "fresh values" mode.
func QueryTemporary(ctx context.Context, source Source, eval *mapreduce.Evaluator, def ViewDefinition, opts QueryOptions) (QueryResult, error) {
	mapFn, err := eval.CompileMap(def.MapSrc)
	if err != nil {
		return QueryResult{}, QueryParseError("compiling map function: %v", err)
	}

	var reducer *reduce.Reducer
	if def.ReduceSrc != "" {
		if builtin, ok := reduce.Builtin(def.ReduceSrc); ok {
			r := reduce.NewBuiltinReducer(builtin)
			reducer = &r
		} else {
			reduceFn, err := eval.CompileReduce(def.ReduceSrc)
			if err != nil {
				return QueryResult{}, QueryParseError("compiling reduce function: %v", err)
			}
			r := reduce.NewUserReducer(reduceFn)
			reducer = &r
		}
	}

	store := newMemStore()
	if err := populateMemStore(ctx, source, mapFn, store); err != nil {
		return QueryResult{}, err
	}

	idx := &Index{
		Name:    "temp",
		Def:     def,
		source:  source,
		store:   store,
		mapFn:   mapFn,
		reducer: reducer,
	}

	opts.Stale = StaleOK
	return idx.Query(ctx, opts)
}

func populateMemStore(ctx context.Context, source Source, mapFn mapreduce.MapFunc, store *memStore) error {
	changes, errs := source.Changes(ctx, "")
	for changes != nil || errs != nil {
		select {
		case rec, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if reserved(rec.ID) {
				continue
			}
			// a later change to a document replaces the rows of its earlier ones
			kept := store.rows[:0]
			for _, r := range store.rows {
				if r.DocID != rec.ID {
					kept = append(kept, r)
				}
			}
			store.rows = kept
			if rec.Deleted {
				continue
			}
			emitted, err := mapFn(rec.Doc)
			if err != nil {
				continue
			}
			for _, e := range emitted {
				key := collate.CompositeKey(e.Key, rec.ID, e.Value, e.Index)
				store.rows = append(store.rows, StoredRow{
					Key:          key,
					DocID:        rec.ID,
					EmittedKey:   e.Key,
					EmittedValue: e.Value,
				})
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// memStore is a throwaway SecondaryStore backing a single temporary view
// query: it holds rows in a plain slice rather than an ordered on-disk
// structure, since the whole set is rebuilt and discarded on every call.
type memStore struct {
	rows []StoredRow
	meta map[string]any
}

func newMemStore() *memStore {
	return &memStore{meta: make(map[string]any)}
}

func (m *memStore) EnsureIndex(ctx context.Context, index string) error  { return nil }
func (m *memStore) DestroyIndex(ctx context.Context, index string) error { return nil }

func (m *memStore) GetMeta(ctx context.Context, index, key string, out any) (bool, error) {
	v, ok := m.meta[key]
	if !ok {
		return false, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, out)
}

func (m *memStore) Batch(ctx context.Context, index string, fn func(Writer) error) error {
	return fn(&memWriter{store: m})
}

func (m *memStore) Scan(ctx context.Context, index string, lower, upper []byte, descending bool) (RowIterator, error) {
	filtered := make([]StoredRow, 0, len(m.rows))
	for _, r := range m.rows {
		if lower != nil && bytes.Compare(r.Key, lower) < 0 {
			continue
		}
		if upper != nil && bytes.Compare(r.Key, upper) >= 0 {
			continue
		}
		filtered = append(filtered, r)
	}
	sort.Slice(filtered, func(i, j int) bool { return bytes.Compare(filtered[i].Key, filtered[j].Key) < 0 })
	if descending {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}
	return &memIterator{rows: filtered, idx: -1}, nil
}

type memWriter struct{ store *memStore }

func (w *memWriter) PutRow(row StoredRow) error {
	w.store.rows = append(w.store.rows, row)
	return nil
}

func (w *memWriter) DeleteRow(key []byte) error {
	for i, r := range w.store.rows {
		if bytes.Equal(r.Key, key) {
			w.store.rows = append(w.store.rows[:i], w.store.rows[i+1:]...)
			break
		}
	}
	return nil
}

func (w *memWriter) PutMeta(key string, value any) error {
	w.store.meta[key] = value
	return nil
}

func (w *memWriter) DeleteMeta(key string) error {
	delete(w.store.meta, key)
	return nil
}

type memIterator struct {
	rows []StoredRow
	idx  int
}

func (it *memIterator) Next() bool {
	it.idx++
	return it.idx < len(it.rows)
}

func (it *memIterator) Row() StoredRow { return it.rows[it.idx] }
func (it *memIterator) Err() error     { return nil }
func (it *memIterator) Close() error   { return nil }
