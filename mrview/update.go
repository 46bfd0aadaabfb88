package mrview

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/evalgo-labs/mrview/collate"
	"github.com/evalgo-labs/mrview/reduce"
)

// reserved reports whether a source document ID is outside the indexable
// document space: design documents and local documents are never passed
// to a map function.
func reserved(id string) bool {
	return strings.HasPrefix(id, "_design/") || strings.HasPrefix(id, "_local/")
}

// Update brings the index fully up to date with its source, processing
// every change since the index's last recorded sequence. It is safe to
// call concurrently; concurrent callers serialize through the index's own
// task-queue lane.
func (idx *Index) Update(ctx context.Context) error {
	return idx.queue.Run(idx.Name, func(ctx context.Context) error {
		return idx.update(ctx)
	})
}

func (idx *Index) update(ctx context.Context) error {
	var lastSeq string
	if _, err := idx.store.GetMeta(ctx, idx.Name, MetaLastSeq, &lastSeq); err != nil {
		return err
	}

	changes, errs := idx.source.Changes(ctx, lastSeq)
	for changes != nil || errs != nil {
		select {
		case rec, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if err := idx.applyChange(ctx, rec); err != nil {
				return err
			}
			lastSeq = rec.Seq
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

	if idx.log != nil {
		idx.log.WithField("index", idx.Name).WithField("last_seq", lastSeq).Debug("index update completed")
	}
	return nil
}

// docMeta is the per-source-document bookkeeping record: the composite
// keys that document's most recent map invocation emitted, so the next
// update can tombstone exactly the rows that no longer apply.
type docMeta struct {
	Keys []string `json:"keys"` // base64-encoded composite keys
}

func (idx *Index) applyChange(ctx context.Context, rec ChangeRecord) error {
	if reserved(rec.ID) {
		return nil
	}

	var prev docMeta
	_, err := idx.store.GetMeta(ctx, idx.Name, metaDocKey(rec.ID), &prev)
	if err != nil {
		return err
	}

	var newRows []StoredRow
	if !rec.Deleted {
		emitted, err := idx.mapFn(rec.Doc)
		if err != nil {
			if idx.log != nil {
				idx.log.WithField("index", idx.Name).WithField("doc", rec.ID).WithError(err).Error("map function failed, aborting update")
			}
			return MapFunctionError(rec.ID, err)
		}
		for _, e := range emitted {
			key := collate.CompositeKey(e.Key, rec.ID, e.Value, e.Index)
			row := StoredRow{
				Key:          key,
				DocID:        rec.ID,
				EmittedKey:   e.Key,
				EmittedValue: e.Value,
			}
			if output, ok := idx.rowReduceOutput(e.Key, e.Value, rec.ID); ok {
				row.ReduceOutput = output
				row.HasReduceOutput = true
			}
			newRows = append(newRows, row)
		}
	}

	return idx.store.Batch(ctx, idx.Name, func(w Writer) error {
		for _, encoded := range prev.Keys {
			key, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				continue
			}
			if err := w.DeleteRow(key); err != nil {
				return err
			}
		}

		for _, row := range newRows {
			if err := w.PutRow(row); err != nil {
				return err
			}
		}

		if len(newRows) == 0 {
			if err := w.DeleteMeta(metaDocKey(rec.ID)); err != nil {
				return err
			}
		} else {
			keys := make([]string, len(newRows))
			for i, row := range newRows {
				keys[i] = base64.StdEncoding.EncodeToString(row.Key)
			}
			if err := w.PutMeta(metaDocKey(rec.ID), docMeta{Keys: keys}); err != nil {
				return err
			}
		}

		return w.PutMeta(MetaLastSeq, rec.Seq)
	})
}

// rowReduceOutput folds the view's reduce function over a single emitted
// row at index-update time, so a later grouped query can rereduce over
// these cached per-row outputs instead of refolding every raw value from
// scratch. ok is false when the view has no reduce function, or the
// reducer rejects this row's value, in which case the query stage falls
// back to a fresh reduce over the raw value.
func (idx *Index) rowReduceOutput(key, value any, docID string) (output any, ok bool) {
	if idx.reducer == nil {
		return nil, false
	}
	group := reduce.Group{Key: key, Rows: []reduce.Row{{Key: key, Value: value, DocID: docID}}}
	output, err := idx.reducer.Reduce(group, false)
	if err != nil {
		return nil, false
	}
	return output, true
}
