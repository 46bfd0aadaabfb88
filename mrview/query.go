package mrview

import (
	"context"

	"github.com/evalgo-labs/mrview/reduce"
)

// Query answers a view query against the index, bringing the index
// up to date first unless Stale requests otherwise.
func (idx *Index) Query(ctx context.Context, opts QueryOptions) (QueryResult, error) {
	effectiveReduce := idx.reducer != nil
	if opts.HasReduce {
		effectiveReduce = opts.Reduce
	}
	if effectiveReduce && opts.IncludeDocs {
		return QueryResult{}, QueryParseError("include_docs is incompatible with reduce=true")
	}
	if opts.Reduce && idx.reducer == nil {
		return QueryResult{}, QueryParseError("view has no reduce function")
	}

	switch opts.Stale {
	case StaleOK:
		// answer from whatever the index currently holds
	case StaleUpdateAfter:
		idx.queue.Submit(idx.Name, func(ctx context.Context) error { return idx.update(ctx) })
	default:
		if err := idx.Update(ctx); err != nil {
			return QueryResult{}, err
		}
	}

	ranges, err := buildRanges(opts)
	if err != nil {
		return QueryResult{}, err
	}

	var rows []reduce.Row
	for _, r := range ranges {
		it, err := idx.store.Scan(ctx, idx.Name, r.lower, r.upper, r.descending)
		if err != nil {
			return QueryResult{}, err
		}
		for it.Next() {
			sr := it.Row()
			rows = append(rows, reduce.Row{
				Key:             sr.EmittedKey,
				Value:           sr.EmittedValue,
				DocID:           sr.DocID,
				ReduceOutput:    sr.ReduceOutput,
				HasReduceOutput: sr.HasReduceOutput,
			})
		}
		scanErr := it.Err()
		closeErr := it.Close()
		if scanErr != nil {
			return QueryResult{}, scanErr
		}
		if closeErr != nil {
			return QueryResult{}, closeErr
		}
	}

	if effectiveReduce {
		return idx.reduceRows(rows, opts)
	}
	return idx.mapRows(ctx, rows, opts)
}

func (idx *Index) reduceRows(rows []reduce.Row, opts QueryOptions) (QueryResult, error) {
	grouped := opts.Group || (opts.HasGroupLevel && opts.GroupLevel > 0)
	groups := reduce.GroupRows(rows, grouped, opts.GroupLevel)

	out := make([]Row, 0, len(groups))
	for _, g := range groups {
		value, err := idx.reduceGroup(g)
		if err != nil {
			return QueryResult{}, translateReduceError(err)
		}
		out = append(out, Row{Key: g.Key, Value: value})
	}

	out = paginate(out, opts.Skip, opts.Limit, opts.HasLimit)
	return QueryResult{TotalRows: len(groups), Offset: 0, Rows: out}, nil
}

// reduceGroup folds one group of rows to its reduce value, preferring
// previously computed per-row outputs over a fresh reduce when they're
// available, mirroring CouchDB's incremental-reduce btree: a single cached
// row output is returned as-is, a group where every row carries one is
// rereduced over those cached outputs, and only a group with a row missing
// a cached output falls back to a fresh reduce over raw values.
func (idx *Index) reduceGroup(g reduce.Group) (any, error) {
	if len(g.Rows) == 1 && g.Rows[0].HasReduceOutput {
		return g.Rows[0].ReduceOutput, nil
	}

	if allHaveReduceOutput(g.Rows) {
		rereduceRows := make([]reduce.Row, len(g.Rows))
		for i, r := range g.Rows {
			rereduceRows[i] = reduce.Row{Key: r.Key, Value: r.ReduceOutput, DocID: r.DocID}
		}
		return idx.reducer.Reduce(reduce.Group{Key: g.Key, Rows: rereduceRows}, true)
	}

	return idx.reducer.Reduce(g, false)
}

func allHaveReduceOutput(rows []reduce.Row) bool {
	if len(rows) == 0 {
		return false
	}
	for _, r := range rows {
		if !r.HasReduceOutput {
			return false
		}
	}
	return true
}

func (idx *Index) mapRows(ctx context.Context, rows []reduce.Row, opts QueryOptions) (QueryResult, error) {
	total := len(rows)

	start := opts.Skip
	if start > len(rows) {
		start = len(rows)
	}
	page := rows[start:]
	if opts.HasLimit && opts.Limit < len(page) {
		page = page[:opts.Limit]
	}

	out := make([]Row, len(page))
	for i, r := range page {
		row := Row{ID: r.DocID, Key: r.Key, Value: r.Value}
		if opts.IncludeDocs {
			docID := joinDocID(r)
			doc, err := idx.source.Get(ctx, docID)
			if err != nil && !IsNotFound(err) {
				return QueryResult{}, err
			}
			if err == nil {
				row.Doc = doc.Body
			}
		}
		out[i] = row
	}

	return QueryResult{TotalRows: total, Offset: opts.Skip, Rows: out}, nil
}

// paginate applies skip/limit to an already-assembled row slice, used for
// the post-reduce result where grouping happens before pagination.
func paginate(rows []Row, skip, limit int, hasLimit bool) []Row {
	if skip > len(rows) {
		skip = len(rows)
	}
	page := rows[skip:]
	if hasLimit && limit < len(page) {
		page = page[:limit]
	}
	return page
}

// joinDocID resolves the document an include_docs query should fetch for
// a row: the emitted value's _id field when present (CouchDB's documented
// "linked document" convention), otherwise the row's own document ID.
func joinDocID(r reduce.Row) string {
	if m, ok := r.Value.(map[string]any); ok {
		if id, ok := m["_id"].(string); ok && id != "" {
			return id
		}
	}
	return r.DocID
}

func translateReduceError(err error) error {
	if _, ok := err.(*Error); ok {
		return err
	}
	return InvalidValueError("%v", err)
}
