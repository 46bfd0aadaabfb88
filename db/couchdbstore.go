package db

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	kivik "github.com/go-kivik/kivik/v4"

	"github.com/evalgo-labs/mrview/mrview"
)

// CouchDBStore implements mrview.SecondaryStore against a second CouchDB
// database per index, named "<baseDB>-mrview-<index>", rather than an
// embedded bbolt file. An operator picks this over boltstore.Store when
// index state should live alongside the source database (e.g. so it can
// be replicated the same way), at the cost of bbolt's single-process
// transaction atomicity: Batch here applies its writes in the order the
// spec's fallback names for stores that cannot offer full atomicity -
// row puts and deletes, then the per-document meta record, then the
// lastSeq record - so a crash mid-batch never leaves the index believing
// it fully applied a change it only partially wrote.
type CouchDBStore struct {
	client *kivik.Client
	baseDB string

	mu  sync.Mutex
	dbs map[string]*kivik.DB
}

// NewCouchDBStore returns a CouchDBStore that creates one database per
// index under client, named from baseDB.
func NewCouchDBStore(client *kivik.Client, baseDB string) *CouchDBStore {
	return &CouchDBStore{client: client, baseDB: baseDB, dbs: make(map[string]*kivik.DB)}
}

func (s *CouchDBStore) dbName(index string) string {
	return s.baseDB + "-mrview-" + index
}

func (s *CouchDBStore) db(index string) *kivik.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dbs[index]
}

// serviceFor wraps db as a CouchDBService so Batch can drive row writes
// through the bulk document API instead of one request per row.
func (s *CouchDBStore) serviceFor(db *kivik.DB, index string) *CouchDBService {
	return &CouchDBService{client: s.client, database: db, dbName: s.dbName(index)}
}

// EnsureIndex creates the per-index database if it doesn't already exist.
func (s *CouchDBStore) EnsureIndex(ctx context.Context, index string) error {
	name := s.dbName(index)

	exists, err := s.client.DBExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking index database %s: %w", name, err)
	}
	if !exists {
		if err := s.client.CreateDB(ctx, name); err != nil {
			return fmt.Errorf("creating index database %s: %w", name, err)
		}
	}

	s.mu.Lock()
	s.dbs[index] = s.client.DB(name)
	s.mu.Unlock()
	return nil
}

// DestroyIndex drops the per-index database entirely.
func (s *CouchDBStore) DestroyIndex(ctx context.Context, index string) error {
	name := s.dbName(index)
	if err := s.client.DestroyDB(ctx, name); err != nil {
		if kivik.HTTPStatus(err) != 404 {
			return fmt.Errorf("destroying index database %s: %w", name, err)
		}
	}
	s.mu.Lock()
	delete(s.dbs, index)
	s.mu.Unlock()
	return nil
}

const (
	rowIDPrefix  = "row:"
	metaIDPrefix = "meta:"
)

func rowDocID(key []byte) string {
	return rowIDPrefix + hex.EncodeToString(key)
}

func rowKeyFromDocID(id string) ([]byte, bool) {
	if !strings.HasPrefix(id, rowIDPrefix) {
		return nil, false
	}
	key, err := hex.DecodeString(strings.TrimPrefix(id, rowIDPrefix))
	if err != nil {
		return nil, false
	}
	return key, true
}

func metaDocID(key string) string {
	return metaIDPrefix + key
}

type rowDoc struct {
	ID              string `json:"_id"`
	Rev             string `json:"_rev,omitempty"`
	DocID           string `json:"docId"`
	EmittedKey      any    `json:"key"`
	EmittedValue    any    `json:"value"`
	ReduceOutput    any    `json:"reduceOutput,omitempty"`
	HasReduceOutput bool   `json:"hasReduceOutput,omitempty"`
}

type metaDoc struct {
	ID    string `json:"_id"`
	Rev   string `json:"_rev,omitempty"`
	Value any    `json:"value"`
}

// couchRowIterator walks CouchDB's AllDocs result for the "row:" id
// namespace, filtering out-of-range rows client-side since CouchDB's own
// id collation (plain byte comparison of the hex string) already matches
// byte order of the underlying composite key, but precise inclusive/
// exclusive bound handling is easier to get right in Go than in query
// parameters.
type couchRowIterator struct {
	rows       *kivik.ResultSet
	lower      []byte
	upper      []byte
	descending bool
	cur        mrview.StoredRow
	err        error
}

func inBounds(key, lower, upper []byte) bool {
	if lower != nil && bytesCompare(key, lower) < 0 {
		return false
	}
	if upper != nil && bytesCompare(key, upper) >= 0 {
		return false
	}
	return true
}

func bytesCompare(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func (it *couchRowIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.rows.Next() {
		id, err := it.rows.ID()
		if err != nil {
			it.err = fmt.Errorf("reading row id: %w", err)
			return false
		}
		key, ok := rowKeyFromDocID(id)
		if !ok {
			continue
		}
		if !inBounds(key, it.lower, it.upper) {
			continue
		}

		var doc rowDoc
		if err := it.rows.ScanDoc(&doc); err != nil {
			it.err = fmt.Errorf("decoding row %s: %w", id, err)
			return false
		}

		it.cur = mrview.StoredRow{
			Key:             key,
			DocID:           doc.DocID,
			EmittedKey:      doc.EmittedKey,
			EmittedValue:    doc.EmittedValue,
			ReduceOutput:    doc.ReduceOutput,
			HasReduceOutput: doc.HasReduceOutput,
		}
		return true
	}
	it.err = it.rows.Err()
	return false
}

func (it *couchRowIterator) Row() mrview.StoredRow { return it.cur }
func (it *couchRowIterator) Err() error            { return it.err }
func (it *couchRowIterator) Close() error          { return it.rows.Close() }

// Scan walks the index's row documents in the [lower, upper) range,
// fetching the entire "row:" id namespace from CouchDB and filtering to
// the exact byte range client-side.
func (s *CouchDBStore) Scan(ctx context.Context, index string, lower, upper []byte, descending bool) (mrview.RowIterator, error) {
	db := s.db(index)
	if db == nil {
		return nil, mrview.NotFoundError("index %q is not initialized", index)
	}

	params := map[string]interface{}{
		"include_docs": true,
		"descending":   descending,
	}
	if descending {
		params["startkey"] = rowIDPrefix + "￿"
		params["endkey"] = rowIDPrefix
	} else {
		params["startkey"] = rowIDPrefix
		params["endkey"] = rowIDPrefix + "￿"
	}

	rows := db.AllDocs(ctx, kivik.Params(params))
	return &couchRowIterator{rows: rows, lower: lower, upper: upper, descending: descending}, nil
}

// couchWriter buffers a batch's mutations in memory; CouchDBStore.Batch
// applies them once the callback returns.
type couchWriter struct {
	db       *kivik.DB
	putRows  []mrview.StoredRow
	delRows  [][]byte
	putMeta  map[string]any
	delMeta  []string
}

func (w *couchWriter) PutRow(row mrview.StoredRow) error {
	w.putRows = append(w.putRows, row)
	return nil
}

func (w *couchWriter) DeleteRow(key []byte) error {
	w.delRows = append(w.delRows, key)
	return nil
}

func (w *couchWriter) PutMeta(key string, value any) error {
	w.putMeta[key] = value
	return nil
}

func (w *couchWriter) DeleteMeta(key string) error {
	w.delMeta = append(w.delMeta, key)
	return nil
}

// firstBulkError reports the first per-document failure in a bulk
// operation's results, since BulkSaveDocuments/BulkDeleteDocuments only
// return a request-level error for the call as a whole.
func firstBulkError(op string, results []BulkResult) error {
	for _, r := range results {
		if !r.OK {
			return fmt.Errorf("%s %s: %s (%s)", op, r.ID, r.Error, r.Reason)
		}
	}
	return nil
}

// currentRev returns the current _rev of id, or "" if the document
// doesn't exist.
func currentRev(ctx context.Context, db *kivik.DB, id string) (string, error) {
	row := db.Get(ctx, id)
	if row.Err() != nil {
		if kivik.HTTPStatus(row.Err()) == 404 {
			return "", nil
		}
		return "", row.Err()
	}
	var body struct {
		Rev string `json:"_rev"`
	}
	if err := row.ScanDoc(&body); err != nil {
		return "", err
	}
	return body.Rev, nil
}

// Batch applies the buffered mutations of fn's callback in the spec's
// documented write-order fallback: row deletes and puts first, then the
// per-document meta record, then the lastSeq record. Row deletes and row
// puts each go out as one bulk request and every meta write is its own
// request, so a crash partway through leaves the earlier writes
// committed - tolerable because the next update resumes from the lastSeq
// actually recorded, never past a partially-applied change.
func (s *CouchDBStore) Batch(ctx context.Context, index string, fn func(mrview.Writer) error) error {
	db := s.db(index)
	if db == nil {
		return mrview.NotFoundError("index %q is not initialized", index)
	}

	w := &couchWriter{db: db, putMeta: make(map[string]any)}
	if err := fn(w); err != nil {
		return err
	}

	svc := s.serviceFor(db, index)

	if len(w.delRows) > 0 {
		deleteOps := make([]BulkDeleteDoc, 0, len(w.delRows))
		for _, key := range w.delRows {
			id := rowDocID(key)
			rev, err := currentRev(ctx, db, id)
			if err != nil {
				return fmt.Errorf("looking up row %s: %w", id, err)
			}
			if rev == "" {
				continue
			}
			deleteOps = append(deleteOps, BulkDeleteDoc{ID: id, Rev: rev, Deleted: true})
		}
		if results, err := svc.BulkDeleteDocuments(deleteOps); err != nil {
			return fmt.Errorf("bulk deleting rows: %w", err)
		} else if err := firstBulkError("deleting row", results); err != nil {
			return err
		}
	}

	if len(w.putRows) > 0 {
		docs := make([]interface{}, len(w.putRows))
		for i, row := range w.putRows {
			id := rowDocID(row.Key)
			rev, err := currentRev(ctx, db, id)
			if err != nil {
				return fmt.Errorf("looking up row %s: %w", id, err)
			}
			docs[i] = rowDoc{
				ID:              id,
				Rev:             rev,
				DocID:           row.DocID,
				EmittedKey:      row.EmittedKey,
				EmittedValue:    row.EmittedValue,
				ReduceOutput:    row.ReduceOutput,
				HasReduceOutput: row.HasReduceOutput,
			}
		}
		if results, err := svc.BulkSaveDocuments(docs); err != nil {
			return fmt.Errorf("bulk writing rows: %w", err)
		} else if err := firstBulkError("writing row", results); err != nil {
			return err
		}
	}

	// order meta keys so lastSeq, if present, writes last
	var lastSeqValue any
	hasLastSeq := false
	for key, value := range w.putMeta {
		if key == mrview.MetaLastSeq {
			lastSeqValue = value
			hasLastSeq = true
			continue
		}
		if err := s.putMetaDoc(ctx, db, key, value); err != nil {
			return err
		}
	}
	for _, key := range w.delMeta {
		if err := s.deleteMetaDoc(ctx, db, key); err != nil {
			return err
		}
	}
	if hasLastSeq {
		if err := s.putMetaDoc(ctx, db, mrview.MetaLastSeq, lastSeqValue); err != nil {
			return err
		}
	}

	return nil
}

func (s *CouchDBStore) putMetaDoc(ctx context.Context, db *kivik.DB, key string, value any) error {
	id := metaDocID(key)
	rev, err := currentRev(ctx, db, id)
	if err != nil {
		return fmt.Errorf("looking up meta %s: %w", id, err)
	}
	doc := metaDoc{ID: id, Rev: rev, Value: value}
	if _, err := db.Put(ctx, id, doc); err != nil {
		return fmt.Errorf("writing meta %s: %w", id, err)
	}
	return nil
}

func (s *CouchDBStore) deleteMetaDoc(ctx context.Context, db *kivik.DB, key string) error {
	id := metaDocID(key)
	rev, err := currentRev(ctx, db, id)
	if err != nil {
		return fmt.Errorf("looking up meta %s: %w", id, err)
	}
	if rev == "" {
		return nil
	}
	if _, err := db.Delete(ctx, id, rev); err != nil {
		return fmt.Errorf("deleting meta %s: %w", id, err)
	}
	return nil
}

// GetMeta loads and JSON-decodes the metadata value stored under key.
func (s *CouchDBStore) GetMeta(ctx context.Context, index, key string, out any) (bool, error) {
	db := s.db(index)
	if db == nil {
		return false, mrview.NotFoundError("index %q is not initialized", index)
	}

	row := db.Get(ctx, metaDocID(key))
	if row.Err() != nil {
		if kivik.HTTPStatus(row.Err()) == 404 {
			return false, nil
		}
		return false, row.Err()
	}

	var doc metaDoc
	if err := row.ScanDoc(&doc); err != nil {
		return false, fmt.Errorf("decoding meta %s: %w", key, err)
	}

	raw, err := json.Marshal(doc.Value)
	if err != nil {
		return false, fmt.Errorf("re-encoding meta %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding meta %s into destination: %w", key, err)
	}
	return true, nil
}
