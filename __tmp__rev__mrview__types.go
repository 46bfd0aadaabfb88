// Package mrview implements the index subsystem of an incremental
// map/reduce view engine: given a source document database with a
// monotonic change feed and an ordered-key secondary store, it maintains
// one secondary index per (map function, reduce function) pair and answers
// range, key-set, and grouped-reduce queries against it without rescanning
// the source on every query.
package mrview

import "context"

// SourceInfo summarizes a source database's current state.
type SourceInfo struct {
	DocCount  int64
	UpdateSeq string
}

// SourceDoc is a single document as read from the source database.
type SourceDoc struct {
	ID      string
	Rev     string
	Deleted bool
	Body    map[string]any
}

// ChangeRecord is a single entry from the source's change feed: a source
// document creation, update, or deletion, tagged with the sequence token
// that identifies its position in the feed.
type ChangeRecord struct {
	Seq     string
	ID      string
	Deleted bool
	Doc     map[string]any
}

// Source is the read-only view this engine needs of the document database
// backing an index: enough to bootstrap (Info), resolve include_docs joins
// (Get), and drive incremental updates (Changes). Transport, write paths,
// and everything else about the source database are out of scope.
type Source interface {
	// Info returns the source's current document count and update
	// sequence.
	Info(ctx context.Context) (SourceInfo, error)

	// Get fetches a single document by ID. It returns a NotFoundError
	// if no such document exists.
	Get(ctx context.Context, id string) (SourceDoc, error)

	// Changes streams change records with seq > since, in ascending
	// seq order, terminating the records channel when the feed is
	// exhausted. A send on the error channel ends the stream.
	Changes(ctx context.Context, since string) (<-chan ChangeRecord, <-chan error)
}

// StoredRow is a single persisted key/value record: the row produced by one
// emit() call from the map function for one source document.
type StoredRow struct {
	Key          []byte // composite indexable key, see package collate
	DocID        string
	EmittedKey   any
	EmittedValue any
}

// Writer batches row and metadata mutations for a single index update so
// they can be applied atomically by the backing store.
type Writer interface {
	PutRow(row StoredRow) error
	DeleteRow(key []byte) error
	PutMeta(key string, value any) error
	DeleteMeta(key string) error
}

// RowIterator walks a range of StoredRows in key order (ascending or
// descending, per the Scan call that produced it).
type RowIterator interface {
	Next() bool
	Row() StoredRow
	Err() error
	Close() error
}

// SecondaryStore is the ordered-key store an index persists its computed
// rows and bookkeeping metadata into. Implementations must give Batch full
// atomicity if they can (bbolt does, natively); if they cannot, they must
// honor the write order row deletes and row writes, then the meta record,
// then the lastSeq record, so a crash mid-batch never leaves the index
// believing it processed a change it only partially applied.
type SecondaryStore interface {
	// EnsureIndex prepares storage for the named index, creating it if
	// this is the first time it has been opened.
	EnsureIndex(ctx context.Context, index string) error

	// Scan walks rows with key in [lower, upper) in ascending order, or
	// the reverse range in descending order when descending is true.
	// A nil lower/upper bound means unbounded on that side.
	Scan(ctx context.Context, index string, lower, upper []byte, descending bool) (RowIterator, error)

	// Batch applies a set of row and metadata mutations as a single
	// atomic unit.
	Batch(ctx context.Context, index string, fn func(Writer) error) error

	// GetMeta loads a metadata value previously written with PutMeta.
	// It reports ok=false if the key has never been set.
	GetMeta(ctx context.Context, index, key string, out any) (ok bool, err error)

	// DestroyIndex permanently removes all rows and metadata for the
	// named index.
	DestroyIndex(ctx context.Context, index string) error
}

const (
	// MetaLastSeq is the metadata key storing the last source sequence
	// the index has fully processed.
	MetaLastSeq = "lastSeq"

	// metaDocPrefix prefixes per-source-document metadata keys that
	// record which rows that document last emitted, so the updater can
	// diff against it on the next change.
	metaDocPrefix = "doc:"
)

func metaDocKey(docID string) string {
	return metaDocPrefix + docID
}

// Row is a single result row returned by Query, after any include_docs
// join has been resolved.
type Row struct {
	ID    string
	Key   any
	Value any
	Doc   map[string]any `json:"doc,omitempty"`
}

// ViewDefinition names a map function and an optional reduce function as
// literal source text, exactly as they would appear in a CouchDB design
// document view.
type ViewDefinition struct {
	MapSrc    string
	ReduceSrc string
}

// Stale controls whether Query triggers an index update before answering.
type Stale int

const (
	// StaleFalse (the default) brings the index fully up to date with
	// the source before answering the query.
	StaleFalse Stale = iota
	// StaleOK answers immediately from whatever the index currently
	// holds, without waiting for or triggering an update.
	StaleOK
	// StaleUpdateAfter answers immediately, like StaleOK, but also
	// submits an update to run asynchronously afterward.
	StaleUpdateAfter
)

// QueryOptions mirrors CouchDB's view query parameters.
type QueryOptions struct {
	Key         any
	HasKey      bool
	Keys        []any
	StartKey    any
	HasStartKey bool
	EndKey      any
	HasEndKey   bool
	ExclusiveEnd bool // default false (endkey inclusive, matching CouchDB's inclusive_end=true default)
	Descending  bool
	Limit       int
	HasLimit    bool
	Skip        int
	IncludeDocs bool
	Reduce      bool
	HasReduce   bool // whether Reduce was explicitly set
	Group       bool
	GroupLevel  int
	HasGroupLevel bool
	Stale       Stale
}

// QueryResult is the full answer to a Query call.
type QueryResult struct {
	TotalRows int
	Offset    int
	Rows      []Row
}


