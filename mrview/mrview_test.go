package mrview

import (
	"context"
	"fmt"
	"sync"
)

// fakeSource is an in-memory mrview.Source used across this package's
// tests: a small ordered log of changes plus the current per-ID document
// state, mirroring a real CouchDB database's _changes feed and document
// store closely enough to exercise the updater and query planner.
type fakeSource struct {
	mu      sync.Mutex
	seq     int
	changes []ChangeRecord
	docs    map[string]SourceDoc
}

func newFakeSource() *fakeSource {
	return &fakeSource{docs: make(map[string]SourceDoc)}
}

// seqString zero-pads sequence numbers so plain string comparison agrees
// with numeric order, matching how a real change feed's opaque sequence
// tokens are still compared as strings by this engine.
func seqString(n int) string {
	return fmt.Sprintf("%05d", n)
}

func (s *fakeSource) Put(id string, body map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	seq := seqString(s.seq)
	s.docs[id] = SourceDoc{ID: id, Rev: seq, Body: body}
	s.changes = append(s.changes, ChangeRecord{Seq: seq, ID: id, Doc: body})
}

func (s *fakeSource) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	seq := seqString(s.seq)
	delete(s.docs, id)
	s.changes = append(s.changes, ChangeRecord{Seq: seq, ID: id, Deleted: true})
}

func (s *fakeSource) Info(ctx context.Context) (SourceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SourceInfo{DocCount: int64(len(s.docs)), UpdateSeq: seqString(s.seq)}, nil
}

func (s *fakeSource) Get(ctx context.Context, id string) (SourceDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return SourceDoc{}, NotFoundError("document %q not found", id)
	}
	return doc, nil
}

func (s *fakeSource) Changes(ctx context.Context, since string) (<-chan ChangeRecord, <-chan error) {
	records := make(chan ChangeRecord, 16)
	errs := make(chan error, 1)

	s.mu.Lock()
	all := append([]ChangeRecord(nil), s.changes...)
	s.mu.Unlock()

	go func() {
		defer close(records)
		defer close(errs)
		for _, rec := range all {
			if since != "" && rec.Seq <= since {
				continue
			}
			select {
			case records <- rec:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return records, errs
}
