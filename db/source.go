package db

import (
	"context"
	"fmt"

	kivik "github.com/go-kivik/kivik/v4"

	"github.com/evalgo-labs/mrview/mrview"
)

// Source adapts a CouchDBService into the mrview.Source interface: the
// minimal read/change-feed surface the index engine needs of a document
// database, independent of everything else this package exposes.
type Source struct {
	svc *CouchDBService
}

// NewSource wraps svc as an mrview.Source.
func NewSource(svc *CouchDBService) *Source {
	return &Source{svc: svc}
}

// Info reports the source database's current document count and update
// sequence.
func (s *Source) Info(ctx context.Context) (mrview.SourceInfo, error) {
	info, err := s.svc.GetDatabaseInfo()
	if err != nil {
		return mrview.SourceInfo{}, err
	}
	return mrview.SourceInfo{DocCount: info.DocCount, UpdateSeq: info.UpdateSeq}, nil
}

// Get fetches a single document by ID.
func (s *Source) Get(ctx context.Context, id string) (mrview.SourceDoc, error) {
	row := s.svc.database.Get(ctx, id)
	if row.Err() != nil {
		if kivik.HTTPStatus(row.Err()) == 404 {
			return mrview.SourceDoc{}, mrview.NotFoundError("document %s not found", id)
		}
		return mrview.SourceDoc{}, fmt.Errorf("get document %s: %w", id, row.Err())
	}

	var body map[string]any
	if err := row.ScanDoc(&body); err != nil {
		return mrview.SourceDoc{}, fmt.Errorf("scan document %s: %w", id, err)
	}

	rev, _ := body["_rev"].(string)
	return mrview.SourceDoc{ID: id, Rev: rev, Body: body}, nil
}

// Changes streams change records with seq > since, in ascending seq order,
// closing the records channel once the feed is exhausted. It uses
// CouchDB's "normal" feed mode: one finite batch covering everything
// committed at call time, which is exactly the bounded pass an index
// update needs.
func (s *Source) Changes(ctx context.Context, since string) (<-chan mrview.ChangeRecord, <-chan error) {
	records := make(chan mrview.ChangeRecord)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		params := map[string]interface{}{
			"feed":         "normal",
			"include_docs": true,
		}
		if since != "" {
			params["since"] = since
		}

		feed := s.svc.database.Changes(ctx, kivik.Params(params))
		defer feed.Close()

		for feed.Next() {
			var body map[string]any
			deleted := feed.Deleted()
			if !deleted {
				if err := feed.ScanDoc(&body); err != nil {
					select {
					case errs <- fmt.Errorf("scan changed document %s: %w", feed.ID(), err):
					case <-ctx.Done():
					}
					return
				}
			}

			rec := mrview.ChangeRecord{
				Seq:     feed.Seq(),
				ID:      feed.ID(),
				Deleted: deleted,
				Doc:     body,
			}

			select {
			case records <- rec:
			case <-ctx.Done():
				return
			}
		}

		if err := feed.Err(); err != nil {
			select {
			case errs <- fmt.Errorf("changes feed: %w", err):
			case <-ctx.Done():
			}
		}
	}()

	return records, errs
}
