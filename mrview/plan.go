package mrview

import "github.com/evalgo-labs/mrview/collate"

// scanRange is a single bounded, directional scan to run against the
// secondary store.
type scanRange struct {
	lower, upper []byte
	descending   bool
}

// validate checks QueryOptions for the contradictions the spec calls out
// as query_parse_error conditions: an inverted key range, and requesting
// both reduce and include_docs (a reduced result has no single source
// document to join against).
func (o QueryOptions) validate() error {
	if o.Reduce && o.IncludeDocs {
		return QueryParseError("include_docs is incompatible with reduce=true")
	}
	if o.HasStartKey && o.HasEndKey {
		cmp := collate.Compare(collate.Normalize(o.StartKey), collate.Normalize(o.EndKey))
		if !o.Descending && cmp > 0 {
			return QueryParseError("startkey must be <= endkey when descending=false")
		}
		if o.Descending && cmp < 0 {
			return QueryParseError("startkey must be >= endkey when descending=true")
		}
	}
	return nil
}

// buildRanges turns QueryOptions into the set of scans that together cover
// every row the query should consider. A Keys query produces one range per
// key, preserving the caller's key order; any other query produces exactly
// one range.
func buildRanges(o QueryOptions) ([]scanRange, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	if len(o.Keys) > 0 {
		ranges := make([]scanRange, len(o.Keys))
		for i, k := range o.Keys {
			ranges[i] = exactKeyRange(k, o.Descending)
		}
		return ranges, nil
	}

	if o.HasKey {
		return []scanRange{exactKeyRange(o.Key, o.Descending)}, nil
	}

	return []scanRange{boundedRange(o)}, nil
}

func exactKeyRange(key any, descending bool) scanRange {
	prefix := collate.KeyPrefix(key)
	return scanRange{lower: prefix, upper: collate.UpperBound(prefix), descending: descending}
}

// boundedRange turns startkey/endkey into absolute [lower, upper) store
// bounds. startkey is always an inclusive bound; endkey is inclusive
// unless ExclusiveEnd is set. When descending, CouchDB's documented
// convention reverses which side each bound lands on: startkey becomes the
// conceptual upper bound of the scan (since descending results begin
// there) and endkey the lower bound.
func boundedRange(o QueryOptions) scanRange {
	var lower, upper []byte

	if !o.Descending {
		if o.HasStartKey {
			lower = collate.KeyPrefix(o.StartKey)
		}
		if o.HasEndKey {
			prefix := collate.KeyPrefix(o.EndKey)
			if o.ExclusiveEnd {
				upper = prefix
			} else {
				upper = collate.UpperBound(prefix)
			}
		}
	} else {
		if o.HasStartKey {
			upper = collate.UpperBound(collate.KeyPrefix(o.StartKey))
		}
		if o.HasEndKey {
			prefix := collate.KeyPrefix(o.EndKey)
			if o.ExclusiveEnd {
				lower = collate.UpperBound(prefix)
			} else {
				lower = prefix
			}
		}
	}

	return scanRange{lower: lower, upper: upper, descending: o.Descending}
}
