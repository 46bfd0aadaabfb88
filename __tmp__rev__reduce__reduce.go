// Package reduce implements the grouping and reduction stage of a
// map/reduce query: splitting a key-ordered run of emitted rows into
// groups of collation-equal keys, then folding each group down to a
// single value with either a built-in reducer (_sum, _count, _stats) or a
// user-supplied JavaScript reduce function.
package reduce

import "github.com/evalgo-labs/mrview/collate"

// Row is a single emitted (key, value) pair being grouped or reduced. It
// mirrors mrview.StoredRow's logical content without importing the mrview
// package, so this package stays usable standalone and without creating an
// import cycle.
type Row struct {
	Key   any
	Value any
	DocID string
}

// Group is a maximal run of Rows sharing the same (possibly truncated)
// key, in the order Rows were supplied.
type Group struct {
	Key  any
	Rows []Row
}

// GroupRows splits rows (assumed already in ascending key order) into Groups.
// When grouped is false, every row lands in a single group keyed nil,
// matching CouchDB's "group=false" ungrouped reduce. When grouped is true
// and groupLevel is 0 (or the key is not an array), rows are grouped by
// their exact emitted key. A positive groupLevel truncates array keys to
// their first groupLevel elements before comparing; non-array keys are
// compared whole regardless of groupLevel, per CouchDB's documented
// behavior for group_level with mixed key shapes.
func GroupRows(rows []Row, grouped bool, groupLevel int) []Group {
	if !grouped {
		if len(rows) == 0 {
			return nil
		}
		return []Group{{Key: nil, Rows: rows}}
	}

	var groups []Group
	for _, r := range rows {
		key := truncate(r.Key, groupLevel)
		if len(groups) > 0 && collate.Compare(groups[len(groups)-1].Key, key) == 0 {
			last := &groups[len(groups)-1]
			last.Rows = append(last.Rows, r)
			continue
		}
		groups = append(groups, Group{Key: key, Rows: []Row{r}})
	}
	return groups
}

func truncate(key any, level int) any {
	if level <= 0 {
		return key
	}
	arr, ok := key.([]any)
	if !ok {
		return key
	}
	if level >= len(arr) {
		return arr
	}
	return arr[:level]
}


