package mrview

import (
	"encoding/hex"
	"hash/fnv"

	"github.com/evalgo-labs/mrview/mapreduce"
	"github.com/evalgo-labs/mrview/reduce"
	"github.com/evalgo-labs/mrview/tasks"
	"github.com/sirupsen/logrus"
)

// Index is a live handle on one (map, reduce) view: the compiled functions,
// the source and store it bridges, and the task-queue lane its updates and
// queries serialize through. Index is safe for concurrent use; all
// mutating access to the secondary store happens inside tasks run on the
// index's own lane.
type Index struct {
	Name string
	Def  ViewDefinition

	source Source
	store  SecondaryStore
	queue  *tasks.Queue
	log    *logrus.Logger

	mapFn   mapreduce.MapFunc
	reducer *reduce.Reducer
}

// nameForDefinition derives a stable index name from the view definition's
// source text, the way CouchDB derives a view group's signature: a
// non-cryptographic hash of the concatenated map and reduce source, wide
// enough that collisions are not a practical concern for the number of
// distinct views a single process will ever hold open, but cheap to
// compute on every GetIndex call.
func nameForDefinition(def ViewDefinition) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(def.MapSrc))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(def.ReduceSrc))
	sum := h.Sum32() & 0x0fffffff // 28 bits, matching the spec's budget
	return "mrview-" + hex.EncodeToString([]byte{
		byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum),
	})[1:]
}

func newIndex(name string, def ViewDefinition, source Source, store SecondaryStore, queue *tasks.Queue, eval *mapreduce.Evaluator, log *logrus.Logger) (*Index, error) {
	mapFn, err := eval.CompileMap(def.MapSrc)
	if err != nil {
		return nil, QueryParseError("compiling map function: %v", err)
	}

	idx := &Index{
		Name:   name,
		Def:    def,
		source: source,
		store:  store,
		queue:  queue,
		log:    log,
		mapFn:  mapFn,
	}

	if def.ReduceSrc != "" {
		if builtin, ok := reduce.Builtin(def.ReduceSrc); ok {
			r := reduce.NewBuiltinReducer(builtin)
			idx.reducer = &r
		} else {
			reduceFn, err := eval.CompileReduce(def.ReduceSrc)
			if err != nil {
				return nil, QueryParseError("compiling reduce function: %v", err)
			}
			r := reduce.NewUserReducer(reduceFn)
			idx.reducer = &r
		}
	}

	return idx, nil
}


