package mrview

import (
	"context"
	"sync"

	"github.com/evalgo-labs/mrview/mapreduce"
	"github.com/evalgo-labs/mrview/tasks"
	"github.com/sirupsen/logrus"
)

// Registry holds one *Index per distinct (map, reduce) definition for the
// process lifetime, opening each lazily on first request and reusing it
// for every subsequent GetIndex call with the same definition.
type Registry struct {
	mu      sync.Mutex
	indexes map[string]*Index

	source Source
	store  SecondaryStore
	queue  *tasks.Queue
	eval   *mapreduce.Evaluator
	log    *logrus.Logger
}

// NewRegistry returns a Registry serving indexes over source, persisted in
// store, with updates/queries serialized through queue and map/reduce
// functions compiled by eval.
func NewRegistry(source Source, store SecondaryStore, queue *tasks.Queue, eval *mapreduce.Evaluator, log *logrus.Logger) *Registry {
	return &Registry{
		indexes: make(map[string]*Index),
		source:  source,
		store:   store,
		queue:   queue,
		eval:    eval,
		log:     log,
	}
}

// GetIndex returns the Index for def, opening it (compiling its functions
// and ensuring its store buckets exist) on first request.
func (r *Registry) GetIndex(ctx context.Context, def ViewDefinition) (*Index, error) {
	name := nameForDefinition(def)

	r.mu.Lock()
	if idx, ok := r.indexes[name]; ok {
		r.mu.Unlock()
		return idx, nil
	}
	r.mu.Unlock()

	idx, err := newIndex(name, def, r.source, r.store, r.queue, r.eval, r.log)
	if err != nil {
		return nil, err
	}
	if err := r.store.EnsureIndex(ctx, name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.indexes[name]; ok {
		return existing, nil
	}
	r.indexes[name] = idx
	return idx, nil
}

// RemoveIndex permanently destroys the index for def, serialized through
// the shared destroy lane so it never races an in-flight update or query
// against the same index.
func (r *Registry) RemoveIndex(ctx context.Context, def ViewDefinition) error {
	name := nameForDefinition(def)

	err := r.queue.Run(tasks.DestroyLane, func(ctx context.Context) error {
		return r.store.DestroyIndex(ctx, name)
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.indexes, name)
	r.mu.Unlock()
	return nil
}


