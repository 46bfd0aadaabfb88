// Package mapreduce implements the MapReduceEvaluator capability: it
// compiles map and reduce function source text submitted as literal
// JavaScript (the same source CouchDB/PouchDB design documents use) and
// runs them against documents and grouped rows. Each call gets a fresh
// goja.Runtime, since map and reduce functions are treated as pure and
// non-suspending: no state is expected, or allowed, to leak between
// documents.
package mapreduce

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"
)

// Emitted is a single (key, value) pair produced by one emit() call within
// a map function invocation, tagged with its 0-based call index so the
// caller can build the composite row key.
type Emitted struct {
	Key   any
	Value any
	Index int
}

// Evaluator compiles and runs map/reduce source text.
type Evaluator struct {
	log *logrus.Logger
}

// New returns an Evaluator that logs injected log() calls through logger.
// A nil logger disables log() output entirely.
func New(logger *logrus.Logger) *Evaluator {
	return &Evaluator{log: logger}
}

// MapFunc, once compiled, applies a map function's emitted side effects to
// a single document.
type MapFunc func(doc map[string]any) ([]Emitted, error)

// ReduceFunc, once compiled, reduces (or rereduces) a run of grouped
// key/value pairs into a single value.
type ReduceFunc func(keys []any, values []any, rereduce bool) (any, error)

// CompileMap compiles src as a CouchDB-style map function:
// function(doc) { emit(key, value); ... }. The returned MapFunc is safe to
// call repeatedly and concurrently; each call builds its own goja.Runtime.
func (e *Evaluator) CompileMap(src string) (MapFunc, error) {
	if _, err := goja.Compile("map.js", wrapMap(src), true); err != nil {
		return nil, fmt.Errorf("compiling map function: %w", err)
	}

	return func(doc map[string]any) ([]Emitted, error) {
		vm := goja.New()
		var emitted []Emitted
		idx := 0

		if err := vm.Set("emit", func(key, value goja.Value) {
			emitted = append(emitted, Emitted{
				Key:   key.Export(),
				Value: value.Export(),
				Index: idx,
			})
			idx++
		}); err != nil {
			return nil, fmt.Errorf("binding emit: %w", err)
		}
		e.bindLog(vm)

		if _, err := vm.RunString(wrapMap(src)); err != nil {
			return nil, fmt.Errorf("running map function: %w", err)
		}

		fn, ok := goja.AssertFunction(vm.Get("__mrview_map__"))
		if !ok {
			return nil, fmt.Errorf("map function did not evaluate to a function")
		}
		if _, err := fn(goja.Undefined(), vm.ToValue(doc)); err != nil {
			return nil, fmt.Errorf("invoking map function: %w", err)
		}
		return emitted, nil
	}, nil
}

// CompileReduce compiles src as a CouchDB-style reduce function:
// function(keys, values, rereduce) { return ...; }.
func (e *Evaluator) CompileReduce(src string) (ReduceFunc, error) {
	if _, err := goja.Compile("reduce.js", wrapReduce(src), true); err != nil {
		return nil, fmt.Errorf("compiling reduce function: %w", err)
	}

	return func(keys []any, values []any, rereduce bool) (any, error) {
		vm := goja.New()
		e.bindLog(vm)

		if _, err := vm.RunString(wrapReduce(src)); err != nil {
			return nil, fmt.Errorf("running reduce function: %w", err)
		}

		fn, ok := goja.AssertFunction(vm.Get("__mrview_reduce__"))
		if !ok {
			return nil, fmt.Errorf("reduce function did not evaluate to a function")
		}
		result, err := fn(goja.Undefined(), vm.ToValue(keys), vm.ToValue(values), vm.ToValue(rereduce))
		if err != nil {
			return nil, fmt.Errorf("invoking reduce function: %w", err)
		}
		return result.Export(), nil
	}, nil
}

func (e *Evaluator) bindLog(vm *goja.Runtime) {
	logger := e.log
	_ = vm.Set("log", func(msg goja.Value) {
		if logger == nil {
			return
		}
		logger.WithField("source", "mapreduce").Debug(msg.String())
	})
}

// wrapMap assigns the user's function expression to a name we can fetch
// back out of the runtime's global scope after evaluation.
func wrapMap(src string) string {
	return "var __mrview_map__ = (" + src + ");"
}

func wrapReduce(src string) string {
	return "var __mrview_reduce__ = (" + src + ");"
}


