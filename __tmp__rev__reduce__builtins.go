package reduce

import (
	"math"

	"github.com/evalgo-labs/mrview/mapreduce"
)

// Func reduces (or rereduces) one Group's worth of values to a single
// output value.
type Func func(g Group, rereduce bool) (any, error)

// stats is the accumulator shape returned by the _stats built-in,
// matching CouchDB's {sum, count, min, max, sumsqr} reduce output.
type stats struct {
	Sum    float64 `json:"sum"`
	Count  int64   `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	SumSqr float64 `json:"sumsqr"`
}

// Builtin resolves one of the three CouchDB built-in reducer names to a
// Func. ok is false if name is not a recognized built-in, in which case
// the caller should treat reduceSrc as user JavaScript instead.
func Builtin(name string) (fn Func, ok bool) {
	switch name {
	case "_sum":
		return sumReduce, true
	case "_count":
		return countReduce, true
	case "_stats":
		return statsReduce, true
	default:
		return nil, false
	}
}

// sumReduce adds numeric values, or sums arrays of numbers component-wise
// when every value in the group is an array of matching length, matching
// CouchDB's _sum semantics.
func sumReduce(g Group, rereduce bool) (any, error) {
	if len(g.Rows) == 0 {
		return float64(0), nil
	}
	if arr, ok := g.Rows[0].Value.([]any); ok {
		return sumArrays(g, len(arr))
	}

	var total float64
	for _, r := range g.Rows {
		n, ok := toNumber(r.Value)
		if !ok {
			return nil, invalidValue("_sum", r.Value)
		}
		total += n
	}
	return total, nil
}

func sumArrays(g Group, width int) (any, error) {
	totals := make([]float64, width)
	for _, r := range g.Rows {
		arr, ok := r.Value.([]any)
		if !ok || len(arr) != width {
			return nil, invalidValue("_sum", r.Value)
		}
		for i, v := range arr {
			n, ok := toNumber(v)
			if !ok {
				return nil, invalidValue("_sum", v)
			}
			totals[i] += n
		}
	}
	out := make([]any, width)
	for i, t := range totals {
		out[i] = t
	}
	return out, nil
}

// countReduce counts rows on the initial reduce and sums partial counts on
// rereduce, matching CouchDB's _count semantics.
func countReduce(g Group, rereduce bool) (any, error) {
	if !rereduce {
		return int64(len(g.Rows)), nil
	}
	var total int64
	for _, r := range g.Rows {
		n, ok := toNumber(r.Value)
		if !ok {
			return nil, invalidValue("_count", r.Value)
		}
		total += int64(n)
	}
	return total, nil
}

// statsReduce computes sum/count/min/max/sumsqr over numeric values on the
// initial reduce, and recombines partial stats objects pointwise on
// rereduce.
func statsReduce(g Group, rereduce bool) (any, error) {
	if len(g.Rows) == 0 {
		return nil, invalidValue("_stats", nil)
	}

	if rereduce {
		acc := stats{Min: math.Inf(1), Max: math.Inf(-1)}
		for _, r := range g.Rows {
			s, err := toStats(r.Value)
			if err != nil {
				return nil, err
			}
			acc.Sum += s.Sum
			acc.Count += s.Count
			acc.SumSqr += s.SumSqr
			if s.Min < acc.Min {
				acc.Min = s.Min
			}
			if s.Max > acc.Max {
				acc.Max = s.Max
			}
		}
		return acc, nil
	}

	acc := stats{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, r := range g.Rows {
		n, ok := toNumber(r.Value)
		if !ok {
			return nil, invalidValue("_stats", r.Value)
		}
		acc.Sum += n
		acc.Count++
		acc.SumSqr += n * n
		if n < acc.Min {
			acc.Min = n
		}
		if n > acc.Max {
			acc.Max = n
		}
	}
	return acc, nil
}

func toStats(v any) (stats, error) {
	switch t := v.(type) {
	case stats:
		return t, nil
	case map[string]any:
		s := stats{}
		var ok bool
		if s.Sum, ok = toNumber(t["sum"]); !ok {
			return stats{}, invalidValue("_stats", v)
		}
		if c, ok2 := toNumber(t["count"]); ok2 {
			s.Count = int64(c)
		} else {
			return stats{}, invalidValue("_stats", v)
		}
		if s.Min, ok = toNumber(t["min"]); !ok {
			return stats{}, invalidValue("_stats", v)
		}
		if s.Max, ok = toNumber(t["max"]); !ok {
			return stats{}, invalidValue("_stats", v)
		}
		if s.SumSqr, ok = toNumber(t["sumsqr"]); !ok {
			return stats{}, invalidValue("_stats", v)
		}
		return s, nil
	default:
		return stats{}, invalidValue("_stats", v)
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func invalidValue(reducer string, v any) error {
	return &invalidValueError{reducer: reducer, value: v}
}

// invalidValueError reports that a built-in reducer received a value it
// cannot operate on. It carries enough detail for callers to translate it
// into the engine's mrview.Error taxonomy without this package depending
// on mrview.
type invalidValueError struct {
	reducer string
	value   any
}

func (e *invalidValueError) Error() string {
	return "reducer " + e.reducer + " received a non-numeric value"
}

// Reducer wraps either a built-in Func or a compiled user ReduceFunc
// behind a single calling convention.
type Reducer struct {
	builtin Func
	user    mapreduce.ReduceFunc
}

// NewBuiltinReducer wraps a built-in Func.
func NewBuiltinReducer(fn Func) Reducer {
	return Reducer{builtin: fn}
}

// NewUserReducer wraps a compiled JavaScript ReduceFunc.
func NewUserReducer(fn mapreduce.ReduceFunc) Reducer {
	return Reducer{user: fn}
}

// Reduce folds g down to a single value, dispatching to whichever
// implementation this Reducer wraps.
func (r Reducer) Reduce(g Group, rereduce bool) (any, error) {
	if r.builtin != nil {
		return r.builtin(g, rereduce)
	}
	keys := make([]any, len(g.Rows))
	values := make([]any, len(g.Rows))
	for i, row := range g.Rows {
		keys[i] = []any{row.Key, row.DocID}
		values[i] = row.Value
	}
	return r.user(keys, values, rereduce)
}


