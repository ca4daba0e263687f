package ops

import (
	"fmt"
	"math"
	"sort"

	"github.com/klytics/xlengine/internal/table"
)

// AggregateFuncs are the supported aggregation function names.
var AggregateFuncs = []string{"sum", "mean", "min", "max", "count", "std"}

func knownFunc(name string) bool {
	for _, f := range AggregateFuncs {
		if f == name {
			return true
		}
	}
	return false
}

// Aggregate computes one scalar per (column, function) pair, keyed "<column>_<function>".
type Aggregate struct {
	Columns   []string `json:"columns"`
	Functions []string `json:"functions"`
}

func (Aggregate) Kind() Kind { return KindAggregate }

func applyAggregate(d *Dispatcher, t *table.Table, op Operation) (*Result, error) {
	a, err := mustKind[Aggregate](op)
	if err != nil {
		return nil, err
	}
	if len(a.Columns) == 0 {
		return nil, failf(KindAggregate, "at least one column is required")
	}

	summary := make(map[string]any, len(a.Columns)*len(a.Functions))
	for _, name := range a.Columns {
		col, err := t.Column(name)
		if err != nil {
			return nil, fail(KindAggregate, err)
		}
		for _, fn := range a.Functions {
			if !knownFunc(fn) {
				if d.StrictAggregate {
					return nil, failf(KindAggregate, "unknown function %q — supported: %v", fn, AggregateFuncs)
				}
				continue
			}
			v, err := reduce(fn, col.Type, col.Values)
			if err != nil {
				return nil, failf(KindAggregate, "%s(%s): %w", fn, name, err)
			}
			summary[name+"_"+fn] = v
		}
	}

	return &Result{
		Summary:    summary,
		Provenance: Provenance{Columns: a.Columns},
	}, nil
}

// reduce applies a known aggregation function to the non-null values of a column.
func reduce(fn string, typ table.Type, values []any) (any, error) {
	present := make([]any, 0, len(values))
	for _, v := range values {
		if v != nil {
			present = append(present, v)
		}
	}

	switch fn {
	case "count":
		return int64(len(present)), nil
	case "min", "max":
		if typ == table.Bool {
			return nil, fmt.Errorf("not defined on %s columns", typ)
		}
		if len(present) == 0 {
			return nil, nil
		}
		best := present[0]
		for _, v := range present[1:] {
			c := table.Compare(v, best)
			if (fn == "min" && c < 0) || (fn == "max" && c > 0) {
				best = v
			}
		}
		return best, nil
	}

	if !typ.Numeric() {
		return nil, fmt.Errorf("not defined on %s columns", typ)
	}

	switch fn {
	case "sum":
		if typ == table.Int {
			var s int64
			for _, v := range present {
				s += v.(int64)
			}
			return s, nil
		}
		return sortedSum(floats(present)), nil
	case "mean":
		if len(present) == 0 {
			return math.NaN(), nil
		}
		return sortedSum(floats(present)) / float64(len(present)), nil
	case "std":
		return sampleStd(floats(present)), nil
	}
	return nil, fmt.Errorf("unknown function %q", fn)
}

func floats(values []any) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i], _ = table.Float64(v)
	}
	return out
}

// sortedSum adds values in ascending order so the result does not depend on row order.
func sortedSum(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	var s float64
	for _, x := range sorted {
		s += x
	}
	return s
}

// sampleStd is the n-1 standard deviation; NaN for fewer than two values.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	mean := sortedSum(xs) / float64(len(xs))
	sq := make([]float64, len(xs))
	for i, x := range xs {
		sq[i] = (x - mean) * (x - mean)
	}
	return math.Sqrt(sortedSum(sq) / float64(len(xs)-1))
}
