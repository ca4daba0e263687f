// Package ops applies one tabular operation at a time to a table.
//
// Each operation is a small value type; Dispatcher.Apply looks its kind up in a
// dispatch table and returns either a new table or a flat summary record. Input
// tables are never modified.
package ops

import (
	"fmt"
	"sort"
	"time"

	"github.com/klytics/xlengine/internal/apperr"
	"github.com/klytics/xlengine/internal/table"
)

// Kind names an operation variant.
type Kind string

const (
	KindMath        Kind = "math"
	KindAggregate   Kind = "aggregate"
	KindFilter      Kind = "filter"
	KindPivot       Kind = "pivot"
	KindUnpivot     Kind = "unpivot"
	KindDateExtract Kind = "date-extract"
	KindJoin        Kind = "join"
)

// Kinds lists every supported operation kind.
func Kinds() []Kind {
	return []Kind{KindMath, KindAggregate, KindFilter, KindPivot, KindUnpivot, KindDateExtract, KindJoin}
}

// Operation is one of Math, Aggregate, Filter, Pivot, Unpivot, DateExtract or Join.
type Operation interface {
	Kind() Kind
}

// Provenance describes what an operation did.
type Provenance struct {
	Operation  Kind      `json:"operation"`
	RowsBefore int       `json:"rows_before"`
	RowsAfter  int       `json:"rows_after"`
	Columns    []string  `json:"columns"`
	Timestamp  time.Time `json:"timestamp"`
}

// Result is a transformed table, or a summary record for aggregations.
type Result struct {
	Table      *table.Table   `json:"-"`
	Summary    map[string]any `json:"summary,omitempty"`
	Provenance Provenance     `json:"provenance"`
}

// Keys returns the summary keys in sorted order.
func (r *Result) Keys() []string {
	keys := make([]string, 0, len(r.Summary))
	for k := range r.Summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type applyFunc func(d *Dispatcher, t *table.Table, op Operation) (*Result, error)

var dispatch = map[Kind]applyFunc{
	KindMath:        applyMath,
	KindAggregate:   applyAggregate,
	KindFilter:      applyFilter,
	KindPivot:       applyPivot,
	KindUnpivot:     applyUnpivot,
	KindDateExtract: applyDateExtract,
	KindJoin:        applyJoin,
}

// Dispatcher applies operations. The zero value is ready to use.
type Dispatcher struct {
	// StrictAggregate turns unknown aggregate function names into errors
	// instead of skipping them.
	StrictAggregate bool

	// Now stamps provenance; defaults to time.Now.
	Now func() time.Time
}

// Apply runs op against t.
func (d *Dispatcher) Apply(t *table.Table, op Operation) (*Result, error) {
	if op == nil {
		return nil, apperr.Errorf(apperr.OperationFailed, "apply", "no operation given")
	}
	if t == nil {
		return nil, apperr.Errorf(apperr.OperationFailed, string(op.Kind()), "no table given")
	}
	fn, ok := dispatch[op.Kind()]
	if !ok {
		return nil, apperr.Errorf(apperr.OperationFailed, string(op.Kind()), "unknown operation %q", op.Kind())
	}

	res, err := fn(d, t, op)
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			return nil, apperr.New(apperr.OperationFailed, string(op.Kind()), err)
		}
		return nil, err
	}

	res.Provenance.Operation = op.Kind()
	res.Provenance.RowsBefore = t.NumRows()
	if res.Table != nil {
		res.Provenance.RowsAfter = res.Table.NumRows()
	} else {
		res.Provenance.RowsAfter = t.NumRows()
	}
	res.Provenance.Timestamp = d.now()
	return res, nil
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func failf(kind Kind, format string, args ...any) error {
	return apperr.Errorf(apperr.OperationFailed, string(kind), format, args...)
}

func fail(kind Kind, err error) error {
	return apperr.New(apperr.OperationFailed, string(kind), err)
}

// numericColumn fetches a column and checks that arithmetic is defined on it.
func numericColumn(kind Kind, t *table.Table, name string) (*table.Column, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, fail(kind, err)
	}
	if !col.Type.Numeric() {
		return nil, failf(kind, "column %q is %s, expected a numeric column", name, col.Type)
	}
	return col, nil
}

func mustKind[T Operation](op Operation) (T, error) {
	v, ok := op.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("operation %T does not match kind %q", op, op.Kind())
	}
	return v, nil
}
