package ops

import (
	"sort"

	"github.com/klytics/xlengine/internal/table"
)

// Pivot cross-tabulates Values by Index (rows) and Columns (new columns).
type Pivot struct {
	Values  string `json:"values"`
	Index   string `json:"index"`
	Columns string `json:"columns"`
	AggFunc string `json:"aggfunc"`
}

func (Pivot) Kind() Kind { return KindPivot }

// Unpivot turns the value columns into rows of (id columns..., variable, value).
type Unpivot struct {
	IDVars    []string `json:"id_vars"`
	ValueVars []string `json:"value_vars"`
}

func (Unpivot) Kind() Kind { return KindUnpivot }

type pivotCell struct {
	row, col int
}

func applyPivot(_ *Dispatcher, t *table.Table, op Operation) (*Result, error) {
	p, err := mustKind[Pivot](op)
	if err != nil {
		return nil, err
	}
	agg := p.AggFunc
	if agg == "" {
		agg = "mean"
	}
	if !knownFunc(agg) {
		return nil, failf(KindPivot, "unknown aggfunc %q — supported: %v", agg, AggregateFuncs)
	}

	values, err := t.Column(p.Values)
	if err != nil {
		return nil, fail(KindPivot, err)
	}
	index, err := t.Column(p.Index)
	if err != nil {
		return nil, fail(KindPivot, err)
	}
	columns, err := t.Column(p.Columns)
	if err != nil {
		return nil, fail(KindPivot, err)
	}

	rowKeys := distinctSorted(index.Values)
	colKeys := distinctSorted(columns.Values)
	rowPos := positions(rowKeys)
	colPos := positions(colKeys)

	groups := make(map[pivotCell][]any)
	for i := 0; i < t.NumRows(); i++ {
		iv, cv := index.Values[i], columns.Values[i]
		if iv == nil || cv == nil {
			continue
		}
		cell := pivotCell{rowPos[table.Key(iv)], colPos[table.Key(cv)]}
		groups[cell] = append(groups[cell], values.Values[i])
	}

	outType := aggregateType(agg, values.Type)
	cols := make([]*table.Column, 0, len(colKeys)+1)
	cols = append(cols, &table.Column{Name: p.Index, Type: index.Type, Values: rowKeys})
	for c, key := range colKeys {
		col := &table.Column{Name: table.Format(key), Type: outType, Values: make([]any, len(rowKeys))}
		for r := range rowKeys {
			group, ok := groups[pivotCell{r, c}]
			if !ok {
				continue
			}
			v, err := reduce(agg, values.Type, group)
			if err != nil {
				return nil, failf(KindPivot, "%s(%s): %w", agg, p.Values, err)
			}
			col.Values[r] = v
		}
		cols = append(cols, col)
	}

	out, err := table.New(t.Name, cols...)
	if err != nil {
		return nil, fail(KindPivot, err)
	}
	return &Result{
		Table:      out,
		Provenance: Provenance{Columns: []string{p.Values, p.Index, p.Columns}},
	}, nil
}

// aggregateType is the column type produced by reduce for a source column type.
func aggregateType(fn string, src table.Type) table.Type {
	switch fn {
	case "count":
		return table.Int
	case "mean", "std":
		return table.Float
	}
	return src
}

// distinctSorted returns the distinct non-null values in ascending order.
func distinctSorted(values []any) []any {
	seen := make(map[any]bool)
	var out []any
	for _, v := range values {
		if v == nil || seen[table.Key(v)] {
			continue
		}
		seen[table.Key(v)] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return table.Compare(out[i], out[j]) < 0 })
	return out
}

func positions(keys []any) map[any]int {
	pos := make(map[any]int, len(keys))
	for i, k := range keys {
		pos[table.Key(k)] = i
	}
	return pos
}

func applyUnpivot(_ *Dispatcher, t *table.Table, op Operation) (*Result, error) {
	u, err := mustKind[Unpivot](op)
	if err != nil {
		return nil, err
	}

	ids := make([]*table.Column, len(u.IDVars))
	isID := make(map[string]bool, len(u.IDVars))
	for i, name := range u.IDVars {
		col, err := t.Column(name)
		if err != nil {
			return nil, fail(KindUnpivot, err)
		}
		ids[i] = col
		isID[name] = true
	}

	valueNames := u.ValueVars
	if len(valueNames) == 0 {
		for _, name := range t.ColumnNames() {
			if !isID[name] {
				valueNames = append(valueNames, name)
			}
		}
	}
	if len(valueNames) == 0 {
		return nil, failf(KindUnpivot, "no value columns to unpivot")
	}
	vals := make([]*table.Column, len(valueNames))
	for i, name := range valueNames {
		col, err := t.Column(name)
		if err != nil {
			return nil, fail(KindUnpivot, err)
		}
		vals[i] = col
	}
	for _, reserved := range []string{"variable", "value"} {
		if isID[reserved] {
			return nil, failf(KindUnpivot, "id column %q collides with an output column", reserved)
		}
	}

	valueType := commonType(vals)
	n := t.NumRows() * len(vals)
	outIDs := make([]*table.Column, len(ids))
	for i, c := range ids {
		outIDs[i] = &table.Column{Name: c.Name, Type: c.Type, Values: make([]any, 0, n)}
	}
	variable := &table.Column{Name: "variable", Type: table.Text, Values: make([]any, 0, n)}
	value := &table.Column{Name: "value", Type: valueType, Values: make([]any, 0, n)}

	for _, vc := range vals {
		for r := 0; r < t.NumRows(); r++ {
			for i, c := range ids {
				outIDs[i].Values = append(outIDs[i].Values, c.Values[r])
			}
			variable.Values = append(variable.Values, vc.Name)
			value.Values = append(value.Values, convert(vc.Values[r], valueType))
		}
	}

	out, err := table.New(t.Name, append(outIDs, variable, value)...)
	if err != nil {
		return nil, fail(KindUnpivot, err)
	}
	return &Result{
		Table:      out,
		Provenance: Provenance{Columns: append(append([]string{}, u.IDVars...), valueNames...)},
	}, nil
}

// commonType picks the type of the unpivoted value column: the shared type, Float for
// a mix of Int and Float, Text otherwise.
func commonType(cols []*table.Column) table.Type {
	typ := cols[0].Type
	for _, c := range cols[1:] {
		if c.Type == typ {
			continue
		}
		if c.Type.Numeric() && typ.Numeric() {
			typ = table.Float
			continue
		}
		return table.Text
	}
	return typ
}

func convert(v any, typ table.Type) any {
	if v == nil {
		return nil
	}
	switch typ {
	case table.Float:
		f, _ := table.Float64(v)
		return f
	case table.Text:
		if s, ok := v.(string); ok {
			return s
		}
		return table.Format(v)
	}
	return v
}
