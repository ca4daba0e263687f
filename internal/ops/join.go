package ops

import (
	"github.com/klytics/xlengine/internal/table"
)

// JoinKind selects which unmatched rows a join keeps.
type JoinKind string

const (
	InnerJoin JoinKind = "inner"
	LeftJoin  JoinKind = "left"
	RightJoin JoinKind = "right"
	OuterJoin JoinKind = "outer"
)

// Join merges the dispatched (left) table with Right on the shared key column On.
type Join struct {
	Right *table.Table `json:"-"`
	On    string       `json:"on"`
	How   JoinKind     `json:"how"`
}

func (Join) Kind() Kind { return KindJoin }

// joinRow pairs a left row index with a right row index; -1 marks the missing side.
type joinRow struct {
	left, right int
}

func applyJoin(_ *Dispatcher, t *table.Table, op Operation) (*Result, error) {
	j, err := mustKind[Join](op)
	if err != nil {
		return nil, err
	}
	how := j.How
	if how == "" {
		how = InnerJoin
	}
	switch how {
	case InnerJoin, LeftJoin, RightJoin, OuterJoin:
	default:
		return nil, failf(KindJoin, "unknown join kind %q — supported: inner, left, right, outer", how)
	}
	if j.Right == nil {
		return nil, failf(KindJoin, "right table is required")
	}
	if j.On == "" {
		return nil, failf(KindJoin, "key column is required")
	}

	lk, err := t.Column(j.On)
	if err != nil {
		return nil, failf(KindJoin, "left table: %w", err)
	}
	rk, err := j.Right.Column(j.On)
	if err != nil {
		return nil, failf(KindJoin, "right table: %w", err)
	}
	keyType := lk.Type
	if lk.Type != rk.Type {
		if !lk.Type.Numeric() || !rk.Type.Numeric() {
			return nil, failf(KindJoin, "key %q is %s on the left and %s on the right", j.On, lk.Type, rk.Type)
		}
		keyType = table.Float
	}

	pairs := matchRows(lk, rk, how)
	cols := joinColumns(t, j.Right, j.On, keyType, pairs)
	out, err := table.New(t.Name, cols...)
	if err != nil {
		return nil, fail(KindJoin, err)
	}
	return &Result{Table: out, Provenance: Provenance{Columns: []string{j.On}}}, nil
}

// matchRows computes the output row pairs in output order.
func matchRows(lk, rk *table.Column, how JoinKind) []joinRow {
	index := func(c *table.Column) map[any][]int {
		m := make(map[any][]int)
		for i, v := range c.Values {
			if v == nil {
				continue
			}
			m[table.Key(v)] = append(m[table.Key(v)], i)
		}
		return m
	}

	var pairs []joinRow
	if how == RightJoin {
		left := index(lk)
		for r, v := range rk.Values {
			matches := lookup(left, v)
			if len(matches) == 0 {
				pairs = append(pairs, joinRow{-1, r})
				continue
			}
			for _, l := range matches {
				pairs = append(pairs, joinRow{l, r})
			}
		}
		return pairs
	}

	right := index(rk)
	matched := make([]bool, rk.Len())
	for l, v := range lk.Values {
		matches := lookup(right, v)
		if len(matches) == 0 {
			if how != InnerJoin {
				pairs = append(pairs, joinRow{l, -1})
			}
			continue
		}
		for _, r := range matches {
			matched[r] = true
			pairs = append(pairs, joinRow{l, r})
		}
	}
	if how == OuterJoin {
		for r, ok := range matched {
			if !ok {
				pairs = append(pairs, joinRow{-1, r})
			}
		}
	}
	return pairs
}

func lookup(index map[any][]int, v any) []int {
	if v == nil {
		return nil
	}
	return index[table.Key(v)]
}

// joinColumns lays out the key column, then the left and right non-key columns.
// Names present on both sides get _x and _y suffixes.
func joinColumns(left, right *table.Table, on string, keyType table.Type, pairs []joinRow) []*table.Column {
	lk, _ := left.Column(on)
	rk, _ := right.Column(on)

	key := &table.Column{Name: on, Type: keyType, Values: make([]any, len(pairs))}
	for i, p := range pairs {
		var v any
		if p.left >= 0 {
			v = lk.Values[p.left]
		} else {
			v = rk.Values[p.right]
		}
		if keyType == table.Float {
			v = convert(v, table.Float)
		}
		key.Values[i] = v
	}
	cols := []*table.Column{key}

	taken := func(t *table.Table, name string) bool {
		return name != on && t.Index(name) >= 0
	}
	side := func(src *table.Table, other *table.Table, suffix string, pick func(joinRow) int) {
		for _, c := range src.Columns {
			if c.Name == on {
				continue
			}
			name := c.Name
			if taken(other, name) {
				name += suffix
			}
			out := &table.Column{Name: name, Type: c.Type, Values: make([]any, len(pairs))}
			for i, p := range pairs {
				if r := pick(p); r >= 0 {
					out.Values[i] = c.Values[r]
				}
			}
			cols = append(cols, out)
		}
	}
	side(left, right, "_x", func(p joinRow) int { return p.left })
	side(right, left, "_y", func(p joinRow) int { return p.right })
	return cols
}
