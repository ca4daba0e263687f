package ops

import (
	"github.com/klytics/xlengine/internal/table"
)

// Arithmetic is a binary operator applied by Math.
type Arithmetic string

const (
	Add      Arithmetic = "add"
	Subtract Arithmetic = "subtract"
	Multiply Arithmetic = "multiply"
	Divide   Arithmetic = "divide"
)

// Math writes Left <Op> Right, row by row, into the Result column.
type Math struct {
	Op     Arithmetic `json:"operation"`
	Left   string     `json:"col1"`
	Right  string     `json:"col2"`
	Result string     `json:"result_col"`
}

func (Math) Kind() Kind { return KindMath }

func applyMath(_ *Dispatcher, t *table.Table, op Operation) (*Result, error) {
	m, err := mustKind[Math](op)
	if err != nil {
		return nil, err
	}
	switch m.Op {
	case Add, Subtract, Multiply, Divide:
	default:
		return nil, failf(KindMath, "unknown operator %q — supported: add, subtract, multiply, divide", m.Op)
	}
	if m.Result == "" {
		return nil, failf(KindMath, "result column name is required")
	}

	left, err := numericColumn(KindMath, t, m.Left)
	if err != nil {
		return nil, err
	}
	right, err := numericColumn(KindMath, t, m.Right)
	if err != nil {
		return nil, err
	}

	// Integer arithmetic stays integral except for division, which is always true division.
	integral := left.Type == table.Int && right.Type == table.Int && m.Op != Divide
	out := &table.Column{Name: m.Result, Type: table.Float, Values: make([]any, t.NumRows())}
	if integral {
		out.Type = table.Int
	}

	for i := range out.Values {
		a, b := left.Values[i], right.Values[i]
		if a == nil || b == nil {
			continue
		}
		if integral {
			out.Values[i] = intOp(m.Op, a.(int64), b.(int64))
			continue
		}
		x, _ := table.Float64(a)
		y, _ := table.Float64(b)
		out.Values[i] = floatOp(m.Op, x, y)
	}

	res := t.Clone()
	if err := res.Set(out); err != nil {
		return nil, fail(KindMath, err)
	}
	return &Result{
		Table:      res,
		Provenance: Provenance{Columns: []string{m.Left, m.Right, m.Result}},
	}, nil
}

func intOp(op Arithmetic, a, b int64) int64 {
	switch op {
	case Add:
		return a + b
	case Subtract:
		return a - b
	default:
		return a * b
	}
}

// floatOp follows IEEE semantics; division by zero yields ±Inf or NaN.
func floatOp(op Arithmetic, a, b float64) float64 {
	switch op {
	case Add:
		return a + b
	case Subtract:
		return a - b
	case Multiply:
		return a * b
	default:
		return a / b
	}
}
