package ops

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/klytics/xlengine/internal/table"
)

// Filter keeps the rows for which Condition evaluates to true.
//
// Conditions use expr syntax over column names, e.g.
// `salary > 100000 and department == "Sales"`. Column names that are not valid
// identifiers are written in back quotes: `years of service` >= 5.
type Filter struct {
	Condition string `json:"condition"`
}

func (Filter) Kind() Kind { return KindFilter }

var quotedName = regexp.MustCompile("`([^`]+)`")

// predicate is a compiled condition bound to the columns it reads.
type predicate struct {
	program *vm.Program
	ids     []string
	cols    []*table.Column
}

// identifiers collects the variable names a condition reads.
type identifiers map[string]bool

func (ids identifiers) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IdentifierNode); ok {
		ids[n.Value] = true
	}
}

// compilePredicate type-checks the condition against the table's column types.
func compilePredicate(t *table.Table, condition string) (*predicate, error) {
	if strings.TrimSpace(condition) == "" {
		return nil, fmt.Errorf("empty condition")
	}

	alias := make(map[string]string, t.NumCols())
	for _, name := range t.ColumnNames() {
		alias[name] = name
	}

	var missing []string
	n := 0
	rewritten := quotedName.ReplaceAllStringFunc(condition, func(m string) string {
		name := m[1 : len(m)-1]
		if t.Index(name) < 0 {
			missing = append(missing, name)
			return m
		}
		id := fmt.Sprintf("__col%d", n)
		n++
		alias[id] = name
		return id
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("column %q not found — available columns: %v", missing[0], t.ColumnNames())
	}

	env := make(map[string]any, len(alias))
	for id, name := range alias {
		col, _ := t.Column(name)
		env[id] = zeroValue(col.Type)
	}

	program, err := expr.Compile(rewritten, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", condition, err)
	}

	used := identifiers{}
	root := program.Node()
	ast.Walk(&root, used)

	p := &predicate{program: program}
	for _, name := range t.ColumnNames() {
		for id, target := range alias {
			if target != name || !used[id] {
				continue
			}
			col, _ := t.Column(name)
			p.ids = append(p.ids, id)
			p.cols = append(p.cols, col)
		}
	}
	return p, nil
}

// columns returns the names of the columns the condition reads, in table order.
func (p *predicate) columns() []string {
	var names []string
	for _, c := range p.cols {
		if len(names) == 0 || names[len(names)-1] != c.Name {
			names = append(names, c.Name)
		}
	}
	return names
}

func zeroValue(typ table.Type) any {
	switch typ {
	case table.Int:
		return int64(0)
	case table.Float:
		return float64(0)
	case table.Bool:
		return false
	case table.Time:
		return time.Time{}
	default:
		return ""
	}
}

// match evaluates the predicate on row i. A row whose evaluation fails while a
// column the condition reads is null does not match; any other evaluation failure
// is returned.
func (p *predicate) match(i int) (bool, error) {
	env := make(map[string]any, len(p.ids))
	hasNull := false
	for j, id := range p.ids {
		v := p.cols[j].Values[i]
		if v == nil {
			hasNull = true
		}
		env[id] = v
	}

	out, err := expr.Run(p.program, env)
	if err != nil {
		if hasNull {
			return false, nil
		}
		return false, fmt.Errorf("row %d: %w", i+1, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

func applyFilter(_ *Dispatcher, t *table.Table, op Operation) (*Result, error) {
	f, err := mustKind[Filter](op)
	if err != nil {
		return nil, err
	}

	pred, err := compilePredicate(t, f.Condition)
	if err != nil {
		return nil, fail(KindFilter, err)
	}

	var keep []int
	for i := 0; i < t.NumRows(); i++ {
		ok, err := pred.match(i)
		if err != nil {
			return nil, fail(KindFilter, err)
		}
		if ok {
			keep = append(keep, i)
		}
	}

	return &Result{
		Table:      t.Take(keep),
		Provenance: Provenance{Columns: pred.columns()},
	}, nil
}
