package ops

import (
	"strings"

	"github.com/klytics/xlengine/internal/apperr"
	"github.com/klytics/xlengine/internal/table"
)

// TableLoader loads the right-hand table of a join.
type TableLoader interface {
	Load(path, sheetName string) (*table.Table, error)
}

// LoaderFunc adapts a function to TableLoader.
type LoaderFunc func(path, sheetName string) (*table.Table, error)

func (f LoaderFunc) Load(path, sheetName string) (*table.Table, error) { return f(path, sheetName) }

// ParseKind resolves an operation name. "dates" is accepted for date-extract.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "dates" {
		return KindDateExtract, nil
	}
	for _, k := range Kinds() {
		if string(k) == name {
			return k, nil
		}
	}
	return "", apperr.Errorf(apperr.InvalidRequest, "parse", "unknown operation %q — supported: %v", name, Kinds())
}

// SplitList splits a comma-separated parameter, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Parse builds an operation from string parameters, as sent by HTTP forms, recipe
// steps and the shell. loader is only consulted for joins and may be nil otherwise.
func Parse(kind Kind, params map[string]string, loader TableLoader) (Operation, error) {
	p := paramReader{kind: kind, params: params}
	var op Operation
	switch kind {
	case KindMath:
		op = Math{
			Op:     Arithmetic(strings.ToLower(p.required("operation"))),
			Left:   p.required("col1"),
			Right:  p.required("col2"),
			Result: p.required("result_col"),
		}
	case KindAggregate:
		op = Aggregate{
			Columns:   SplitList(p.required("columns")),
			Functions: SplitList(p.required("functions")),
		}
	case KindFilter:
		op = Filter{Condition: p.required("condition")}
	case KindPivot:
		op = Pivot{
			Values:  p.required("values"),
			Index:   p.required("index"),
			Columns: p.required("columns"),
			AggFunc: p.optional("aggfunc", "mean"),
		}
	case KindUnpivot:
		op = Unpivot{
			IDVars:    SplitList(p.required("id_vars")),
			ValueVars: SplitList(p.optional("value_vars", "")),
		}
	case KindDateExtract:
		col := p.optional("column", "")
		if col == "" {
			col = p.required("date_col")
		}
		op = DateExtract{Column: col}
	case KindJoin:
		right := p.required("right")
		on := p.required("on")
		how := JoinKind(strings.ToLower(p.optional("how", string(InnerJoin))))
		if p.err != nil {
			return nil, p.err
		}
		if loader == nil {
			return nil, apperr.Errorf(apperr.InvalidRequest, string(kind), "joins need a table loader")
		}
		rt, err := loader.Load(right, p.optional("right_sheet", ""))
		if err != nil {
			return nil, err
		}
		op = Join{Right: rt, On: on, How: how}
	default:
		return nil, apperr.Errorf(apperr.InvalidRequest, "parse", "unknown operation %q", kind)
	}
	if p.err != nil {
		return nil, p.err
	}
	return op, nil
}

// paramReader records the first missing required parameter.
type paramReader struct {
	kind   Kind
	params map[string]string
	err    error
}

func (p *paramReader) required(name string) string {
	v := strings.TrimSpace(p.params[name])
	if v == "" && p.err == nil {
		p.err = apperr.Errorf(apperr.InvalidRequest, string(p.kind), "missing required parameter %q", name)
	}
	return v
}

func (p *paramReader) optional(name, def string) string {
	if v := strings.TrimSpace(p.params[name]); v != "" {
		return v
	}
	return def
}
