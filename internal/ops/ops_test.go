package ops

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/klytics/xlengine/internal/apperr"
	"github.com/klytics/xlengine/internal/table"
)

func ints(vs ...any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		if n, ok := v.(int); ok {
			out[i] = int64(n)
		} else {
			out[i] = v
		}
	}
	return out
}

func mustTable(t *testing.T, cols ...*table.Column) *table.Table {
	t.Helper()
	tbl, err := table.New("t", cols...)
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	return tbl
}

func staff(t *testing.T) *table.Table {
	return mustTable(t,
		&table.Column{Name: "name", Type: table.Text, Values: []any{"ann", "bob", "cy", "dee", "eve"}},
		&table.Column{Name: "department", Type: table.Text, Values: []any{"Sales", "HR", "Sales", nil, "IT"}},
		&table.Column{Name: "salary", Type: table.Int, Values: ints(120000, 80000, nil, 150000, 99000)},
		&table.Column{Name: "performance_score", Type: table.Float, Values: []any{1.5, 2.0, 3.0, 0.5, nil}},
		&table.Column{Name: "years of service", Type: table.Int, Values: ints(6, 2, 9, 5, 1)},
	)
}

func TestMathElementwise(t *testing.T) {
	d := &Dispatcher{}
	src := staff(t)
	res, err := d.Apply(src, Math{Op: Multiply, Left: "salary", Right: "performance_score", Result: "weighted"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := res.Table.Column("weighted")
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != table.Float {
		t.Errorf("weighted type = %s, want float", got.Type)
	}
	salary, _ := src.Column("salary")
	score, _ := src.Column("performance_score")
	for i := range got.Values {
		if salary.Values[i] == nil || score.Values[i] == nil {
			if got.Values[i] != nil {
				t.Errorf("row %d: want null, got %v", i, got.Values[i])
			}
			continue
		}
		want := float64(salary.Values[i].(int64)) * score.Values[i].(float64)
		if got.Values[i].(float64) != want {
			t.Errorf("row %d: got %v, want %v", i, got.Values[i], want)
		}
	}
	if src.Index("weighted") >= 0 {
		t.Error("input table was modified")
	}
	if res.Provenance.Operation != KindMath || res.Provenance.RowsBefore != 5 || res.Provenance.RowsAfter != 5 {
		t.Errorf("unexpected provenance %+v", res.Provenance)
	}
}

func TestMathIntegerAndDivision(t *testing.T) {
	d := &Dispatcher{}
	src := mustTable(t,
		&table.Column{Name: "a", Type: table.Int, Values: ints(7, 1, 0)},
		&table.Column{Name: "b", Type: table.Int, Values: ints(2, 0, 0)},
	)

	res, err := d.Apply(src, Math{Op: Add, Left: "a", Right: "b", Result: "a"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Table.NumCols() != 2 {
		t.Errorf("replacing a column should keep 2 columns, got %v", res.Table.ColumnNames())
	}
	sum, _ := res.Table.Column("a")
	if sum.Type != table.Int || sum.Values[0] != int64(9) {
		t.Errorf("int add = %s %v", sum.Type, sum.Values[0])
	}

	res, err = d.Apply(src, Math{Op: Divide, Left: "a", Right: "b", Result: "q"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	q, _ := res.Table.Column("q")
	if q.Type != table.Float || q.Values[0] != 3.5 {
		t.Errorf("7/2 = %s %v", q.Type, q.Values[0])
	}
	if !math.IsInf(q.Values[1].(float64), 1) {
		t.Errorf("1/0 = %v, want +Inf", q.Values[1])
	}
	if !math.IsNaN(q.Values[2].(float64)) {
		t.Errorf("0/0 = %v, want NaN", q.Values[2])
	}
}

func TestMathErrors(t *testing.T) {
	d := &Dispatcher{}
	tests := []struct {
		name string
		op   Math
	}{
		{"unknown operator", Math{Op: "power", Left: "salary", Right: "salary", Result: "x"}},
		{"text column", Math{Op: Add, Left: "name", Right: "salary", Result: "x"}},
		{"missing column", Math{Op: Add, Left: "bonus", Right: "salary", Result: "x"}},
		{"no result column", Math{Op: Add, Left: "salary", Right: "salary"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Apply(staff(t), tt.op)
			if !apperr.Is(err, apperr.OperationFailed) {
				t.Errorf("err = %v, want OperationFailed", err)
			}
		})
	}
}

func TestAggregateTypes(t *testing.T) {
	d := &Dispatcher{}
	res, err := d.Apply(staff(t), Aggregate{
		Columns:   []string{"salary"},
		Functions: []string{"sum", "mean", "min", "max", "count", "std"},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	s := res.Summary
	if s["salary_max"] != int64(150000) || s["salary_min"] != int64(80000) {
		t.Errorf("min/max = %v/%v", s["salary_min"], s["salary_max"])
	}
	if s["salary_sum"] != int64(449000) {
		t.Errorf("sum = %v", s["salary_sum"])
	}
	if s["salary_count"] != int64(4) {
		t.Errorf("count = %v", s["salary_count"])
	}
	if s["salary_mean"] != 112250.0 {
		t.Errorf("mean = %v", s["salary_mean"])
	}
	if _, ok := s["salary_std"].(float64); !ok {
		t.Errorf("std = %T", s["salary_std"])
	}
	if res.Table != nil {
		t.Error("aggregate should not produce a table")
	}
	if want := []string{"salary_count", "salary_max", "salary_mean", "salary_min", "salary_std", "salary_sum"}; !reflect.DeepEqual(res.Keys(), want) {
		t.Errorf("Keys() = %v", res.Keys())
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	values := []any{0.1, 0.2, 0.3, 1e16, -1e16, 7.25, 1.0 / 3.0, 2.5e-8, 42.0}
	build := func(vs []any) *table.Table {
		return mustTable(t, &table.Column{Name: "x", Type: table.Float, Values: vs})
	}
	op := Aggregate{Columns: []string{"x"}, Functions: []string{"sum", "mean", "std", "min", "max"}}

	d := &Dispatcher{}
	base, err := d.Apply(build(values), op)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]any(nil), values...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		res, err := d.Apply(build(shuffled), op)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if !reflect.DeepEqual(res.Summary, base.Summary) {
			t.Fatalf("permutation %d: %v != %v", i, res.Summary, base.Summary)
		}
	}
}

func TestAggregateUnknownFunction(t *testing.T) {
	op := Aggregate{Columns: []string{"salary"}, Functions: []string{"mean", "median"}}

	res, err := (&Dispatcher{}).Apply(staff(t), op)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok := res.Summary["salary_median"]; ok {
		t.Error("unknown function should be skipped")
	}
	if _, ok := res.Summary["salary_mean"]; !ok {
		t.Error("known function missing")
	}

	_, err = (&Dispatcher{StrictAggregate: true}).Apply(staff(t), op)
	if !apperr.Is(err, apperr.OperationFailed) {
		t.Errorf("strict mode err = %v, want OperationFailed", err)
	}
}

func TestAggregateEdgeCases(t *testing.T) {
	d := &Dispatcher{}
	one := mustTable(t, &table.Column{Name: "x", Type: table.Float, Values: []any{3.0}})
	res, err := d.Apply(one, Aggregate{Columns: []string{"x"}, Functions: []string{"std"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !math.IsNaN(res.Summary["x_std"].(float64)) {
		t.Errorf("std of one value = %v, want NaN", res.Summary["x_std"])
	}

	_, err = d.Apply(staff(t), Aggregate{Columns: []string{"name"}, Functions: []string{"sum"}})
	if !apperr.Is(err, apperr.OperationFailed) {
		t.Errorf("sum over text: err = %v", err)
	}

	res, err = d.Apply(staff(t), Aggregate{Columns: []string{"name"}, Functions: []string{"max", "count"}})
	if err != nil {
		t.Fatalf("max over text: %v", err)
	}
	if res.Summary["name_max"] != "eve" || res.Summary["name_count"] != int64(5) {
		t.Errorf("text summary = %v", res.Summary)
	}
}

func TestFilter(t *testing.T) {
	d := &Dispatcher{}
	tests := []struct {
		condition string
		want      []string
	}{
		{`salary > 100000`, []string{"ann", "dee"}},
		{`salary > 90000 and department == "Sales"`, []string{"ann"}},
		{"`years of service` >= 5", []string{"ann", "cy", "dee"}},
		{`department == "IT" or performance_score < 2`, []string{"ann", "dee", "eve"}},
		{`name in ["bob", "eve"]`, []string{"bob", "eve"}},
	}
	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			res, err := d.Apply(staff(t), Filter{Condition: tt.condition})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			names, _ := res.Table.Column("name")
			var got []string
			for _, v := range names.Values {
				got = append(got, v.(string))
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterIdempotent(t *testing.T) {
	d := &Dispatcher{}
	f := Filter{Condition: `salary >= 99000`}
	once, err := d.Apply(staff(t), f)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	twice, err := d.Apply(once.Table, f)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !reflect.DeepEqual(once.Table, twice.Table) {
		t.Error("filtering twice changed the result")
	}
	if once.Provenance.RowsBefore != 5 || once.Provenance.RowsAfter != 3 {
		t.Errorf("provenance %+v", once.Provenance)
	}
}

func TestFilterErrors(t *testing.T) {
	d := &Dispatcher{}
	for _, cond := range []string{"", "bonus > 1", "salary + 1", "`no such column` == 1", "salary >"} {
		_, err := d.Apply(staff(t), Filter{Condition: cond})
		if !apperr.Is(err, apperr.OperationFailed) {
			t.Errorf("condition %q: err = %v, want OperationFailed", cond, err)
		}
	}
}

func TestFilterNullInUnreadColumn(t *testing.T) {
	d := &Dispatcher{}
	for _, note := range []any{"present", nil} {
		tbl := mustTable(t,
			&table.Column{Name: "code", Type: table.Text, Values: []any{"abc"}},
			&table.Column{Name: "note", Type: table.Text, Values: []any{note}},
		)
		_, err := d.Apply(tbl, Filter{Condition: `int(code) > 1`})
		if !apperr.Is(err, apperr.OperationFailed) {
			t.Errorf("note=%v: err = %v, want OperationFailed", note, err)
		}
	}

	// A null in a column the condition reads is still a non-match.
	res, err := d.Apply(staff(t), Filter{Condition: `salary > 100000`})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Table.NumRows() != 2 {
		t.Errorf("rows = %d, want 2", res.Table.NumRows())
	}
	if !reflect.DeepEqual(res.Provenance.Columns, []string{"salary"}) {
		t.Errorf("provenance columns = %v", res.Provenance.Columns)
	}
}

func sales(t *testing.T) *table.Table {
	return mustTable(t,
		&table.Column{Name: "region", Type: table.Text, Values: []any{"North", "North", "South", "South", "North", nil}},
		&table.Column{Name: "quarter", Type: table.Text, Values: []any{"Q1", "Q2", "Q1", "Q1", "Q1", "Q2"}},
		&table.Column{Name: "sales", Type: table.Int, Values: ints(10, 20, 30, 40, 50, 60)},
	)
}

func TestPivot(t *testing.T) {
	d := &Dispatcher{}
	res, err := d.Apply(sales(t), Pivot{Values: "sales", Index: "region", Columns: "quarter", AggFunc: "sum"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out := res.Table
	if want := []string{"region", "Q1", "Q2"}; !reflect.DeepEqual(out.ColumnNames(), want) {
		t.Fatalf("columns = %v, want %v", out.ColumnNames(), want)
	}
	want := []map[string]any{
		{"region": "North", "Q1": int64(60), "Q2": int64(20)},
		{"region": "South", "Q1": int64(70), "Q2": nil},
	}
	for i, w := range want {
		if got := out.Row(i); !reflect.DeepEqual(got, w) {
			t.Errorf("row %d = %v, want %v", i, got, w)
		}
	}

	_, err = d.Apply(sales(t), Pivot{Values: "sales", Index: "region", Columns: "quarter", AggFunc: "median"})
	if !apperr.Is(err, apperr.OperationFailed) {
		t.Errorf("unknown aggfunc: err = %v", err)
	}
}

func TestPivotUnpivotRoundTrip(t *testing.T) {
	d := &Dispatcher{}
	pivoted, err := d.Apply(sales(t), Pivot{Values: "sales", Index: "region", Columns: "quarter", AggFunc: "sum"})
	if err != nil {
		t.Fatalf("pivot: %v", err)
	}
	melted, err := d.Apply(pivoted.Table, Unpivot{IDVars: []string{"region"}})
	if err != nil {
		t.Fatalf("unpivot: %v", err)
	}

	type triple struct {
		region, quarter string
		value           int64
	}
	got := map[triple]bool{}
	for i := 0; i < melted.Table.NumRows(); i++ {
		row := melted.Table.Row(i)
		if row["value"] == nil {
			continue
		}
		got[triple{row["region"].(string), row["variable"].(string), row["value"].(int64)}] = true
	}
	want := map[triple]bool{
		{"North", "Q1", 60}: true,
		{"North", "Q2", 20}: true,
		{"South", "Q1", 70}: true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip = %v, want %v", got, want)
	}
}

func TestUnpivotOrderAndTypes(t *testing.T) {
	d := &Dispatcher{}
	src := mustTable(t,
		&table.Column{Name: "id", Type: table.Int, Values: ints(1, 2)},
		&table.Column{Name: "a", Type: table.Int, Values: ints(10, 20)},
		&table.Column{Name: "b", Type: table.Float, Values: []any{1.5, nil}},
	)
	res, err := d.Apply(src, Unpivot{IDVars: []string{"id"}, ValueVars: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	value, _ := res.Table.Column("value")
	variable, _ := res.Table.Column("variable")
	if value.Type != table.Float {
		t.Errorf("value type = %s, want float", value.Type)
	}
	if want := []any{"a", "a", "b", "b"}; !reflect.DeepEqual(variable.Values, want) {
		t.Errorf("variable = %v", variable.Values)
	}
	if want := []any{10.0, 20.0, 1.5, nil}; !reflect.DeepEqual(value.Values, want) {
		t.Errorf("value = %v", value.Values)
	}

	mixed := mustTable(t,
		&table.Column{Name: "n", Type: table.Int, Values: ints(1)},
		&table.Column{Name: "s", Type: table.Text, Values: []any{"x"}},
	)
	res, err = d.Apply(mixed, Unpivot{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	value, _ = res.Table.Column("value")
	if value.Type != table.Text || value.Values[0] != "1" {
		t.Errorf("mixed value = %s %v", value.Type, value.Values)
	}
}

func TestDateExtract(t *testing.T) {
	d := &Dispatcher{}
	src := mustTable(t,
		&table.Column{Name: "hire_date", Type: table.Text, Values: []any{"2024-01-15", nil, "2023-12-31 10:00:00"}},
	)
	res, err := d.Apply(src, DateExtract{Column: "hire_date"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out := res.Table
	want := []string{"hire_date", "hire_date_year", "hire_date_month", "hire_date_day", "hire_date_dayofweek"}
	if !reflect.DeepEqual(out.ColumnNames(), want) {
		t.Fatalf("columns = %v", out.ColumnNames())
	}
	hd, _ := out.Column("hire_date")
	if hd.Type != table.Time {
		t.Errorf("hire_date type = %s, want datetime", hd.Type)
	}

	first := out.Row(0)
	if first["hire_date_year"] != int64(2024) || first["hire_date_month"] != int64(1) ||
		first["hire_date_day"] != int64(15) || first["hire_date_dayofweek"] != int64(0) {
		t.Errorf("2024-01-15 (Monday) = %v", first)
	}
	if out.Row(2)["hire_date_dayofweek"] != int64(6) {
		t.Errorf("2023-12-31 (Sunday) = %v", out.Row(2))
	}
	if out.Row(1)["hire_date_year"] != nil {
		t.Errorf("null date should give null parts, got %v", out.Row(1))
	}
	if src.Columns[0].Type != table.Text {
		t.Error("input table was modified")
	}
}

func TestDateExtractErrors(t *testing.T) {
	d := &Dispatcher{}
	bad := mustTable(t, &table.Column{Name: "d", Type: table.Text, Values: []any{"2024-01-15", "not a date"}})
	if _, err := d.Apply(bad, DateExtract{Column: "d"}); !apperr.Is(err, apperr.OperationFailed) {
		t.Errorf("unparseable cell: err = %v", err)
	}
	num := mustTable(t, &table.Column{Name: "d", Type: table.Int, Values: ints(20240115)})
	if _, err := d.Apply(num, DateExtract{Column: "d"}); !apperr.Is(err, apperr.OperationFailed) {
		t.Errorf("numeric column: err = %v", err)
	}
	ts := mustTable(t, &table.Column{Name: "d", Type: table.Time, Values: []any{time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)}})
	res, err := d.Apply(ts, DateExtract{Column: "d"})
	if err != nil {
		t.Fatalf("time column: %v", err)
	}
	if res.Table.Row(0)["d_dayofweek"] != int64(5) {
		t.Errorf("2020-02-29 (Saturday) = %v", res.Table.Row(0))
	}
}

func people(t *testing.T) (*table.Table, *table.Table) {
	left := mustTable(t,
		&table.Column{Name: "id", Type: table.Int, Values: ints(1, 2, 3)},
		&table.Column{Name: "name", Type: table.Text, Values: []any{"ann", "bob", "cy"}},
		&table.Column{Name: "score", Type: table.Int, Values: ints(5, 6, 7)},
	)
	right := mustTable(t,
		&table.Column{Name: "id", Type: table.Int, Values: ints(2, 3, 4)},
		&table.Column{Name: "dept", Type: table.Text, Values: []any{"HR", "IT", "Ops"}},
		&table.Column{Name: "score", Type: table.Int, Values: ints(60, 70, 80)},
	)
	return left, right
}

func TestJoinCardinality(t *testing.T) {
	d := &Dispatcher{}
	left, right := people(t)
	tests := []struct {
		how  JoinKind
		keys []any
	}{
		{InnerJoin, ints(2, 3)},
		{LeftJoin, ints(1, 2, 3)},
		{RightJoin, ints(2, 3, 4)},
		{OuterJoin, ints(1, 2, 3, 4)},
	}
	for _, tt := range tests {
		t.Run(string(tt.how), func(t *testing.T) {
			res, err := d.Apply(left, Join{Right: right, On: "id", How: tt.how})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			id, _ := res.Table.Column("id")
			if !reflect.DeepEqual(id.Values, tt.keys) {
				t.Errorf("keys = %v, want %v", id.Values, tt.keys)
			}
			if want := []string{"id", "name", "score_x", "dept", "score_y"}; !reflect.DeepEqual(res.Table.ColumnNames(), want) {
				t.Errorf("columns = %v", res.Table.ColumnNames())
			}
		})
	}
}

func TestJoinValues(t *testing.T) {
	d := &Dispatcher{}
	left, right := people(t)
	res, err := d.Apply(left, Join{Right: right, On: "id", How: OuterJoin})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []map[string]any{
		{"id": int64(1), "name": "ann", "score_x": int64(5), "dept": nil, "score_y": nil},
		{"id": int64(2), "name": "bob", "score_x": int64(6), "dept": "HR", "score_y": int64(60)},
		{"id": int64(3), "name": "cy", "score_x": int64(7), "dept": "IT", "score_y": int64(70)},
		{"id": int64(4), "name": nil, "score_x": nil, "dept": "Ops", "score_y": int64(80)},
	}
	for i, w := range want {
		if got := res.Table.Row(i); !reflect.DeepEqual(got, w) {
			t.Errorf("row %d = %v, want %v", i, got, w)
		}
	}
}

func TestJoinDuplicatesAndNulls(t *testing.T) {
	d := &Dispatcher{}
	left := mustTable(t,
		&table.Column{Name: "k", Type: table.Text, Values: []any{"a", "b", nil}},
	)
	right := mustTable(t,
		&table.Column{Name: "k", Type: table.Text, Values: []any{"a", "a", nil}},
		&table.Column{Name: "v", Type: table.Int, Values: ints(1, 2, 3)},
	)
	res, err := d.Apply(left, Join{Right: right, On: "k", How: InnerJoin})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Table.NumRows() != 2 {
		t.Errorf("inner rows = %d, want 2 (duplicate keys cross, nulls never match)", res.Table.NumRows())
	}

	res, err = d.Apply(left, Join{Right: right, On: "k", How: OuterJoin})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Table.NumRows() != 5 {
		t.Errorf("outer rows = %d, want 5", res.Table.NumRows())
	}
}

func TestJoinKeyTypes(t *testing.T) {
	d := &Dispatcher{}
	left := mustTable(t, &table.Column{Name: "k", Type: table.Int, Values: ints(1, 2)})
	right := mustTable(t,
		&table.Column{Name: "k", Type: table.Float, Values: []any{2.0, 3.5}},
		&table.Column{Name: "v", Type: table.Text, Values: []any{"two", "three and a half"}},
	)
	res, err := d.Apply(left, Join{Right: right, On: "k", How: InnerJoin})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	k, _ := res.Table.Column("k")
	if k.Type != table.Float || !reflect.DeepEqual(k.Values, []any{2.0}) {
		t.Errorf("mixed numeric key = %s %v", k.Type, k.Values)
	}

	text := mustTable(t, &table.Column{Name: "k", Type: table.Text, Values: []any{"1"}})
	if _, err := d.Apply(left, Join{Right: text, On: "k"}); !apperr.Is(err, apperr.OperationFailed) {
		t.Errorf("int vs text key: err = %v", err)
	}
	if _, err := d.Apply(left, Join{Right: right, On: "missing"}); !apperr.Is(err, apperr.OperationFailed) {
		t.Errorf("missing key: err = %v", err)
	}
	if _, err := d.Apply(left, Join{Right: right, On: "k", How: "cross"}); !apperr.Is(err, apperr.OperationFailed) {
		t.Errorf("unknown kind: err = %v", err)
	}
}

func TestParse(t *testing.T) {
	op, err := Parse(KindMath, map[string]string{"operation": "Multiply", "col1": "a", "col2": "b", "result_col": "c"}, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := (Math{Op: Multiply, Left: "a", Right: "b", Result: "c"}); op != want {
		t.Errorf("math = %+v", op)
	}

	op, err = Parse(KindAggregate, map[string]string{"columns": "salary, bonus", "functions": "mean,max,"}, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	agg := op.(Aggregate)
	if !reflect.DeepEqual(agg.Columns, []string{"salary", "bonus"}) || !reflect.DeepEqual(agg.Functions, []string{"mean", "max"}) {
		t.Errorf("aggregate = %+v", agg)
	}

	op, err = Parse(KindDateExtract, map[string]string{"date_col": "hire_date"}, nil)
	if err != nil || op.(DateExtract).Column != "hire_date" {
		t.Errorf("dates = %+v, %v", op, err)
	}

	op, err = Parse(KindPivot, map[string]string{"values": "v", "index": "i", "columns": "c"}, nil)
	if err != nil || op.(Pivot).AggFunc != "mean" {
		t.Errorf("pivot default aggfunc = %+v, %v", op, err)
	}

	_, err = Parse(KindFilter, map[string]string{}, nil)
	if !apperr.Is(err, apperr.InvalidRequest) {
		t.Errorf("missing condition: err = %v", err)
	}
}

func TestParseJoin(t *testing.T) {
	_, right := people(t)
	var gotPath, gotSheet string
	loader := LoaderFunc(func(path, sheetName string) (*table.Table, error) {
		gotPath, gotSheet = path, sheetName
		return right, nil
	})
	op, err := Parse(KindJoin, map[string]string{"right": "r.xlsx", "on": "id", "how": "LEFT", "right_sheet": "Depts"}, loader)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	j := op.(Join)
	if j.How != LeftJoin || j.On != "id" || j.Right != right {
		t.Errorf("join = %+v", j)
	}
	if gotPath != "r.xlsx" || gotSheet != "Depts" {
		t.Errorf("loader called with %q %q", gotPath, gotSheet)
	}

	if _, err := Parse(KindJoin, map[string]string{"right": "r.xlsx", "on": "id"}, nil); !apperr.Is(err, apperr.InvalidRequest) {
		t.Errorf("nil loader: err = %v", err)
	}
}

func TestParseKind(t *testing.T) {
	for name, want := range map[string]Kind{"math": KindMath, "dates": KindDateExtract, " JOIN ": KindJoin} {
		got, err := ParseKind(name)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", name, got, err)
		}
	}
	if _, err := ParseKind("median"); !apperr.Is(err, apperr.InvalidRequest) {
		t.Errorf("unknown kind: err = %v", err)
	}
}
