package recipe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klytics/xlengine/internal/agent"
	"github.com/klytics/xlengine/internal/logging"
	"github.com/klytics/xlengine/internal/table"
)

const highEarners = `
name: High Earners
sheet: Structured_Data
steps:
  - id: only-high
    op: filter
    params: {condition: "salary > 100"}
  - id: totals
    op: aggregate
    params: {columns: salary, functions: "sum,count"}
  - id: bonus
    op: math
    params: {operation: multiply, col1: salary, col2: rate, result_col: bonus}
`

func staff(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New("staff",
		&table.Column{Name: "name", Type: table.Text, Values: []any{"ann", "bob", "cy"}},
		&table.Column{Name: "salary", Type: table.Int, Values: []any{int64(120), int64(80), int64(150)}},
		&table.Column{Name: "rate", Type: table.Float, Values: []any{0.1, 0.2, 0.1}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestParseValid(t *testing.T) {
	r, err := Parse([]byte(highEarners))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Sheet != "Structured_Data" || len(r.Steps) != 3 || r.Steps[0].Params["condition"] != "salary > 100" {
		t.Errorf("recipe = %+v", r)
	}
	if r.OutputPrefix() != "high_earners" {
		t.Errorf("OutputPrefix = %q", r.OutputPrefix())
	}
	r.Output = "custom"
	if r.OutputPrefix() != "custom" {
		t.Errorf("OutputPrefix with output = %q", r.OutputPrefix())
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name, yaml, want string
	}{
		{"no name", "steps: [{id: a, op: filter}]", "name"},
		{"no steps", "name: x", "no steps"},
		{"missing id", "name: x\nsteps: [{op: filter}]", "missing an 'id'"},
		{"duplicate id", "name: x\nsteps: [{id: a, op: filter}, {id: a, op: pivot}]", "duplicate"},
		{"unknown op", "name: x\nsteps: [{id: a, op: sort}]", "unknown operation"},
		{"bad on_failure", "name: x\nsteps: [{id: a, op: filter, on_failure: retry}]", "on_failure"},
		{"bad yaml", "name: [", "invalid recipe YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.yaml")
	if err := os.WriteFile(path, []byte(highEarners), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Errorf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing file: err = %v", err)
	}
}

func TestRun(t *testing.T) {
	r, _ := Parse([]byte(highEarners))
	in := staff(t)

	out, err := (&Runner{Logger: logging.Nop()}).Run(context.Background(), r, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Table.NumRows() != 2 || out.Table.Index("bonus") < 0 {
		t.Errorf("result has %d rows, columns %v", out.Table.NumRows(), out.Table.ColumnNames())
	}
	if in.NumRows() != 3 || in.Index("bonus") >= 0 {
		t.Error("input table was modified")
	}

	if len(out.Steps) != 3 {
		t.Fatalf("steps = %+v", out.Steps)
	}
	totals := out.Steps[1]
	if totals.Summary["salary_sum"] != int64(270) || totals.RowsBefore != 2 || totals.RowsAfter != 2 {
		t.Errorf("aggregate step = %+v", totals)
	}
}

func TestRunProgress(t *testing.T) {
	r, _ := Parse([]byte(highEarners))
	var seen []string
	rn := &Runner{Progress: func(done, total int, res StepResult) {
		seen = append(seen, fmt.Sprintf("%d/%d %s", done, total, res.StepID))
	}}
	if _, err := rn.Run(context.Background(), r, staff(t)); err != nil {
		t.Fatal(err)
	}
	want := []string{"1/3 " + r.Steps[0].ID, "2/3 " + r.Steps[1].ID, "3/3 " + r.Steps[2].ID}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("progress = %v, want %v", seen, want)
	}
}

func TestRunOnFailure(t *testing.T) {
	steps := []Step{
		{ID: "broken", Op: "filter", Params: map[string]string{"condition": "nope > 1"}},
		{ID: "keep", Op: "filter", Params: map[string]string{"condition": "salary < 130"}},
	}
	rn := &Runner{Logger: logging.Nop()}

	_, err := rn.Run(context.Background(), &Recipe{Name: "x", Steps: steps}, staff(t))
	if err == nil || !strings.Contains(err.Error(), `step "broken" failed`) {
		t.Errorf("err = %v", err)
	}

	steps[0].OnFailure = "skip"
	out, err := rn.Run(context.Background(), &Recipe{Name: "x", Steps: steps}, staff(t))
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if out.Steps[0].Error == "" || out.Table.NumRows() != 2 {
		t.Errorf("outcome = %+v rows %d", out.Steps, out.Table.NumRows())
	}
}

type stubAgent struct{ err error }

func (s stubAgent) Ask(_ context.Context, t *table.Table, q string) (*agent.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &agent.Result{Input: q, Output: map[string]any{"rows": t.NumRows()}}, nil
}

func (s stubAgent) Stream(context.Context, *table.Table, string) (<-chan string, <-chan error, error) {
	return nil, nil, s.err
}

func (stubAgent) Provider() string { return "stub" }

func TestAskStep(t *testing.T) {
	r := &Recipe{Name: "x", Steps: []Step{{ID: "q", Op: AskStep, Params: map[string]string{"question": "how many?"}}}}

	out, err := (&Runner{Agent: stubAgent{}}).Run(context.Background(), r, staff(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ans, ok := out.Steps[0].Answer.(map[string]any); !ok || ans["rows"] != 3 {
		t.Errorf("answer = %v", out.Steps[0].Answer)
	}

	out, err = (&Runner{DryRun: true}).Run(context.Background(), r, staff(t))
	if err != nil || !out.Steps[0].Skipped {
		t.Errorf("dry run: %+v, %v", out.Steps, err)
	}

	_, err = (&Runner{Agent: stubAgent{err: errors.New("down")}}).Run(context.Background(), r, staff(t))
	if err == nil {
		t.Error("expected agent error")
	}
}

func TestRunCancelled(t *testing.T) {
	r, _ := Parse([]byte(highEarners))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Runner{}).Run(ctx, r, staff(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestInterpolate(t *testing.T) {
	t.Setenv("XLENGINE_TEST_DEPT", "Sales")
	got := interpolate(map[string]string{
		"condition": `department == "${{ env.XLENGINE_TEST_DEPT }}"`,
		"day":       "${{ date.today }}",
		"other":     "${{ steps.a.output }}",
	})
	if got["condition"] != `department == "Sales"` {
		t.Errorf("env = %q", got["condition"])
	}
	if got["day"] != time.Now().Format("2006-01-02") {
		t.Errorf("date = %q", got["day"])
	}
	if got["other"] != "${{ steps.a.output }}" {
		t.Errorf("unknown expression should be left alone, got %q", got["other"])
	}
}
