// Package ops provides the "xlengine ops" commands, one per table operation.
package ops

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/cmd/completion"
	"github.com/klytics/xlengine/internal/app"
	"github.com/klytics/xlengine/internal/engine"
	opspkg "github.com/klytics/xlengine/internal/ops"
	"github.com/klytics/xlengine/internal/output"
	"github.com/klytics/xlengine/internal/sheet"
)

// param is one operation parameter exposed as a flag. The flag name is the
// parameter name with dashes.
type param struct {
	name     string
	usage    string
	required bool
	def      string
}

type operation struct {
	use   string
	short string
	long  string
	// params are flags; the first positional argument is always the workbook.
	params []param
	// run returns the response and the saved result file, if any.
	run func(svc *engine.Service, ctx context.Context, req engine.Request) (any, string, error)
}

var operations = []operation{
	{
		use:   "math",
		short: "Add a column computed from two numeric columns",
		long:  "Applies add, subtract, multiply or divide row by row. Division by zero yields ±Inf or NaN; non-finite cells are saved empty.",
		params: []param{
			{name: "operation", usage: "add | subtract | multiply | divide", required: true},
			{name: "col1", usage: "left operand column", required: true},
			{name: "col2", usage: "right operand column", required: true},
			{name: "result_col", usage: "name of the new column", required: true},
		},
		run: func(svc *engine.Service, ctx context.Context, req engine.Request) (any, string, error) {
			resp, err := svc.Math(ctx, req)
			if err != nil {
				return nil, "", err
			}
			return resp, resp.ResultFile, nil
		},
	},
	{
		use:   "aggregate",
		short: "Compute summary statistics over columns",
		long:  "Functions: " + strings.Join(opspkg.AggregateFuncs, ", ") + ". Unknown functions are skipped unless operations.strict_aggregate is set.",
		params: []param{
			{name: "columns", usage: "comma-separated columns", required: true},
			{name: "functions", usage: "comma-separated functions", required: true},
		},
		run: func(svc *engine.Service, ctx context.Context, req engine.Request) (any, string, error) {
			resp, err := svc.Aggregate(ctx, req)
			return resp, "", err
		},
	},
	{
		use:   "filter",
		short: "Keep the rows matching a condition",
		long:  `Conditions are expressions over column names, e.g. 'salary > 100000 and department == "IT"'.`,
		params: []param{
			{name: "condition", usage: "boolean expression", required: true},
		},
		run: func(svc *engine.Service, ctx context.Context, req engine.Request) (any, string, error) {
			resp, err := svc.Filter(ctx, req)
			if err != nil {
				return nil, "", err
			}
			return resp, resp.ResultFile, nil
		},
	},
	{
		use:   "pivot",
		short: "Reshape rows into an index x columns grid",
		params: []param{
			{name: "values", usage: "column to aggregate", required: true},
			{name: "index", usage: "row key column", required: true},
			{name: "columns", usage: "column whose values become columns", required: true},
			{name: "aggfunc", usage: "aggregation function", def: "mean"},
		},
		run: func(svc *engine.Service, ctx context.Context, req engine.Request) (any, string, error) {
			resp, err := svc.Pivot(ctx, req)
			if err != nil {
				return nil, "", err
			}
			return resp, resp.ResultFile, nil
		},
	},
	{
		use:   "unpivot",
		short: "Melt columns into variable/value rows",
		params: []param{
			{name: "id_vars", usage: "comma-separated id columns", required: true},
			{name: "value_vars", usage: "comma-separated value columns (default: all others)"},
		},
		run: func(svc *engine.Service, ctx context.Context, req engine.Request) (any, string, error) {
			resp, err := svc.Unpivot(ctx, req)
			if err != nil {
				return nil, "", err
			}
			return resp, resp.ResultFile, nil
		},
	},
	{
		use:   "dates",
		short: "Split a date column into year, month, day and day-of-week",
		long:  "Day of week counts from Monday = 0.",
		params: []param{
			{name: "date_col", usage: "date column", required: true},
		},
		run: func(svc *engine.Service, ctx context.Context, req engine.Request) (any, string, error) {
			resp, err := svc.Dates(ctx, req)
			if err != nil {
				return nil, "", err
			}
			return resp, resp.ResultFile, nil
		},
	},
	{
		use:   "join",
		short: "Join with a second workbook on a key column",
		params: []param{
			{name: "right", usage: "right-hand workbook", required: true},
			{name: "on", usage: "key column present in both", required: true},
			{name: "how", usage: "inner | left | right | outer", def: "inner"},
			{name: "right_sheet", usage: "sheet of the right-hand workbook"},
		},
		run: func(svc *engine.Service, ctx context.Context, req engine.Request) (any, string, error) {
			resp, err := svc.Join(ctx, req)
			if err != nil {
				return nil, "", err
			}
			return resp, resp.ResultFile, nil
		},
	},
}

// NewCommand returns the ops subcommand group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Run a table operation on a workbook",
		Long:  "Each operation reads one sheet, writes its result to storage.output_dir and prints a sample.",
	}
	for _, op := range operations {
		cmd.AddCommand(newOperationCommand(op))
	}
	return cmd
}

func newOperationCommand(op operation) *cobra.Command {
	var sheetName string
	values := make([]string, len(op.params))

	cmd := &cobra.Command{
		Use:   op.use + " <file.xlsx>",
		Short: op.short,
		Long:  op.long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			// The CLI works on whatever files the user names.
			a.Store.RestrictPaths = false

			params := make(map[string]string, len(op.params))
			for i, p := range op.params {
				params[p.name] = values[i]
			}
			ctx := engine.WithSource(cmd.Context(), "cli")
			resp, resultFile, err := op.run(a.Service, ctx, engine.Request{FilePath: args[0], SheetName: sheetName, Params: params})
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return output.PrintJSON(cmd.OutOrStdout(), "ops "+op.use, resp)
			}
			return printResponse(cmd.OutOrStdout(), resp, resultFile)
		},
	}

	for i, p := range op.params {
		flag := strings.ReplaceAll(p.name, "_", "-")
		cmd.Flags().StringVar(&values[i], flag, p.def, p.usage)
		if p.required {
			cmd.MarkFlagRequired(flag)
		}
	}
	cmd.Flags().StringVar(&sheetName, "sheet", "", "Sheet to read (default: first sheet)")
	completion.RegisterSheetFlag(cmd)
	return cmd
}

// printResponse shows aggregations as a summary and other results as the head
// of the saved result table.
func printResponse(w io.Writer, resp any, resultFile string) error {
	if agg, ok := resp.(*engine.AggregateResponse); ok {
		res := opspkg.Result{Summary: agg.Aggregations}
		output.WriteSummary(w, res.Keys(), agg.Aggregations)
		return nil
	}

	color.New(color.FgGreen).Fprintf(w, "✓ Saved %s\n\n", resultFile)
	t, err := sheet.Load(resultFile, "")
	if err != nil {
		return fmt.Errorf("result was saved but could not be re-read: %w", err)
	}
	output.WriteTable(w, t, 10)
	return nil
}
