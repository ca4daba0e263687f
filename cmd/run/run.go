// Package run provides the "xlengine run" command, which applies a recipe to a workbook.
package run

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/internal/app"
	"github.com/klytics/xlengine/internal/ops"
	"github.com/klytics/xlengine/internal/output"
	"github.com/klytics/xlengine/internal/progress"
	"github.com/klytics/xlengine/internal/recipe"
	"github.com/klytics/xlengine/internal/sheet"
)

type runResult struct {
	Recipe     string              `json:"recipe"`
	Input      string              `json:"input"`
	ResultFile string              `json:"result_file,omitempty"`
	Rows       int                 `json:"rows"`
	Steps      []recipe.StepResult `json:"steps"`
	DryRun     bool                `json:"dry_run,omitempty"`
}

// NewCommand returns the run command.
func NewCommand() *cobra.Command {
	var (
		dryRun bool
		out    string
	)

	cmd := &cobra.Command{
		Use:   "run <recipe.yaml> <file.xlsx>",
		Short: "Apply a recipe of operations to a workbook",
		Long: `Runs the steps of a YAML recipe in order against one sheet.

Each step's output table feeds the next step. Aggregate and ask steps record
their answer and pass the table through unchanged. The final table is written
to --out, or to a new file in storage.output_dir.

Use --dry-run to run table steps without calling the model or writing a file.`,
		Example: `  xlengine run monthly.yaml sales.xlsx
  xlengine run monthly.yaml sales.xlsx --out report.xlsx --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")

			r, err := recipe.Load(args[0])
			if err != nil {
				return err
			}

			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := sheet.Load(args[1], r.Sheet)
			if err != nil {
				return err
			}

			runner := &recipe.Runner{
				Dispatcher: a.Dispatcher,
				Loader:     ops.LoaderFunc(sheet.Load),
				Agent:      a.Agent,
				Logger:     a.Logger,
				DryRun:     dryRun,
			}
			if !jsonFlag {
				bar := progress.New(r.Name, len(r.Steps))
				runner.Progress = func(done, total int, res recipe.StepResult) {
					bar.Step(res.StepID)
					if done == total {
						bar.Finish(fmt.Sprintf("%d steps", total))
					}
				}
			}
			outcome, runErr := runner.Run(cmd.Context(), r, t)

			res := runResult{Recipe: r.Name, Input: args[1], DryRun: dryRun}
			if outcome != nil {
				res.Steps = outcome.Steps
				res.Rows = outcome.Table.NumRows()
			}
			if runErr == nil && !dryRun {
				path := out
				if path == "" {
					if path, err = a.Store.NewOutput(r.OutputPrefix()); err != nil {
						return err
					}
				}
				if err := sheet.Save(outcome.Table, path, r.Sheet); err != nil {
					return err
				}
				res.ResultFile = path
			}

			if jsonFlag {
				if runErr != nil {
					return runErr
				}
				return output.PrintJSON(cmd.OutOrStdout(), "run", res)
			}
			printSteps(cmd.OutOrStdout(), res)
			return runErr
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run table steps only; skip ask steps and do not write a result")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Result workbook path (default: new file in the output directory)")
	return cmd
}

func printSteps(w io.Writer, res runResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	dim := color.New(color.Faint)

	for _, s := range res.Steps {
		switch {
		case s.Error != "":
			red.Fprintf(w, "  ✗ %s", s.StepID)
			fmt.Fprintf(w, " (%s): %s\n", s.Op, s.Error)
		case s.Skipped:
			dim.Fprintf(w, "  - %s (%s): skipped\n", s.StepID, s.Op)
		default:
			green.Fprintf(w, "  ✓ %s", s.StepID)
			fmt.Fprintf(w, " (%s) %d → %d rows, %dms\n", s.Op, s.RowsBefore, s.RowsAfter, s.DurationMs)
		}
		if len(s.Summary) > 0 {
			summary := ops.Result{Summary: s.Summary}
			output.WriteSummary(w, summary.Keys(), s.Summary)
		}
		if s.Answer != nil {
			fmt.Fprintf(w, "    %v\n", s.Answer)
		}
	}
	if res.ResultFile != "" {
		fmt.Fprintln(w)
		green.Fprintf(w, "✓ Saved %s (%d rows)\n", res.ResultFile, res.Rows)
	}
}
