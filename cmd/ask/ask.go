// Package ask provides the "xlengine ask" command.
package ask

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/cmd/completion"
	"github.com/klytics/xlengine/internal/app"
	"github.com/klytics/xlengine/internal/engine"
	"github.com/klytics/xlengine/internal/output"
	"github.com/klytics/xlengine/internal/progress"
	"github.com/klytics/xlengine/internal/sheet"
)

// NewCommand returns the ask command.
func NewCommand() *cobra.Command {
	var sheetName string

	cmd := &cobra.Command{
		Use:   "ask <file.xlsx> <instruction>",
		Short: "Ask the configured model a question about a sheet",
		Long: `Sends the sheet as CSV together with the instruction to the configured LLM.

The answer streams to the terminal. With --json the full answer is returned at
once, parsed as JSON when the model replied with JSON.`,
		Example: `  xlengine ask sales.xlsx "which region had the highest revenue in Q3?"
  xlengine ask sales.xlsx "total revenue by region" --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")

			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			a.Store.RestrictPaths = false

			ctx := engine.WithSource(cmd.Context(), "cli")
			path, instruction := args[0], args[1]

			if jsonFlag {
				resp, err := a.Service.Analyze(ctx, engine.Request{FilePath: path, SheetName: sheetName}, instruction)
				if err != nil {
					return err
				}
				return output.PrintJSON(cmd.OutOrStdout(), "ask", resp)
			}

			t, err := sheet.Load(path, sheetName)
			if err != nil {
				return err
			}
			spin := progress.NewSpinner("asking " + a.Agent.Provider())
			spin.Start()
			textCh, errCh, err := a.Agent.Stream(ctx, t, instruction)
			if err != nil {
				spin.Stop()
				return err
			}
			w := cmd.OutOrStdout()
			for text := range textCh {
				spin.Stop()
				fmt.Fprint(w, text)
			}
			spin.Stop()
			fmt.Fprintln(w)

			if err := <-errCh; err != nil {
				return fmt.Errorf("streaming error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sheetName, "sheet", "", "Sheet to read (default: first sheet)")
	completion.RegisterSheetFlag(cmd)
	return cmd
}
