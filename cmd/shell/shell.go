// Package shell provides the "xlengine shell" interactive command.
package shell

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/cmd/completion"
	"github.com/klytics/xlengine/internal/app"
	shellpkg "github.com/klytics/xlengine/internal/shell"
)

// NewCommand creates the "shell" command.
func NewCommand() *cobra.Command {
	var (
		evalCmd   string
		sheetName string
	)

	cmd := &cobra.Command{
		Use:   "shell <file.xlsx>",
		Short: "Explore a sheet interactively",
		Long: `Loads one sheet and starts a REPL over it.

Each "op" replaces the working table with its result, so operations chain.
"reset" goes back to the sheet as loaded and "save" writes the working table.
Tab completion covers commands, operation names and column names.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := shellpkg.NewSession(args[0], sheetName)
			if err != nil {
				return err
			}
			session.Dispatcher = a.Dispatcher
			session.Agent = a.Agent
			session.Store = a.Store

			if evalCmd != "" {
				out, err := session.Eval(cmd.Context(), evalCmd)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			}
			return session.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&evalCmd, "eval", "", "Run a single command and exit")
	cmd.Flags().StringVar(&sheetName, "sheet", "", "Sheet to load (default: first sheet)")
	completion.RegisterSheetFlag(cmd)
	return cmd
}
