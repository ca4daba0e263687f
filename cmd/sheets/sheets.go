// Package sheets provides the "xlengine sheets" command.
package sheets

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/cmd/completion"
	"github.com/klytics/xlengine/internal/output"
	"github.com/klytics/xlengine/internal/sheet"
)

// NewCommand creates the "sheets" command.
func NewCommand() *cobra.Command {
	var (
		sheetName string
		head      int
	)

	cmd := &cobra.Command{
		Use:   "sheets <file.xlsx>",
		Short: "Describe a workbook: sheets, columns and inferred types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, t, err := sheet.Describe(args[0], sheetName)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return output.PrintJSON(cmd.OutOrStdout(), "sheets", info)
			}

			w := cmd.OutOrStdout()
			title := color.New(color.Bold, color.FgCyan)
			dim := color.New(color.FgHiBlack)

			title.Fprintf(w, "%s\n", filepath.Base(args[0]))
			for _, name := range info.Sheets {
				marker := " "
				if name == info.Sheet {
					marker = "*"
				}
				fmt.Fprintf(w, "  %s %s\n", marker, name)
			}
			fmt.Fprintln(w)

			title.Fprintf(w, "Sheet: %s ", info.Sheet)
			dim.Fprintf(w, "(%d rows)\n", info.Rows)
			for _, col := range info.Columns {
				fmt.Fprintf(w, "  %-28s ", col)
				dim.Fprintln(w, info.DataTypes[col])
			}

			if head > 0 {
				fmt.Fprintln(w)
				output.WriteTable(w, t, head)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sheetName, "sheet", "", "Sheet to describe (default: first sheet)")
	cmd.Flags().IntVar(&head, "head", 0, "Also print the first N rows")
	completion.RegisterSheetFlag(cmd)
	return cmd
}
