// Package completion provides shell completion scripts and dynamic completions
// for workbook sheet names.
package completion

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/internal/sheet"
)

// NewCommand returns the completion command.
func NewCommand(rootCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completions",
		Long: `Generate shell completion scripts for xlengine.

Besides commands and flags, --sheet completes with the sheet names of the
workbook given on the command line.

Install instructions:
  Bash:       xlengine completion bash > /etc/bash_completion.d/xlengine
              echo 'source <(xlengine completion bash)' >> ~/.bashrc
  Zsh:        xlengine completion zsh > ~/.zsh/completions/_xlengine
  Fish:       xlengine completion fish > ~/.config/fish/completions/xlengine.fish
  PowerShell: xlengine completion powershell >> $PROFILE`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				fmt.Fprintln(w, "# xlengine bash completion")
				fmt.Fprintln(w)
				return rootCmd.GenBashCompletionV2(w, true)
			case "zsh":
				fmt.Fprintln(w, "# xlengine zsh completion")
				fmt.Fprintln(w)
				return rootCmd.GenZshCompletion(w)
			case "fish":
				fmt.Fprintln(w, "# xlengine fish completion")
				fmt.Fprintln(w)
				return rootCmd.GenFishCompletion(w, true)
			case "powershell":
				fmt.Fprintln(w, "# xlengine PowerShell completion")
				fmt.Fprintln(w)
				return rootCmd.GenPowerShellCompletionWithDesc(w)
			default:
				return fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish, powershell)", args[0])
			}
		},
	}
	return cmd
}

// RegisterSheetFlag completes cmd's --sheet flag with the sheets of the first
// workbook argument, and completes workbook arguments with .xlsx files.
func RegisterSheetFlag(cmd *cobra.Command) {
	cmd.RegisterFlagCompletionFunc("sheet", SheetNames)
	if cmd.ValidArgsFunction == nil {
		cmd.ValidArgsFunction = Workbooks
	}
}

// SheetNames lists the sheets of the first .xlsx argument.
func SheetNames(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	for _, a := range args {
		if !isWorkbook(a) {
			continue
		}
		names, err := sheet.ListSheets(a)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		var out []string
		for _, n := range names {
			if strings.HasPrefix(n, toComplete) {
				out = append(out, n)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// Workbooks restricts file completion to workbooks.
func Workbooks(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return []string{"xlsx", "xls"}, cobra.ShellCompDirectiveFilterFileExt
}

func isWorkbook(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".xlsx" || ext == ".xls"
}
