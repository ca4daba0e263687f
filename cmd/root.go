// Package cmd contains all CLI commands for the xlengine binary.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/cmd/ask"
	cmdaudit "github.com/klytics/xlengine/cmd/audit"
	"github.com/klytics/xlengine/cmd/completion"
	cmdconfig "github.com/klytics/xlengine/cmd/config"
	"github.com/klytics/xlengine/cmd/doctor"
	cmdops "github.com/klytics/xlengine/cmd/ops"
	"github.com/klytics/xlengine/cmd/run"
	"github.com/klytics/xlengine/cmd/serve"
	"github.com/klytics/xlengine/cmd/sheets"
	cmdshell "github.com/klytics/xlengine/cmd/shell"
	"github.com/klytics/xlengine/cmd/version"
	cmdwatch "github.com/klytics/xlengine/cmd/watch"
	"github.com/klytics/xlengine/internal/config"
	"github.com/klytics/xlengine/internal/output"
)

var (
	jsonOutput bool
	verbose    bool
	modelName  string
	provider   string
	noColor    bool
)

// NewRootCommand creates and returns the root cobra command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xlengine",
		Short: "Spreadsheet operations and AI analysis over HTTP and the terminal",
		Long: `xlengine — deterministic table operations and natural-language analysis for Excel workbooks.

Run math, aggregate, filter, pivot, unpivot, date and join operations on .xlsx
sheets, ask an AI model questions about them, or serve everything over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	// Global persistent flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "AI model name override")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "AI provider: gemini | anthropic | openai | ollama")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable ANSI color output")
	rootCmd.PersistentFlags().StringVar(&config.ConfigFile, "config", "", "Config file (default ./config.yaml or ~/.xlengine/config.yaml)")

	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(sheets.NewCommand())
	rootCmd.AddCommand(cmdops.NewCommand())
	rootCmd.AddCommand(ask.NewCommand())
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(cmdwatch.NewCommand())
	rootCmd.AddCommand(cmdshell.NewCommand())
	rootCmd.AddCommand(cmdaudit.NewCommand())
	rootCmd.AddCommand(cmdconfig.NewCommand())
	rootCmd.AddCommand(doctor.NewCommand())
	rootCmd.AddCommand(version.NewCommand())
	rootCmd.AddCommand(completion.NewCommand(rootCmd))

	return rootCmd
}

// Execute runs the root command and exits with a code that reflects the error kind.
func Execute() {
	rootCmd := NewRootCommand()
	executed, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}
	if jsonOutput {
		output.PrintJSONError(os.Stdout, commandPath(executed), err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(output.ExitCode(err))
}

func commandPath(c *cobra.Command) string {
	if c == nil {
		return ""
	}
	return strings.TrimPrefix(c.CommandPath(), "xlengine ")
}
