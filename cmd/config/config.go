// Package config provides CLI commands for configuration management.
package config

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/internal/config"
	"github.com/klytics/xlengine/internal/output"
)

// NewCommand returns the config command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage xlengine configuration",
		Long:  "View and modify settings in config.yaml. XLENGINE_* environment variables override the file.",
	}

	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newPathCommand())
	cmd.AddCommand(newValidateCommand())

	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			jsonFlag, _ := cmd.Flags().GetBool("json")
			if jsonFlag {
				shown := *cfg
				shown.APIKeys.Gemini = mask(shown.APIKeys.Gemini)
				shown.APIKeys.Anthropic = mask(shown.APIKeys.Anthropic)
				shown.APIKeys.OpenAI = mask(shown.APIKeys.OpenAI)
				return output.PrintJSON(cmd.OutOrStdout(), "config show", shown)
			}
			fmt.Fprint(cmd.OutOrStdout(), config.ShowConfig(cfg))
			return nil
		},
	}
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Example: `  xlengine config set provider anthropic
  xlengine config set storage.output_dir /srv/xlengine/outputs`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			if err := config.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			val := config.Get(args[0])
			if val == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: (not set)\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], val)
			}
			return nil
		},
	}
}

func newPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.ConfigPath())
			return nil
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			issues := config.Validate(cfg)

			jsonFlag, _ := cmd.Flags().GetBool("json")
			if jsonFlag {
				return output.PrintJSON(cmd.OutOrStdout(), "config validate", issues)
			}

			w := cmd.OutOrStdout()
			errors, warnings := 0, 0
			for _, issue := range issues {
				switch issue.Severity {
				case "error":
					errors++
				case "warning":
					warnings++
				}
			}

			if errors == 0 && warnings == 0 {
				color.New(color.FgGreen).Fprintln(w, "Configuration is valid")
				return nil
			}

			fmt.Fprintf(w, "Config validation: %d errors, %d warnings\n\n", errors, warnings)
			for _, issue := range issues {
				switch issue.Severity {
				case "error":
					color.New(color.FgRed).Fprintf(w, "  %s\n", issue.Message)
				case "warning":
					color.New(color.FgYellow).Fprintf(w, "  %s\n", issue.Message)
				case "info":
					color.New(color.FgGreen).Fprintf(w, "  %s\n", issue.Message)
				}
				if issue.Fix != "" {
					fmt.Fprintf(w, "   Fix: %s\n", issue.Fix)
				}
			}
			return nil
		},
	}
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	return key[:min(6, len(key))] + "****"
}
