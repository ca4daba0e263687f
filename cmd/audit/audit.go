// Package audit provides the "xlengine audit" commands for reading the request trail.
package audit

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	auditpkg "github.com/klytics/xlengine/internal/audit"
	"github.com/klytics/xlengine/internal/config"
	"github.com/klytics/xlengine/internal/output"
)

// NewCommand creates the "audit" command with all subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "View and manage the audit trail",
		Long:  "Every request the engine handles is recorded when audit.enabled is set. These commands read and manage that log.",
	}

	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func auditLogPath() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("could not load config: %w", err)
	}
	return cfg.Audit.Path, nil
}

func newLogCmd() *cobra.Command {
	var (
		last      int
		operation string
		status    string
		since     string
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := auditLogPath()
			if err != nil {
				return err
			}
			entries, err := auditpkg.ReadEntries(path)
			if err != nil {
				return err
			}

			f := auditpkg.Filter{Operation: operation, Status: status}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date: %w (use YYYY-MM-DD)", err)
				}
				f.Since = t
			}
			filtered := auditpkg.FilterEntries(entries, f)
			if last > 0 && len(filtered) > last {
				filtered = filtered[len(filtered)-last:]
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return output.PrintJSON(cmd.OutOrStdout(), "audit log", filtered)
			}

			w := cmd.OutOrStdout()
			if len(filtered) == 0 {
				fmt.Fprintln(w, "No audit log entries found.")
				return nil
			}

			fmt.Fprintf(w, "Audit Log — %d Entries\n", len(filtered))
			fmt.Fprintf(w, "File: %s\n\n", path)

			red := color.New(color.FgRed).SprintFunc()
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "TIMESTAMP\tSOURCE\tOPERATION\tFILE\tDURATION\tSTATUS\n")
			for _, e := range filtered {
				dur := fmt.Sprintf("%dms", e.DurationMs)
				if e.DurationMs >= 1000 {
					dur = fmt.Sprintf("%.1fs", float64(e.DurationMs)/1000)
				}
				st := e.Status
				if st != "success" {
					st = red(fmt.Sprintf("%s (%s at %s)", e.Status, e.ErrorKind, e.Stage))
				}
				file := e.InputFile
				if file == "" {
					file = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Source, e.Operation, file, dur, st)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&last, "last", 20, "Show last N entries")
	cmd.Flags().StringVar(&operation, "op", "", "Filter by operation name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: success or error")
	cmd.Flags().StringVar(&since, "since", "", "Filter entries since date (YYYY-MM-DD)")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := auditLogPath()
			if err != nil {
				return err
			}
			if err := auditpkg.Clear(path); err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return output.PrintJSON(cmd.OutOrStdout(), "audit clear", map[string]string{"cleared": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Audit log cleared: %s\n", path)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show audit log path, size and entry count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("could not load config: %w", err)
			}
			path := cfg.Audit.Path
			size := auditpkg.LogSize(path)
			entries, _ := auditpkg.ReadEntries(path)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return output.PrintJSON(cmd.OutOrStdout(), "audit status", map[string]any{
					"enabled": cfg.Audit.Enabled,
					"path":    path,
					"size":    size,
					"entries": len(entries),
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Audit log: %s\n", path)
			fmt.Fprintf(w, "Enabled:   %t\n", cfg.Audit.Enabled)
			if size == 0 {
				fmt.Fprintln(w, "Size:      empty (no entries)")
			} else {
				fmt.Fprintf(w, "Size:      %s\n", formatSize(size))
			}
			fmt.Fprintf(w, "Entries:   %d\n", len(entries))
			return nil
		},
	}
}

func formatSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}
