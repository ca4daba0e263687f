// Package doctor provides the "xlengine doctor" command for checking system health.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/internal/config"
	"github.com/klytics/xlengine/internal/output"
)

// Check represents a single health check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message"`
}

// NewCommand creates the "doctor" command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and model access",
		Long:  "Run diagnostic checks to verify xlengine is properly configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("could not load config: %w", err)
			}
			checks := runChecks(cfg)

			errCount := 0
			for _, c := range checks {
				if c.Status == "error" {
					errCount++
				}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				if err := output.PrintJSON(cmd.OutOrStdout(), "doctor", checks); err != nil {
					return err
				}
			} else {
				printChecks(cmd, checks)
			}

			if errCount > 0 {
				return fmt.Errorf("%d check(s) failed", errCount)
			}
			return nil
		},
	}
}

func printChecks(cmd *cobra.Command, checks []Check) {
	w := cmd.OutOrStdout()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintln(w, "xlengine doctor")
	fmt.Fprintln(w, "===============")
	fmt.Fprintln(w)

	okCount, warnCount, errCount := 0, 0, 0
	for _, c := range checks {
		var icon string
		switch c.Status {
		case "ok":
			icon = green("✓")
			okCount++
		case "warning":
			icon = yellow("!")
			warnCount++
		case "error":
			icon = red("✗")
			errCount++
		}
		fmt.Fprintf(w, "  %s %s: %s\n", icon, c.Name, c.Message)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)
}

func runChecks(cfg *config.Config) []Check {
	var checks []Check

	checks = append(checks, Check{
		Name:    "Go Runtime",
		Status:  "ok",
		Message: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	if path := config.ConfigPath(); fileExists(path) {
		checks = append(checks, Check{Name: "Config File", Status: "ok", Message: path})
	} else {
		checks = append(checks, Check{
			Name:    "Config File",
			Status:  "warning",
			Message: "Not found, using defaults and environment — run 'xlengine config set provider <name>' to create one",
		})
	}

	checks = append(checks, providerCheck(cfg))

	for _, d := range []struct{ name, dir string }{
		{"Upload Directory", cfg.Storage.UploadDir},
		{"Output Directory", cfg.Storage.OutputDir},
	} {
		checks = append(checks, dirCheck(d.name, d.dir))
	}

	if !cfg.Storage.RestrictPaths {
		checks = append(checks, Check{
			Name:    "Path Containment",
			Status:  "warning",
			Message: "storage.restrict_paths is off — HTTP requests may read any file the process can open",
		})
	}

	if cfg.Audit.Enabled {
		checks = append(checks, dirCheck("Audit Log", filepath.Dir(cfg.Audit.Path)))
	}

	if cfg.Log.SeqURL != "" {
		checks = append(checks, Check{Name: "Seq", Status: "ok", Message: "Logs shipped to " + cfg.Log.SeqURL})
	}

	return checks
}

func providerCheck(cfg *config.Config) Check {
	name := fmt.Sprintf("AI Provider (%s)", cfg.Provider)
	if cfg.Provider == "ollama" {
		if _, err := exec.LookPath("ollama"); err == nil {
			return Check{Name: name, Status: "ok", Message: "Ollama found in PATH, host " + cfg.Ollama.Host}
		}
		return Check{Name: name, Status: "warning", Message: "ollama not in PATH; expecting a server at " + cfg.Ollama.Host}
	}
	for _, issue := range config.Validate(cfg) {
		if issue.Key == "provider" && issue.Severity == "error" {
			return Check{Name: name, Status: "error", Message: issue.Message + " — /analyze will report agent_unavailable"}
		}
	}
	return Check{Name: name, Status: "ok", Message: "API key configured, model " + cfg.Model}
}

// dirCheck reports whether dir exists or can be created, and is writable.
func dirCheck(name, dir string) Check {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Check{Name: name, Status: "error", Message: fmt.Sprintf("%s cannot be created: %v", dir, err)}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Check{Name: name, Status: "error", Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	f.Close()
	os.Remove(f.Name())
	return Check{Name: name, Status: "ok", Message: dir}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
