// Package watch provides the "xlengine watch" command.
package watch

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/internal/app"
	"github.com/klytics/xlengine/internal/ops"
	"github.com/klytics/xlengine/internal/output"
	"github.com/klytics/xlengine/internal/recipe"
	"github.com/klytics/xlengine/internal/sheet"
	w "github.com/klytics/xlengine/internal/watch"
)

// NewCommand creates the watch command.
func NewCommand() *cobra.Command {
	var (
		recipePath string
		pattern    string
		recursive  bool
		debounce   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <directory> [directory...]",
		Short: "Apply a recipe to every workbook dropped into a directory",
		Long: `Watches directories for new or modified .xlsx files and runs a recipe on
each one once it has stopped changing. Results are written to
storage.output_dir, which is never watched itself.

Press Ctrl+C to stop; files already being processed are finished first.`,
		Example: `  xlengine watch ./inbox --recipe monthly.yaml
  xlengine watch ./inbox --recipe monthly.yaml --pattern "sales_*.xlsx" -r`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")

			r, err := recipe.Load(recipePath)
			if err != nil {
				return err
			}
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			runner := &recipe.Runner{
				Dispatcher: a.Dispatcher,
				Loader:     ops.LoaderFunc(sheet.Load),
				Agent:      a.Agent,
				Logger:     a.Logger,
			}
			handler := w.RecipeHandler(r, runner, a.Store)

			green := color.New(color.FgGreen)
			red := color.New(color.FgRed)
			report := func(ctx context.Context, path string) (string, error) {
				out, err := handler(ctx, path)
				if !jsonFlag {
					if err != nil {
						red.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", path, err)
					} else {
						green.Fprintf(cmd.OutOrStdout(), "✓ %s → %s\n", path, out)
					}
				}
				return out, err
			}

			watcher, err := w.New(w.Config{
				Directories: args,
				Recursive:   recursive,
				Pattern:     pattern,
				Debounce:    debounce,
				Exclude:     []string{a.Store.OutputDir},
			}, report, a.Logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !jsonFlag {
				fmt.Fprintf(cmd.OutOrStdout(), "Watching %d directory(ies) with recipe %q\n", len(args), r.Name)
				fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")
			}
			if err := watcher.Start(ctx); err != nil {
				return err
			}

			if jsonFlag {
				return output.PrintJSON(cmd.OutOrStdout(), "watch", map[string]any{
					"status": watcher.Status(),
					"events": watcher.Events(),
				})
			}
			st := watcher.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "\nStopped after %d file(s), %d error(s)\n", st.EventCount, st.Errors)
			return nil
		},
	}

	cmd.Flags().StringVar(&recipePath, "recipe", "", "Recipe to apply to each workbook")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Only process files whose name matches this glob")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Watch directories recursively")
	cmd.Flags().DurationVar(&debounce, "debounce", w.DefaultDebounce, "How long a file must stay unchanged before it is processed")
	cmd.MarkFlagRequired("recipe")
	return cmd
}
