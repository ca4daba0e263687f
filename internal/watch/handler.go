package watch

import (
	"context"

	"github.com/klytics/xlengine/internal/recipe"
	"github.com/klytics/xlengine/internal/sheet"
	"github.com/klytics/xlengine/internal/storage"
)

// RecipeHandler loads the recipe's sheet from each file, runs the recipe and
// saves the result as a new output in store.
func RecipeHandler(r *recipe.Recipe, runner *recipe.Runner, store storage.Store) Handler {
	return func(ctx context.Context, path string) (string, error) {
		t, err := sheet.Load(path, r.Sheet)
		if err != nil {
			return "", err
		}
		outcome, err := runner.Run(ctx, r, t)
		if err != nil {
			return "", err
		}
		out, err := store.NewOutput(r.OutputPrefix())
		if err != nil {
			return "", err
		}
		if err := sheet.Save(outcome.Table, out, r.Sheet); err != nil {
			return "", err
		}
		return out, nil
	}
}
