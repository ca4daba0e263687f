// Package recipe runs YAML-defined sequences of table operations.
package recipe

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/klytics/xlengine/internal/ops"
)

// AskStep is the step kind that sends the current table to the agent.
const AskStep = "ask"

// Recipe is a named list of steps applied to one sheet.
type Recipe struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
	Sheet   string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	Output  string `yaml:"output,omitempty" json:"output,omitempty"`
	Steps   []Step `yaml:"steps" json:"steps"`
}

// Step is one operation. Params are the same string parameters the HTTP
// endpoints accept.
type Step struct {
	ID        string            `yaml:"id" json:"id"`
	Op        string            `yaml:"op" json:"op"`
	Params    map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	OnFailure string            `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
}

// Load reads and validates a recipe file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("recipe file not found: %s — check that the path is correct", path)
		}
		return nil, fmt.Errorf("could not read recipe file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a recipe.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("invalid recipe YAML: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the name, step ids, op kinds and on_failure values.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("recipe is missing a 'name' field")
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("recipe %q has no steps defined", r.Name)
	}

	seen := make(map[string]bool)
	for i, step := range r.Steps {
		if step.ID == "" {
			return fmt.Errorf("step %d is missing an 'id' field", i+1)
		}
		if seen[step.ID] {
			return fmt.Errorf("duplicate step ID %q — each step must have a unique ID", step.ID)
		}
		seen[step.ID] = true

		if step.Op == "" {
			return fmt.Errorf("step %q is missing an 'op' field", step.ID)
		}
		if step.Op != AskStep {
			if _, err := ops.ParseKind(step.Op); err != nil {
				return fmt.Errorf("step %q: %w", step.ID, err)
			}
		}
		switch step.OnFailure {
		case "", "fail", "skip":
		default:
			return fmt.Errorf("step %q: on_failure must be 'fail' or 'skip', got %q", step.ID, step.OnFailure)
		}
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// OutputPrefix names the file a recipe's result is saved to.
func (r *Recipe) OutputPrefix() string {
	if r.Output != "" {
		return r.Output
	}
	slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(r.Name), "_"), "_")
	if slug == "" {
		slug = "recipe"
	}
	return slug
}
