package recipe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/klytics/xlengine/internal/agent"
	"github.com/klytics/xlengine/internal/ops"
	"github.com/klytics/xlengine/internal/table"
)

// StepResult records what one step did.
type StepResult struct {
	StepID     string         `json:"step_id"`
	Op         string         `json:"op"`
	RowsBefore int            `json:"rows_before"`
	RowsAfter  int            `json:"rows_after"`
	Summary    map[string]any `json:"summary,omitempty"`
	Answer     any            `json:"answer,omitempty"`
	Skipped    bool           `json:"skipped,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// Outcome is the final table and the per-step record of a run.
type Outcome struct {
	Table *table.Table `json:"-"`
	Steps []StepResult `json:"steps"`
}

// Runner applies recipes to tables.
type Runner struct {
	Dispatcher *ops.Dispatcher
	// Loader resolves the right-hand table of join steps.
	Loader ops.TableLoader
	// Agent answers ask steps. Without one, ask steps fail.
	Agent  agent.Agent
	Logger *slog.Logger
	// DryRun skips ask steps; table operations still run.
	DryRun bool
	// Progress, when set, is called after every step.
	Progress func(done, total int, res StepResult)
}

// Run executes the steps in order against t. t itself is never modified.
func (rn *Runner) Run(ctx context.Context, r *Recipe, t *table.Table) (*Outcome, error) {
	logger := rn.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := rn.Dispatcher
	if d == nil {
		d = &ops.Dispatcher{}
	}
	logger = logger.With("recipe", r.Name)

	out := &Outcome{Table: t}
	for i, step := range r.Steps {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		logger.Debug("running step", "step", step.ID, "op", step.Op, "n", i+1, "of", len(r.Steps))

		start := time.Now()
		res := StepResult{StepID: step.ID, Op: step.Op, RowsBefore: out.Table.NumRows()}
		next, err := rn.apply(ctx, d, step, out.Table, &res)
		res.DurationMs = time.Since(start).Milliseconds()

		if err != nil {
			res.Error = err.Error()
			res.RowsAfter = res.RowsBefore
			out.Steps = append(out.Steps, res)
			rn.report(i+1, len(r.Steps), res)
			if step.OnFailure == "skip" {
				logger.Warn("step failed, skipping", "step", step.ID, "error", err)
				continue
			}
			return out, fmt.Errorf("step %q failed: %w", step.ID, err)
		}
		out.Table = next
		res.RowsAfter = next.NumRows()
		out.Steps = append(out.Steps, res)
		rn.report(i+1, len(r.Steps), res)
	}
	return out, nil
}

func (rn *Runner) report(done, total int, res StepResult) {
	if rn.Progress != nil {
		rn.Progress(done, total, res)
	}
}

func (rn *Runner) apply(ctx context.Context, d *ops.Dispatcher, step Step, t *table.Table, res *StepResult) (*table.Table, error) {
	params := interpolate(step.Params)

	if step.Op == AskStep {
		if rn.DryRun {
			res.Skipped = true
			return t, nil
		}
		if rn.Agent == nil {
			return nil, fmt.Errorf("no agent configured for ask steps")
		}
		answer, err := rn.Agent.Ask(ctx, t, params["question"])
		if err != nil {
			return nil, err
		}
		res.Answer = answer.Output
		return t, nil
	}

	kind, err := ops.ParseKind(step.Op)
	if err != nil {
		return nil, err
	}
	op, err := ops.Parse(kind, params, rn.Loader)
	if err != nil {
		return nil, err
	}
	result, err := d.Apply(t, op)
	if err != nil {
		return nil, err
	}
	if result.Table == nil {
		res.Summary = result.Summary
		return t, nil
	}
	return result.Table, nil
}

var interpolationPattern = regexp.MustCompile(`\$\{\{\s*([^}]+?)\s*\}\}`)

// interpolate expands ${{ env.NAME }}, ${{ date.today }} and ${{ date.now }}.
func interpolate(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = interpolationPattern.ReplaceAllStringFunc(v, func(match string) string {
			expr := interpolationPattern.FindStringSubmatch(match)[1]
			switch {
			case expr == "date.today":
				return time.Now().Format("2006-01-02")
			case expr == "date.now" || expr == "date.timestamp":
				return time.Now().Format(time.RFC3339)
			case strings.HasPrefix(expr, "env."):
				return os.Getenv(strings.TrimPrefix(expr, "env."))
			}
			return match
		})
	}
	return out
}
