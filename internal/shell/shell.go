// Package shell provides an interactive session over one loaded sheet.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/klytics/xlengine/internal/agent"
	"github.com/klytics/xlengine/internal/ops"
	"github.com/klytics/xlengine/internal/output"
	"github.com/klytics/xlengine/internal/sheet"
	"github.com/klytics/xlengine/internal/storage"
	"github.com/klytics/xlengine/internal/table"
)

// DefaultHead is the number of rows "head" prints without an argument.
const DefaultHead = 10

// KnownCommands are the shell's own commands, used for completion.
var KnownCommands = []string{"columns", "head", "op", "ask", "reset", "save", "history", "help", "exit", "quit"}

// Session holds the working table. Each "op" replaces it with the operation's
// result; "reset" restores the table as loaded.
type Session struct {
	Path       string
	Sheet      string
	Table      *table.Table
	Dispatcher *ops.Dispatcher
	Agent      agent.Agent
	Store      storage.Store

	CommandHistory []string
	HistoryFile    string
	StartTime      time.Time

	original *table.Table
}

// NewSession loads path and starts a session on it.
func NewSession(path, sheetName string) (*Session, error) {
	t, err := sheet.Load(path, sheetName)
	if err != nil {
		return nil, err
	}
	home, _ := os.UserHomeDir()
	histFile := filepath.Join(home, ".xlengine", "shell_history")
	os.MkdirAll(filepath.Dir(histFile), 0755)

	return &Session{
		Path:        path,
		Sheet:       sheetName,
		Table:       t,
		Dispatcher:  &ops.Dispatcher{},
		HistoryFile: histFile,
		StartTime:   time.Now(),
		original:    t,
	}, nil
}

// Run starts the REPL loop. Blocks until 'exit' or Ctrl+D.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "xl> ",
		HistoryFile:     s.HistoryFile,
		AutoComplete:    readline.NewPrefixCompleter(s.buildCompleter()...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "xlengine shell — %s (%d rows, %d columns)\n", filepath.Base(s.Path), s.Table.NumRows(), s.Table.NumCols())
	fmt.Fprintln(rl.Stdout(), "Type 'help' for commands, 'exit' to quit.")
	fmt.Fprintln(rl.Stdout())

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			fmt.Fprintf(rl.Stdout(), "\nSession ended. %d commands run in %s.\n",
				len(s.CommandHistory), formatDuration(time.Since(s.StartTime)))
			return nil
		}

		out, err := s.Eval(ctx, line)
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "Error: %s\n", err)
			continue
		}
		if out != "" {
			fmt.Fprint(rl.Stdout(), out)
			if !strings.HasSuffix(out, "\n") {
				fmt.Fprintln(rl.Stdout())
			}
		}
	}
	return ctx.Err()
}

// Eval runs a single command line and returns what it printed.
func (s *Session) Eval(ctx context.Context, line string) (string, error) {
	args, err := SplitArgs(line)
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "", nil
	}
	s.CommandHistory = append(s.CommandHistory, line)

	var buf bytes.Buffer
	switch args[0] {
	case "help":
		printHelp(&buf)
	case "history":
		for i, cmd := range s.CommandHistory {
			fmt.Fprintf(&buf, "  %d  %s\n", i+1, cmd)
		}
	case "columns":
		for _, c := range s.Table.Columns {
			fmt.Fprintf(&buf, "  %-24s %s\n", c.Name, c.Type)
		}
	case "head":
		n := DefaultHead
		if len(args) > 1 {
			if n, err = strconv.Atoi(args[1]); err != nil || n < 0 {
				return "", fmt.Errorf("head takes a row count, got %q", args[1])
			}
		}
		output.WriteTable(&buf, s.Table, n)
	case "op":
		if err := s.op(&buf, args[1:]); err != nil {
			return "", err
		}
	case "ask":
		if err := s.ask(ctx, &buf, strings.TrimSpace(strings.TrimPrefix(line, "ask"))); err != nil {
			return "", err
		}
	case "reset":
		s.Table = s.original
		fmt.Fprintf(&buf, "Restored %s (%d rows)\n", filepath.Base(s.Path), s.Table.NumRows())
	case "save":
		path, err := s.save(args[1:])
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&buf, "Saved %d rows to %s\n", s.Table.NumRows(), path)
	default:
		return "", fmt.Errorf("unknown command %q — type 'help' for a list", args[0])
	}
	return buf.String(), nil
}

// op parses "op <kind> key=value ..." and applies it to the working table.
func (s *Session) op(w io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: op <kind> key=value ... — kinds: %v", ops.Kinds())
	}
	kind, err := ops.ParseKind(args[0])
	if err != nil {
		return err
	}
	params := make(map[string]string, len(args)-1)
	for _, a := range args[1:] {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("expected key=value, got %q", a)
		}
		params[k] = v
	}

	op, err := ops.Parse(kind, params, ops.LoaderFunc(sheet.Load))
	if err != nil {
		return err
	}
	res, err := s.Dispatcher.Apply(s.Table, op)
	if err != nil {
		return err
	}
	if res.Table == nil {
		output.WriteSummary(w, res.Keys(), res.Summary)
		return nil
	}
	s.Table = res.Table
	fmt.Fprintf(w, "%s: %d -> %d rows\n", kind, res.Provenance.RowsBefore, res.Provenance.RowsAfter)
	output.WriteTable(w, s.Table, 5)
	return nil
}

func (s *Session) ask(ctx context.Context, w io.Writer, question string) error {
	if s.Agent == nil {
		return fmt.Errorf("no AI provider configured — set one with 'xlengine config set provider <name>'")
	}
	res, err := s.Agent.Ask(ctx, s.Table, question)
	if err != nil {
		return err
	}
	if text, ok := res.Output.(string); ok {
		fmt.Fprintln(w, text)
		return nil
	}
	data, err := json.MarshalIndent(res.Output, "", "  ")
	if err != nil {
		return fmt.Errorf("could not render answer: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// save writes the working table to the given path, or to a new output in Store.
func (s *Session) save(args []string) (string, error) {
	var path string
	switch {
	case len(args) > 0:
		path = args[0]
	case s.Store != nil:
		p, err := s.Store.NewOutput("shell")
		if err != nil {
			return "", err
		}
		path = p
	default:
		return "", fmt.Errorf("usage: save <file.xlsx>")
	}
	if err := sheet.Save(s.Table, path, s.Sheet); err != nil {
		return "", err
	}
	return path, nil
}

// SplitArgs splits a line on spaces, keeping single- or double-quoted runs
// together. Quotes may start mid-word, as in condition="salary > 10".
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quote   rune
		inToken bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inToken {
		args = append(args, cur.String())
	}
	return args, nil
}

// Complete returns tab-completion candidates for the given input.
func (s *Session) Complete(input string) []string {
	parts := strings.Fields(input)
	trailing := strings.HasSuffix(input, " ")

	var candidates []string
	var prefix string
	switch {
	case len(parts) == 0:
		return KnownCommands
	case len(parts) == 1 && !trailing:
		candidates, prefix = KnownCommands, parts[0]
	case parts[0] == "op" && (len(parts) == 1 || (len(parts) == 2 && !trailing)):
		for _, k := range ops.Kinds() {
			candidates = append(candidates, string(k))
		}
		if len(parts) == 2 {
			prefix = parts[1]
		}
	default:
		return nil
	}

	var matches []string
	for _, c := range candidates {
		if strings.HasPrefix(c, prefix) {
			matches = append(matches, c)
		}
	}
	sort.Strings(matches)
	return matches
}

func (s *Session) buildCompleter() []readline.PrefixCompleterInterface {
	var kinds []readline.PrefixCompleterInterface
	for _, k := range ops.Kinds() {
		kinds = append(kinds, readline.PcItem(string(k)))
	}
	var items []readline.PrefixCompleterInterface
	for _, cmd := range KnownCommands {
		if cmd == "op" {
			items = append(items, readline.PcItem(cmd, kinds...))
			continue
		}
		items = append(items, readline.PcItem(cmd))
	}
	return items
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  columns                 list columns and their types")
	fmt.Fprintln(w, "  head [n]                show the first n rows")
	fmt.Fprintln(w, "  op <kind> key=value...  apply an operation to the working table")
	fmt.Fprintf(w, "                          kinds: %v\n", ops.Kinds())
	fmt.Fprintln(w, "  ask <question>          ask the AI about the working table")
	fmt.Fprintln(w, "  reset                   go back to the table as loaded")
	fmt.Fprintln(w, "  save [file.xlsx]        write the working table")
	fmt.Fprintln(w, "  history                 show command history")
	fmt.Fprintln(w, "  exit                    leave the shell")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", m, s)
}
