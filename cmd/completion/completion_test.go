package completion

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/internal/sheet"
	"github.com/klytics/xlengine/internal/table"
)

func testRootCmd() *cobra.Command {
	root := &cobra.Command{Use: "xlengine"}
	root.AddCommand(&cobra.Command{Use: "sheets", Short: "List sheets"})
	root.AddCommand(&cobra.Command{Use: "serve", Short: "Start the HTTP API"})
	return root
}

func TestScripts(t *testing.T) {
	tests := []struct {
		shell string
		want  string
	}{
		{"bash", "__start_xlengine"},
		{"zsh", "compdef"},
		{"fish", "complete -c xlengine"},
		{"powershell", "xlengine"},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			root := testRootCmd()
			root.AddCommand(NewCommand(root))
			var buf bytes.Buffer
			root.SetOut(&buf)
			root.SetArgs([]string{"completion", tt.shell})
			if err := root.Execute(); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("%s completion missing %q", tt.shell, tt.want)
			}
		})
	}
}

func TestUnsupportedShell(t *testing.T) {
	root := testRootCmd()
	root.AddCommand(NewCommand(root))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"completion", "tcsh"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for tcsh")
	}
}

func TestSheetNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	tbl, err := table.New("x", &table.Column{Name: "a", Type: table.Int, Values: []any{int64(1)}})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Sales", "Staff", "Summary"} {
		if err := sheet.Save(tbl, path, name); err != nil {
			t.Fatal(err)
		}
	}

	got, dir := SheetNames(nil, []string{path}, "S")
	if dir != cobra.ShellCompDirectiveNoFileComp || len(got) != 3 {
		t.Errorf("SheetNames = %v, %v", got, dir)
	}
	got, _ = SheetNames(nil, []string{path}, "Su")
	if len(got) != 1 || got[0] != "Summary" {
		t.Errorf("prefix Su = %v", got)
	}
	if got, _ := SheetNames(nil, []string{"notes.txt"}, ""); got != nil {
		t.Errorf("non-workbook args = %v", got)
	}
}
