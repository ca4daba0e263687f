package sheet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/klytics/xlengine/internal/apperr"
	"github.com/klytics/xlengine/internal/table"
)

func sampleTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New("Employees",
		&table.Column{Name: "name", Type: table.Text, Values: []any{"Alice", "Bob", nil}},
		&table.Column{Name: "salary", Type: table.Int, Values: []any{int64(52000), int64(61000), int64(70000)}},
		&table.Column{Name: "score", Type: table.Float, Values: []any{4.5, 3.25, nil}},
		&table.Column{Name: "is_manager", Type: table.Bool, Values: []any{true, false, false}},
		&table.Column{Name: "hire_date", Type: table.Time, Values: []any{
			time.Date(2015, 1, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2019, 6, 30, 12, 30, 0, 0, time.UTC),
			nil,
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "employees.xlsx")
	original := sampleTable(t)

	if err := Save(original, path, "Employees"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Name != "Employees" {
		t.Errorf("sheet name = %q", loaded.Name)
	}
	if loaded.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", loaded.NumRows())
	}

	wantTypes := map[string]table.Type{
		"name":       table.Text,
		"salary":     table.Int,
		"score":      table.Float,
		"is_manager": table.Bool,
		"hire_date":  table.Time,
	}
	for name, want := range wantTypes {
		col, err := loaded.Column(name)
		if err != nil {
			t.Fatal(err)
		}
		if col.Type != want {
			t.Errorf("column %s type = %s, want %s", name, col.Type, want)
		}
	}

	hire, _ := loaded.Column("hire_date")
	if got := hire.Values[1].(time.Time); !got.Equal(time.Date(2019, 6, 30, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("hire_date[1] = %v", got)
	}
	if hire.Values[2] != nil {
		t.Errorf("null date should stay null, got %v", hire.Values[2])
	}
	name, _ := loaded.Column("name")
	if name.Values[2] != nil {
		t.Errorf("null text should stay null, got %v", name.Values[2])
	}
}

func TestSaveReplacesOnlyNamedSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	tbl := sampleTable(t)

	if err := Save(tbl, path, "First"); err != nil {
		t.Fatal(err)
	}
	if err := Save(tbl, path, "Second"); err != nil {
		t.Fatal(err)
	}

	smaller := tbl.Head(1)
	if err := Save(smaller, path, "First"); err != nil {
		t.Fatal(err)
	}

	sheets, err := ListSheets(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sheets) != 2 {
		t.Fatalf("expected 2 sheets, got %v", sheets)
	}

	first, err := Load(path, "First")
	if err != nil {
		t.Fatal(err)
	}
	if first.NumRows() != 1 {
		t.Errorf("replaced sheet should have 1 row, got %d", first.NumRows())
	}
	second, err := Load(path, "Second")
	if err != nil {
		t.Fatal(err)
	}
	if second.NumRows() != 3 {
		t.Errorf("untouched sheet should have 3 rows, got %d", second.NumRows())
	}
}

func TestLoadHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headers.xlsx")
	f := excelize.NewFile()
	rows := [][]any{
		{"id", "", "id"},
		{1, "x", 2},
		{2},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tbl, err := Load(path, "Sheet1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"id", "Column_2", "id.1"}
	got := tbl.ColumnNames()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("header %d = %q, want %q", i, got[i], want[i])
		}
	}
	col, _ := tbl.Column("id.1")
	if col.Values[1] != nil {
		t.Errorf("short row should pad with null, got %v", col.Values[1])
	}
}

func TestDescribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "describe.xlsx")
	if err := Save(sampleTable(t), path, "Employees"); err != nil {
		t.Fatal(err)
	}

	info, _, err := Describe(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if info.Rows != 3 || len(info.Columns) != 5 {
		t.Errorf("unexpected shape: %+v", info)
	}
	if info.DataTypes["salary"] != "integer" {
		t.Errorf("salary type = %q", info.DataTypes["salary"])
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.xlsx"), "")
	if !apperr.Is(err, apperr.NotFound) {
		t.Errorf("missing file: got %v", err)
	}

	garbage := filepath.Join(dir, "garbage.xlsx")
	if err := os.WriteFile(garbage, []byte("not a workbook"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = Load(garbage, "")
	if !apperr.Is(err, apperr.ResourceUnreadable) {
		t.Errorf("corrupt file: got %v", err)
	}

	good := filepath.Join(dir, "good.xlsx")
	if err := Save(sampleTable(t), good, "Employees"); err != nil {
		t.Fatal(err)
	}
	_, err = Load(good, "Nope")
	if !apperr.Is(err, apperr.ResourceUnreadable) {
		t.Errorf("missing sheet: got %v", err)
	}
}

func TestLoadFormattedCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formatted.xlsx")
	f := excelize.NewFile()
	const sh = "Sheet1"

	style := func(s *excelize.Style) int {
		id, err := f.NewStyle(s)
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	ddmmyyyy := "dd/mm/yyyy"
	points := `0.0 "pts"`
	columns := []struct {
		header string
		style  int
		values []any
	}{
		{"salary", style(&excelize.Style{NumFmt: 3}), []any{52000, 1234567}},
		{"bonus", style(&excelize.Style{NumFmt: 4}), []any{1234567.5, 10.25}},
		{"rate", style(&excelize.Style{NumFmt: 10}), []any{0.25, 0.5}},
		{"hired", style(&excelize.Style{NumFmt: 15}), []any{44259, 44260}},
		{"due", style(&excelize.Style{CustomNumFmt: &ddmmyyyy}), []any{44259.5, 44261}},
		{"score", style(&excelize.Style{CustomNumFmt: &points}), []any{3.5, 4}},
		{"zip", 0, []any{"00123", "00124"}},
		{"active", 0, []any{true, false}},
	}
	for c, col := range columns {
		head, _ := excelize.CoordinatesToCellName(c+1, 1)
		f.SetCellValue(sh, head, col.header)
		for r, v := range col.values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if s, ok := v.(string); ok {
				f.SetCellStr(sh, cell, s)
			} else {
				f.SetCellValue(sh, cell, v)
			}
			if col.style != 0 {
				f.SetCellStyle(sh, cell, cell, col.style)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tbl, err := Load(path, "")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]table.Type{
		"salary": table.Int,
		"bonus":  table.Float,
		"rate":   table.Float,
		"hired":  table.Time,
		"due":    table.Time,
		"score":  table.Float,
		"zip":    table.Text,
		"active": table.Bool,
	}
	for name, typ := range want {
		col, err := tbl.Column(name)
		if err != nil {
			t.Fatal(err)
		}
		if col.Type != typ {
			t.Errorf("%s type = %s, want %s (values %v)", name, col.Type, typ, col.Values)
		}
	}

	check := func(name string, row int, want any) {
		t.Helper()
		col, _ := tbl.Column(name)
		got := col.Values[row]
		if ts, ok := want.(time.Time); ok {
			if g, ok := got.(time.Time); !ok || !g.Equal(ts) {
				t.Errorf("%s[%d] = %v, want %v", name, row, got, ts)
			}
			return
		}
		if got != want {
			t.Errorf("%s[%d] = %v (%T), want %v (%T)", name, row, got, got, want, want)
		}
	}
	check("salary", 1, int64(1234567))
	check("bonus", 0, 1234567.5)
	check("rate", 0, 0.25)
	check("hired", 0, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC))
	check("due", 0, time.Date(2021, 3, 4, 12, 0, 0, 0, time.UTC))
	check("zip", 0, "00123")
	check("active", 0, true)
}

func TestHasDateTokens(t *testing.T) {
	tests := map[string]bool{
		"yyyy-mm-dd hh:mm:ss":     true,
		"d-mmm-yy":                true,
		"[h]:mm:ss":               true,
		"[$-409]mmmm d, yyyy":     true,
		"#,##0.00":                false,
		`0.0 "pts"`:               false,
		"[Red]#,##0;[Blue]-#,##0": false,
		`\d0`:                     false,
		"General":                 false,
		"0.00%":                   false,
	}
	for code, want := range tests {
		if got := hasDateTokens(code); got != want {
			t.Errorf("hasDateTokens(%q) = %v, want %v", code, got, want)
		}
	}
}
