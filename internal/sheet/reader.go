// Package sheet loads tables from and saves tables to .xlsx workbooks.
//
// Every call re-opens the workbook; nothing is cached between calls, and a sheet is
// always materialised in memory in full.
package sheet

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/klytics/xlengine/internal/apperr"
	"github.com/klytics/xlengine/internal/table"
)

// Info summarises a workbook and one of its sheets.
type Info struct {
	Sheets    []string          `json:"sheets"`
	Sheet     string            `json:"sheet"`
	Rows      int               `json:"rows"`
	Columns   []string          `json:"columns"`
	DataTypes map[string]string `json:"data_types"`
}

func open(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, apperr.Errorf(apperr.NotFound, "open", "file not found: %s — check that the path is correct", path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperr.Errorf(apperr.ResourceUnreadable, "open", "could not open %s — is this a valid .xlsx file? %w", path, err)
	}
	return f, nil
}

// ListSheets returns the sheet names of the workbook in order.
func ListSheets(path string) ([]string, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// Load reads a sheet into a typed table. An empty sheetName loads the first sheet.
func Load(path, sheetName string) (*table.Table, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readSheet(f, sheetName)
}

// Describe loads a sheet and reports the workbook's sheets with the sheet's shape and types.
func Describe(path, sheetName string) (*Info, *table.Table, error) {
	f, err := open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	t, err := readSheet(f, sheetName)
	if err != nil {
		return nil, nil, err
	}
	return &Info{
		Sheets:    f.GetSheetList(),
		Sheet:     t.Name,
		Rows:      t.NumRows(),
		Columns:   t.ColumnNames(),
		DataTypes: t.Types(),
	}, t, nil
}

func readSheet(f *excelize.File, sheetName string) (*table.Table, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Errorf(apperr.ResourceUnreadable, "load", "workbook has no sheets")
	}
	if sheetName == "" {
		sheetName = sheets[0]
	} else if idx, _ := f.GetSheetIndex(sheetName); idx < 0 {
		return nil, apperr.Errorf(apperr.ResourceUnreadable, "load", "sheet %q not found — available sheets: %v", sheetName, sheets)
	}

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperr.Errorf(apperr.ResourceUnreadable, "load", "could not read sheet %q: %w", sheetName, err)
	}
	props, err := f.GetWorkbookProps()
	cr := &cellReader{
		f:        f,
		sheet:    sheetName,
		date1904: err == nil && props.Date1904 != nil && *props.Date1904,
		dates:    make(map[int]bool),
	}
	return cr.table(rows)
}

// cellReader types raw cell values by the cell's stored type and number format,
// so what a cell displays never decides its column type.
type cellReader struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	dates    map[int]bool // style index -> date format
}

// table treats the first row as the header and types every column from its cells.
func (r *cellReader) table(rows [][]string) (*table.Table, error) {
	if len(rows) == 0 {
		return &table.Table{Name: r.sheet}, nil
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	headers := headerNames(rows[0], width)

	body := rows[1:]
	for len(body) > 0 && blank(body[len(body)-1]) {
		body = body[:len(body)-1]
	}

	cols := make([]*table.Column, width)
	cells := make([]any, len(body))
	for j := 0; j < width; j++ {
		for i, row := range body {
			cells[i] = nil
			if j >= len(row) {
				continue
			}
			v, err := r.value(j+1, i+2, row[j])
			if err != nil {
				return nil, apperr.Errorf(apperr.ResourceUnreadable, "load", "could not read sheet %q: %w", r.sheet, err)
			}
			cells[i] = v
		}
		cols[j] = table.FromCells(headers[j], cells)
	}

	t, err := table.New(r.sheet, cols...)
	if err != nil {
		return nil, apperr.New(apperr.ResourceUnreadable, "load", err)
	}
	return t, nil
}

// value converts one raw cell. Strings stay text even when they look numeric;
// numbers with a date format become times; error cells are null.
func (r *cellReader) value(col, row int, raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, err
	}
	typ, err := r.f.GetCellType(r.sheet, cell)
	if err != nil {
		return nil, err
	}

	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return raw, nil
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeError:
		return nil, nil
	case excelize.CellTypeDate:
		if ts, err := table.ParseTime(raw); err == nil {
			return ts, nil
		}
		return raw, nil
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return raw, nil
	}
	if r.dateStyled(cell) {
		if ts, err := excelize.ExcelDateToTime(n, r.date1904); err == nil {
			return ts, nil
		}
	}
	return n, nil
}

// dateStyled reports whether the cell's number format renders a date or time.
// An unreadable style counts as not a date.
func (r *cellReader) dateStyled(cell string) bool {
	idx, err := r.f.GetCellStyle(r.sheet, cell)
	if err != nil {
		return false
	}
	if d, ok := r.dates[idx]; ok {
		return d
	}
	d := false
	if style, err := r.f.GetStyle(idx); err == nil {
		d = isDateFormat(style)
	}
	r.dates[idx] = d
	return d
}

func isDateFormat(s *excelize.Style) bool {
	if s.CustomNumFmt != nil {
		return hasDateTokens(*s.CustomNumFmt)
	}
	id := s.NumFmt
	switch {
	case id >= 14 && id <= 22, id >= 45 && id <= 47:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		// locale date formats
		return true
	}
	return false
}

// hasDateTokens scans a custom number format for date or time codes, skipping
// quoted literals, escaped and padding characters, and bracketed sections other
// than elapsed time.
func hasDateTokens(code string) bool {
	lower := strings.ToLower(code)
	for i := 0; i < len(lower); i++ {
		switch lower[i] {
		case '"':
			j := strings.IndexByte(lower[i+1:], '"')
			if j < 0 {
				return false
			}
			i += j + 1
		case '\\', '_', '*':
			i++
		case '[':
			j := strings.IndexByte(lower[i:], ']')
			if j < 0 {
				return false
			}
			switch lower[i+1 : i+j] {
			case "h", "hh", "m", "mm", "s", "ss":
				return true
			}
			i += j
		case 'y', 'd', 'h', 'm', 's':
			return true
		}
	}
	return false
}

func headerNames(header []string, width int) []string {
	names := make([]string, width)
	used := make(map[string]int, width)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("Column_%d", i+1)
		}
		base := name
		for used[name] > 0 {
			name = fmt.Sprintf("%s.%d", base, used[base])
			used[base]++
		}
		used[name]++
		names[i] = name
	}
	return names
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
