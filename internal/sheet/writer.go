package sheet

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/klytics/xlengine/internal/apperr"
	"github.com/klytics/xlengine/internal/table"
)

// dateFormat matches table.TimeLayouts[0] so saved dates load back as date-times.
const dateFormat = "yyyy-mm-dd hh:mm:ss"

// Save writes t into the named sheet of the workbook at path. An existing sheet of
// that name is replaced and other sheets are left alone; a missing file is created.
func Save(t *table.Table, path, sheetName string) error {
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	f, err := openOrCreate(path, sheetName)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := writeSheet(f, t, sheetName); err != nil {
		return apperr.New(apperr.ResourceUnwritable, "save", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.Errorf(apperr.ResourceUnwritable, "save", "could not create %s: %w", filepath.Dir(path), err)
	}
	if err := f.SaveAs(path); err != nil {
		return apperr.Errorf(apperr.ResourceUnwritable, "save", "could not save %s: %w", path, err)
	}
	return nil
}

func openOrCreate(path, sheetName string) (*excelize.File, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		f := excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
			f.Close()
			return nil, apperr.Errorf(apperr.ResourceUnwritable, "save", "could not rename sheet: %w", err)
		}
		return f, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperr.Errorf(apperr.ResourceUnwritable, "save", "could not open %s for writing: %w", path, err)
	}
	if err := resetSheet(f, sheetName); err != nil {
		f.Close()
		return nil, apperr.New(apperr.ResourceUnwritable, "save", err)
	}
	return f, nil
}

// resetSheet leaves an empty sheet called name in place of any existing one.
func resetSheet(f *excelize.File, name string) error {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx < 0 {
		_, err := f.NewSheet(name)
		return err
	}

	tmp := name + "~"
	if len(tmp) > 31 {
		tmp = tmp[len(tmp)-31:]
	}
	if _, err := f.NewSheet(tmp); err != nil {
		return fmt.Errorf("could not create sheet %q: %w", tmp, err)
	}
	if err := f.DeleteSheet(name); err != nil {
		return fmt.Errorf("could not replace sheet %q: %w", name, err)
	}
	return f.SetSheetName(tmp, name)
}

func writeSheet(f *excelize.File, t *table.Table, sheetName string) error {
	header := make([]any, t.NumCols())
	for i, name := range t.ColumnNames() {
		header[i] = name
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("could not write header: %w", err)
	}

	row := make([]any, t.NumCols())
	for r := 0; r < t.NumRows(); r++ {
		for c, col := range t.Columns {
			row[c] = cellValue(col.Values[r])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("invalid cell coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("could not write row %d: %w", r+1, err)
		}
	}

	return styleSheet(f, t, sheetName)
}

// cellValue converts a table value into something excelize writes natively.
func cellValue(v any) any {
	if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
		return nil
	}
	return v
}

func styleSheet(f *excelize.File, t *table.Table, sheetName string) error {
	if t.NumCols() == 0 {
		return nil
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("could not create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(t.NumCols(), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("could not style header: %w", err)
	}

	if t.NumRows() == 0 {
		return nil
	}
	numFmt := dateFormat
	dates, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("could not create date style: %w", err)
	}
	for i, col := range t.Columns {
		if col.Type != table.Time {
			continue
		}
		top, _ := excelize.CoordinatesToCellName(i+1, 2)
		bottom, _ := excelize.CoordinatesToCellName(i+1, t.NumRows()+1)
		if err := f.SetCellStyle(sheetName, top, bottom, dates); err != nil {
			return fmt.Errorf("could not style column %q: %w", col.Name, err)
		}
	}
	return nil
}
