package table

import (
	"encoding/csv"
	"io"
)

// Records returns up to limit rows as JSON-ready maps. A negative limit returns every row.
func (t *Table) Records(limit int) []map[string]any {
	n := t.NumRows()
	if limit >= 0 && limit < n {
		n = limit
	}
	records := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		row := make(map[string]any, len(t.Columns))
		for _, c := range t.Columns {
			row[c.Name] = JSONSafe(c.Values[i])
		}
		records[i] = row
	}
	return records
}

// WriteCSV writes the header and up to limit rows as CSV. A negative limit writes every row.
func (t *Table) WriteCSV(w io.Writer, limit int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.ColumnNames()); err != nil {
		return err
	}
	n := t.NumRows()
	if limit >= 0 && limit < n {
		n = limit
	}
	record := make([]string, len(t.Columns))
	for i := 0; i < n; i++ {
		for j, c := range t.Columns {
			record[j] = Format(c.Values[i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
