package output

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/klytics/xlengine/internal/table"
)

const maxCellWidth = 40

// WriteTable pretty-prints up to limit rows of t. A negative limit prints every row.
func WriteTable(w io.Writer, t *table.Table, limit int) {
	dim := color.New(color.FgHiBlack)
	bold := color.New(color.Bold)

	if t.NumCols() == 0 {
		dim.Fprintln(w, "  (empty)")
		return
	}

	n := t.NumRows()
	if limit >= 0 && limit < n {
		n = limit
	}
	rows := make([][]string, n)
	widths := make([]int, t.NumCols())
	for j, c := range t.Columns {
		widths[j] = utf8.RuneCountInString(c.Name)
	}
	for i := 0; i < n; i++ {
		rows[i] = make([]string, t.NumCols())
		for j, c := range t.Columns {
			cell := table.Format(c.Values[i])
			rows[i][j] = cell
			widths[j] = max(widths[j], utf8.RuneCountInString(cell))
		}
	}
	for j := range widths {
		widths[j] = min(max(widths[j], 3), maxCellWidth)
	}

	writeRow(w, t.ColumnNames(), widths, bold)
	dim.Fprint(w, "  ")
	for j, width := range widths {
		if j > 0 {
			dim.Fprint(w, "+-")
		}
		dim.Fprint(w, strings.Repeat("-", width+1))
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		writeRow(w, row, widths, nil)
	}
	if n < t.NumRows() {
		dim.Fprintf(w, "  (%d of %d rows)\n", n, t.NumRows())
	} else {
		dim.Fprintf(w, "  (%d rows)\n", n)
	}
}

func writeRow(w io.Writer, row []string, widths []int, style *color.Color) {
	fmt.Fprint(w, "  ")
	for j, width := range widths {
		if j > 0 {
			fmt.Fprint(w, "| ")
		}
		cell := row[j]
		if utf8.RuneCountInString(cell) > width {
			cell = string([]rune(cell)[:width-1]) + "~"
		}
		padded := cell + strings.Repeat(" ", width-utf8.RuneCountInString(cell)+1)
		if style != nil {
			style.Fprint(w, padded)
		} else {
			fmt.Fprint(w, padded)
		}
	}
	fmt.Fprintln(w)
}

// WriteSummary prints an aggregation record as aligned key/value lines.
func WriteSummary(w io.Writer, keys []string, values map[string]any) {
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}
	key := color.New(color.FgCyan)
	for _, k := range keys {
		key.Fprintf(w, "  %-*s", width, k)
		fmt.Fprintf(w, "  %s\n", table.Format(values[k]))
	}
}
