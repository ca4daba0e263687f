// Package table provides the in-memory typed table that every operation works on.
package table

import (
	"fmt"
	"time"
)

// Type is the scalar type tag of a column.
type Type int

const (
	// Text columns hold string values.
	Text Type = iota
	// Int columns hold int64 values.
	Int
	// Float columns hold float64 values.
	Float
	// Bool columns hold bool values.
	Bool
	// Time columns hold time.Time values.
	Time
)

// String returns the name reported to callers in data_types.
func (t Type) String() string {
	switch t {
	case Int:
		return "integer"
	case Float:
		return "float"
	case Bool:
		return "boolean"
	case Time:
		return "datetime"
	default:
		return "text"
	}
}

// Numeric reports whether arithmetic is defined on the type.
func (t Type) Numeric() bool {
	return t == Int || t == Float
}

// Column is a named, typed sequence of values. A nil value is a null cell.
type Column struct {
	Name   string `json:"name"`
	Type   Type   `json:"type"`
	Values []any  `json:"values"`
}

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	return len(c.Values)
}

// Table is an ordered set of equal-length columns with unique names.
type Table struct {
	Name    string    `json:"name"`
	Columns []*Column `json:"columns"`
}

// New builds a table and validates it.
func New(name string, cols ...*Column) (*Table, error) {
	t := &Table{Name: name, Columns: cols}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the table invariants: equal row counts, unique names, values matching their tag.
func (t *Table) Validate() error {
	seen := make(map[string]bool, len(t.Columns))
	rows := -1
	for _, c := range t.Columns {
		if seen[c.Name] {
			return fmt.Errorf("duplicate column name %q", c.Name)
		}
		seen[c.Name] = true
		if rows >= 0 && c.Len() != rows {
			return fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), rows)
		}
		rows = c.Len()
		for i, v := range c.Values {
			if v != nil && !Conforms(c.Type, v) {
				return fmt.Errorf("column %q row %d: %T is not %s", c.Name, i, v, c.Type)
			}
		}
	}
	return nil
}

// Conforms reports whether v is a legal non-nil value for the type.
func Conforms(t Type, v any) bool {
	switch v.(type) {
	case int64:
		return t == Int
	case float64:
		return t == Float
	case string:
		return t == Text
	case bool:
		return t == Bool
	case time.Time:
		return t == Time
	}
	return false
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// NumCols returns the column count.
func (t *Table) NumCols() int {
	return len(t.Columns)
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the named column or an error listing the available ones.
func (t *Table) Column(name string) (*Column, error) {
	if i := t.Index(name); i >= 0 {
		return t.Columns[i], nil
	}
	return nil, fmt.Errorf("column %q not found — available columns: %v", name, t.ColumnNames())
}

// Types returns the type name of every column, keyed by column name.
func (t *Table) Types() map[string]string {
	out := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		out[c.Name] = c.Type.String()
	}
	return out
}

// Clone returns a table sharing the column value slices but with its own column list.
// Callers replace columns on the clone; they never write into shared value slices.
func (t *Table) Clone() *Table {
	cols := make([]*Column, len(t.Columns))
	copy(cols, t.Columns)
	return &Table{Name: t.Name, Columns: cols}
}

// Set replaces the column with the same name in place, or appends it.
func (t *Table) Set(c *Column) error {
	if c.Len() != t.NumRows() && len(t.Columns) > 0 {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.NumRows())
	}
	if i := t.Index(c.Name); i >= 0 {
		t.Columns[i] = c
		return nil
	}
	t.Columns = append(t.Columns, c)
	return nil
}

// Take returns a new table holding the given rows, in the given order.
func (t *Table) Take(rows []int) *Table {
	cols := make([]*Column, len(t.Columns))
	for i, c := range t.Columns {
		values := make([]any, len(rows))
		for j, r := range rows {
			values[j] = c.Values[r]
		}
		cols[i] = &Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return &Table{Name: t.Name, Columns: cols}
}

// Head returns at most the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 || n > t.NumRows() {
		n = t.NumRows()
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return t.Take(rows)
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return &Table{Name: t.Name, Columns: cols}, nil
}

// Row returns row i keyed by column name.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		row[c.Name] = c.Values[i]
	}
	return row
}
