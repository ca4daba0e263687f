package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeLayouts are the date-time formats recognised when parsing cells.
// The first entry is also the number format written by the sheet adapter.
var TimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"1/2/06 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"1/2/06",
	"01-02-06",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// ParseTime parses s with the known layouts.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range TimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}

// FromCells builds a column from typed cells: string, bool, float64, time.Time or
// nil for an empty cell. Cells that all share one kind give the column that type,
// and whole numbers give an integer column. Mixed columns are text.
func FromCells(name string, cells []any) *Column {
	typ, seen, whole := Text, false, true
	for _, v := range cells {
		var t Type
		switch x := v.(type) {
		case nil:
			continue
		case float64:
			t = Float
			if x != math.Trunc(x) || math.Abs(x) > 1<<53 {
				whole = false
			}
		case bool:
			t = Bool
		case time.Time:
			t = Time
		default:
			t = Text
		}
		if !seen {
			typ, seen = t, true
		} else if t != typ {
			typ = Text
			break
		}
	}

	values := make([]any, len(cells))
	switch {
	case typ == Float && whole:
		typ = Int
		for i, v := range cells {
			if v != nil {
				values[i] = int64(v.(float64))
			}
		}
	case typ == Text:
		for i, v := range cells {
			if v != nil {
				values[i] = Format(v)
			}
		}
	default:
		copy(values, cells)
	}
	return &Column{Name: name, Type: typ, Values: values}
}

// Float64 converts a numeric value to float64.
func Float64(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Format renders a value as cell text. Null renders as the empty string.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return x.Format(TimeLayouts[0])
	default:
		return fmt.Sprint(x)
	}
}

// Compare orders two values of the same column. Nulls sort first; mixed numerics
// compare as floats; otherwise values of different Go types compare by their text.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := Float64(a); ok {
		if fb, ok := Float64(b); ok {
			return compareFloat(fa, fb)
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(Format(a), Format(b))
}

func compareFloat(a, b float64) int {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return -1
	case math.IsNaN(b):
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Key returns a comparable representation of v used for hashing in joins and
// group-bys. Ints and floats with equal numeric value share a key.
func Key(v any) any {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case time.Time:
		return x.UnixNano()
	}
	return v
}

// JSONSafe replaces values encoding/json cannot represent: non-finite floats become nil.
func JSONSafe(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}
