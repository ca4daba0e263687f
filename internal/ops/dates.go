package ops

import (
	"time"

	"github.com/klytics/xlengine/internal/table"
)

// DateExtract adds year, month, day and day-of-week columns derived from Column.
// Day-of-week counts from Monday = 0.
type DateExtract struct {
	Column string `json:"date_col"`
}

func (DateExtract) Kind() Kind { return KindDateExtract }

// DateParts are the suffixes of the derived columns, in the order they are added.
var DateParts = []string{"year", "month", "day", "dayofweek"}

func applyDateExtract(_ *Dispatcher, t *table.Table, op Operation) (*Result, error) {
	de, err := mustKind[DateExtract](op)
	if err != nil {
		return nil, err
	}
	src, err := t.Column(de.Column)
	if err != nil {
		return nil, fail(KindDateExtract, err)
	}

	dates, err := asTimes(src)
	if err != nil {
		return nil, err
	}

	parts := make([]*table.Column, len(DateParts))
	for i, p := range DateParts {
		parts[i] = &table.Column{Name: de.Column + "_" + p, Type: table.Int, Values: make([]any, len(dates.Values))}
	}
	for r, v := range dates.Values {
		if v == nil {
			continue
		}
		ts := v.(time.Time)
		parts[0].Values[r] = int64(ts.Year())
		parts[1].Values[r] = int64(ts.Month())
		parts[2].Values[r] = int64(ts.Day())
		parts[3].Values[r] = int64((ts.Weekday() + 6) % 7)
	}

	res := t.Clone()
	columns := []string{de.Column}
	for _, c := range append([]*table.Column{dates}, parts...) {
		if err := res.Set(c); err != nil {
			return nil, fail(KindDateExtract, err)
		}
	}
	for _, c := range parts {
		columns = append(columns, c.Name)
	}
	return &Result{Table: res, Provenance: Provenance{Columns: columns}}, nil
}

// asTimes returns src as a Time column, parsing text cells. Any cell that does not
// parse fails the whole conversion.
func asTimes(src *table.Column) (*table.Column, error) {
	switch src.Type {
	case table.Time:
		return src, nil
	case table.Text:
	default:
		return nil, failf(KindDateExtract, "column %q is %s, expected dates", src.Name, src.Type)
	}

	out := &table.Column{Name: src.Name, Type: table.Time, Values: make([]any, len(src.Values))}
	for i, v := range src.Values {
		if v == nil {
			continue
		}
		ts, err := table.ParseTime(v.(string))
		if err != nil {
			return nil, failf(KindDateExtract, "row %d: %w", i+1, err)
		}
		out.Values[i] = ts
	}
	return out, nil
}
